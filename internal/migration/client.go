package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Local storage keys the browser app wrote.
const (
	KeyLeads          = "makemyknot_leads"
	KeyQuestionnaires = "questionnaire_responses"
	KeyUsers          = "makemyknot_local_users"
	KeyAdminStats     = "makemyknot_admin_stats"
)

var AdminKeys = []string{
	KeyAdminStats,
	"makemyknot_admin_leads",
	"makemyknot_admin_users",
	"makemyknot_admin_matches",
	"makemyknot_admin_conversations",
}

// Export is a dump of browser local storage keyed by storage key. Values
// may be the raw stored strings or already-decoded JSON.
type Export map[string]json.RawMessage

func LoadExport(path string) (Export, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	var exp Export
	if err := json.Unmarshal(raw, &exp); err != nil {
		return nil, fmt.Errorf("parse export %s: %w", path, err)
	}
	return exp, nil
}

// Decode unmarshals the value under key into v, unwrapping one level of
// string encoding. A missing key leaves v untouched and reports false.
func (e Export) Decode(key string, v any) (bool, error) {
	raw, ok := e[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false, fmt.Errorf("decode %s: %w", key, err)
		}
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (e Export) records(key string) ([]map[string]any, error) {
	var out []map[string]any
	if _, err := e.Decode(key, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Backup is the snapshot written before a migration run.
type Backup struct {
	Timestamp      time.Time        `json:"timestamp"`
	Leads          []map[string]any `json:"leads"`
	Questionnaires []map[string]any `json:"questionnaires"`
	Users          []map[string]any `json:"users"`
	AdminStats     map[string]any   `json:"adminStats"`
}

func (e Export) WriteBackup(path string, now time.Time) error {
	b := Backup{
		Timestamp:      now.UTC(),
		Leads:          []map[string]any{},
		Questionnaires: []map[string]any{},
		Users:          []map[string]any{},
		AdminStats:     map[string]any{},
	}
	for key, dst := range map[string]any{
		KeyLeads: &b.Leads, KeyQuestionnaires: &b.Questionnaires,
		KeyUsers: &b.Users, KeyAdminStats: &b.AdminStats,
	} {
		if _, err := e.Decode(key, dst); err != nil {
			return err
		}
	}
	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

func LoadBackup(path string) (*Backup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	var b Backup
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parse backup %s: %w", path, err)
	}
	return &b, nil
}

// Export turns a backup back into local-storage form, with each value
// string-encoded the way the browser stores it.
func (b *Backup) Export() (Export, error) {
	exp := Export{}
	for key, v := range map[string]any{
		KeyLeads:          b.Leads,
		KeyQuestionnaires: b.Questionnaires,
		KeyUsers:          b.Users,
		KeyAdminStats:     b.AdminStats,
	} {
		inner, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		outer, err := json.Marshal(string(inner))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		exp[key] = outer
	}
	return exp, nil
}

// Report is the outcome of a client migration run.
type Report struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	MigratedCounts Counts `json:"migratedCounts"`
}

// Client pushes an Export to a running server's migration endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL, token string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		log:     log,
	}
}

// Migrate sends every record in exp. A record that fails is logged and
// skipped; the run carries on with the next one.
func (c *Client) Migrate(ctx context.Context, exp Export) Report {
	var counts Counts
	var err error

	if counts.Leads, err = c.migrateRecords(ctx, exp, KeyLeads, "/api/migration/leads", nil); err != nil {
		c.log.Error("read leads", zap.Error(err))
	}
	if counts.Questionnaires, err = c.migrateRecords(ctx, exp, KeyQuestionnaires, "/api/migration/questionnaires", nil); err != nil {
		c.log.Error("read questionnaires", zap.Error(err))
	}
	stripPassword := func(rec map[string]any) {
		delete(rec, "password")
		delete(rec, "passwordHash")
	}
	if counts.Users, err = c.migrateRecords(ctx, exp, KeyUsers, "/api/migration/users", stripPassword); err != nil {
		c.log.Error("read users", zap.Error(err))
	}
	counts.AdminData = c.migrateAdmin(ctx, exp)

	total := counts.Total()
	if total == 0 {
		return Report{Success: false, Message: "No data was migrated", MigratedCounts: counts}
	}
	return Report{
		Success:        true,
		Message:        fmt.Sprintf("Successfully migrated %d items", total),
		MigratedCounts: counts,
	}
}

func (c *Client) migrateRecords(ctx context.Context, exp Export, key, path string, prepare func(map[string]any)) (int64, error) {
	recs, err := exp.records(key)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, rec := range recs {
		if prepare != nil {
			prepare(rec)
		}
		if err := c.post(ctx, path, rec); err != nil {
			c.log.Warn("record migration failed",
				zap.String("key", key), zap.Any("id", rec["id"]), zap.Error(err))
			continue
		}
		n++
	}
	c.log.Info("migrated records", zap.String("key", key), zap.Int64("count", n), zap.Int("total", len(recs)))
	return n, nil
}

func (c *Client) migrateAdmin(ctx context.Context, exp Export) int64 {
	var n int64
	for _, key := range AdminKeys {
		var data any
		ok, err := exp.Decode(key, &data)
		if err != nil {
			c.log.Warn("admin data unreadable", zap.String("key", key), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if err := c.post(ctx, "/api/migration/admin", map[string]any{"key": key, "data": data}); err != nil {
			c.log.Warn("admin data migration failed", zap.String("key", key), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// Status fetches the server-side migrated record counts.
func (c *Client) Status(ctx context.Context) (Counts, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/migration/status", nil)
	if err != nil {
		return Counts{}, err
	}
	var body struct {
		Data struct {
			MigratedCounts Counts `json:"migratedCounts"`
		} `json:"data"`
	}
	if err := c.do(req, &body); err != nil {
		return Counts{}, err
	}
	return body.Data.MigratedCounts, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

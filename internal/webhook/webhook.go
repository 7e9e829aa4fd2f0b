// Package webhook pushes lead lifecycle events to external CRMs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"knot-backend/internal/config"
	"knot-backend/internal/instrument"
)

// Payload is the JSON body sent to webhook endpoints.
type Payload struct {
	Event          string         `json:"event"`
	Record         map[string]any `json:"record"`
	Timestamp      string         `json:"timestamp"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// Hook is one configured endpoint with its compiled condition.
type Hook struct {
	Name      string
	URL       string
	Events    []string
	Headers   map[string]string
	// MaxAttempts bounds delivery tries, including the first.
	MaxAttempts int
	condition   *vm.Program
}

func (h *Hook) subscribed(event string) bool {
	if len(h.Events) == 0 {
		return true
	}
	for _, e := range h.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Dispatcher fans events out to every subscribed hook in the background.
type Dispatcher struct {
	hooks   []*Hook
	client  *http.Client
	metrics *instrument.Metrics
	log     *zap.Logger
	backoff time.Duration
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// NewDispatcher compiles every hook condition up front so a bad
// expression fails at startup.
func NewDispatcher(cfgs []config.WebhookConfig, metrics *instrument.Metrics, log *zap.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		metrics: metrics,
		log:     log,
		backoff: 30 * time.Second,
		done:    make(chan struct{}),
	}
	for _, c := range cfgs {
		if c.URL == "" {
			return nil, fmt.Errorf("webhook %q: url is required", c.Name)
		}
		h := &Hook{Name: c.Name, URL: c.URL, Events: c.Events, Headers: c.Headers, MaxAttempts: c.MaxAttempts}
		if h.MaxAttempts <= 0 {
			h.MaxAttempts = 3
		}
		if h.Name == "" {
			h.Name = c.URL
		}
		if c.Condition != "" {
			prog, err := expr.Compile(c.Condition, expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("compile webhook %q condition: %w", h.Name, err)
			}
			h.condition = prog
		}
		d.hooks = append(d.hooks, h)
	}
	return d, nil
}

func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.hooks)
}

// Notify evaluates conditions synchronously and delivers matching hooks
// asynchronously. A nil Dispatcher does nothing.
func (d *Dispatcher) Notify(event string, record map[string]any) {
	if d == nil || len(d.hooks) == 0 {
		return
	}
	payload := &Payload{
		Event:          event,
		Record:         record,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		IdempotencyKey: "wh_" + uuid.New().String(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.log.Error("marshal webhook payload", zap.String("event", event), zap.Error(err))
		return
	}

	for _, h := range d.hooks {
		if !h.subscribed(event) {
			continue
		}
		fire, err := evaluate(h, event, record)
		if err != nil {
			d.log.Warn("webhook condition", zap.String("hook", h.Name), zap.Error(err))
			continue
		}
		if !fire {
			continue
		}
		d.wg.Add(1)
		go func(h *Hook) {
			defer d.wg.Done()
			d.deliver(h, event, body)
		}(h)
	}
}

// deliver retries failed calls with exponential backoff: backoff x 2^(attempt-1).
func (d *Dispatcher) deliver(h *Hook, event string, body []byte) {
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res := d.dispatch(ctx, h, body)
		cancel()

		ok := res.Error == "" && res.StatusCode >= 200 && res.StatusCode < 300
		d.metrics.WebhookDelivered(h.Name, ok)
		if ok {
			if attempt > 1 {
				d.log.Info("webhook retry delivered", zap.String("hook", h.Name), zap.Int("attempt", attempt))
			}
			return
		}
		fields := []zap.Field{
			zap.String("hook", h.Name), zap.String("event", event),
			zap.Int("status", res.StatusCode), zap.String("error", res.Error),
			zap.Int("attempt", attempt), zap.Int("max_attempts", h.MaxAttempts),
		}
		if attempt >= h.MaxAttempts {
			d.log.Warn("webhook delivery failed", fields...)
			return
		}
		d.log.Debug("webhook delivery retrying", fields...)
		timer := time.NewTimer(d.backoff << (attempt - 1))
		select {
		case <-timer.C:
		case <-d.done:
			timer.Stop()
			d.log.Warn("webhook retry abandoned on shutdown", fields...)
			return
		}
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

// Close cancels pending retries and waits for calls already on the wire.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func evaluate(h *Hook, event string, record map[string]any) (bool, error) {
	if h.condition == nil {
		return true, nil
	}
	result, err := expr.Run(h.condition, map[string]any{"event": event, "record": record})
	if err != nil {
		return false, fmt.Errorf("evaluate webhook condition: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("webhook condition did not return bool")
	}
	return b, nil
}

// DispatchResult holds the outcome of a single webhook HTTP call.
type DispatchResult struct {
	StatusCode   int
	ResponseBody string
	Error        string
}

func (d *Dispatcher) dispatch(ctx context.Context, h *Hook, body []byte) *DispatchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return &DispatchResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ResolveHeaders(h.Headers) {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &DispatchResult{Error: fmt.Sprintf("http call: %v", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return &DispatchResult{StatusCode: resp.StatusCode, ResponseBody: string(respBody)}
}

// ResolveHeaders replaces {{env.VAR_NAME}} in header values with os env values.
func ResolveHeaders(headers map[string]string) map[string]string {
	resolved := make(map[string]string, len(headers))
	for k, v := range headers {
		resolved[k] = resolveEnvVars(v)
	}
	return resolved
}

func resolveEnvVars(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{env.")
		if start == -1 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			b.WriteString(s)
			return b.String()
		}
		end += start
		b.WriteString(s[:start])
		b.WriteString(os.Getenv(s[start+6 : end]))
		s = s[end+2:]
	}
}

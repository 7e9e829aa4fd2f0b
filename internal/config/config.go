package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Mongo       MongoConfig       `mapstructure:"mongo"`
	Events      EventsConfig      `mapstructure:"events"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Email       EmailConfig       `mapstructure:"email"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Auth        AuthConfig        `mapstructure:"auth"`
	LeadScoring LeadScoringConfig `mapstructure:"lead_scoring"`
	Matching    MatchingConfig    `mapstructure:"matching"`
	FollowUp    FollowUpConfig    `mapstructure:"followup"`
	Webhooks    []WebhookConfig   `mapstructure:"webhooks"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	BodyLimit   int      `mapstructure:"body_limit"`
}

// MongoConfig selects the primary store. Driver "memory" keeps everything
// in process, which is what local development and tests run against.
type MongoConfig struct {
	Driver   string        `mapstructure:"driver"`
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (m MongoConfig) IsMemory() bool {
	return m.Driver == "memory"
}

type EventsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Name            string `mapstructure:"name"`
	PoolSize        int    `mapstructure:"pool_size"`
	RetentionDays   int    `mapstructure:"retention_days"`
	BufferSize      int    `mapstructure:"buffer_size"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms"`
}

// ConnString returns the PostgreSQL connection string for the events sink.
func (e EventsConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		e.User, e.Password, e.Host, e.Port, e.Name)
}

type StorageConfig struct {
	Driver      string   `mapstructure:"driver"`
	LocalPath   string   `mapstructure:"local_path"`
	PublicURL   string   `mapstructure:"public_url"`
	MaxFileSize int64    `mapstructure:"max_file_size"`
	S3          S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

type EmailConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	BaseURL    string `mapstructure:"base_url"`
	AdminEmail string `mapstructure:"admin_email"`
}

// Enabled reports whether an SMTP relay is configured.
func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.Username != ""
}

type StripeConfig struct {
	SecretKey     string            `mapstructure:"secret_key"`
	WebhookSecret string            `mapstructure:"webhook_secret"`
	SuccessURL    string            `mapstructure:"success_url"`
	CancelURL     string            `mapstructure:"cancel_url"`
	Prices        map[string]string `mapstructure:"prices"`
}

// AuthConfig holds token settings. When AdminPassword is set the first
// address in AdminEmails is bootstrapped as an admin account at startup.
type AuthConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	AdminEmails   []string `mapstructure:"admin_emails"`
	AdminName     string   `mapstructure:"admin_name"`
	AdminPassword string   `mapstructure:"admin_password"`
	TrialDays     int      `mapstructure:"trial_days"`
}

type LeadScoringConfig struct {
	Rules []LeadRuleConfig `mapstructure:"rules"`
}

type LeadRuleConfig struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
	Points     int    `mapstructure:"points"`
}

type MatchingConfig struct {
	DefaultLimit     int `mapstructure:"default_limit"`
	MaxLimit         int `mapstructure:"max_limit"`
	MinQuestionnaire int `mapstructure:"min_questionnaire_score"`
	NotifyThreshold  int `mapstructure:"notify_threshold"`
}

type FollowUpConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Batch    int           `mapstructure:"batch"`
}

type WebhookConfig struct {
	Name        string            `mapstructure:"name"`
	URL         string            `mapstructure:"url"`
	Events      []string          `mapstructure:"events"`
	Condition   string            `mapstructure:"condition"`
	Headers     map[string]string `mapstructure:"headers"`
	MaxAttempts int               `mapstructure:"max_attempts"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.body_limit", 12*1024*1024)
	v.SetDefault("mongo.driver", "mongo")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "makemyknot")
	v.SetDefault("mongo.timeout", 10*time.Second)
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.host", "localhost")
	v.SetDefault("events.port", 5432)
	v.SetDefault("events.pool_size", 4)
	v.SetDefault("events.retention_days", 90)
	v.SetDefault("events.buffer_size", 200)
	v.SetDefault("events.flush_interval_ms", 1000)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("storage.public_url", "/uploads")
	v.SetDefault("storage.max_file_size", 10485760)
	v.SetDefault("email.port", 587)
	v.SetDefault("email.from", "noreply@makemyknot.com")
	v.SetDefault("email.base_url", "https://make-my-knot-kappa.vercel.app")
	v.SetDefault("email.admin_email", "support@makemyknot.com")
	v.SetDefault("stripe.success_url", "https://make-my-knot-kappa.vercel.app/dashboard?checkout=success")
	v.SetDefault("stripe.cancel_url", "https://make-my-knot-kappa.vercel.app/pricing")
	v.SetDefault("auth.jwt_secret", "changeme-secret")
	v.SetDefault("auth.trial_days", 7)
	v.SetDefault("auth.admin_name", "Administrator")
	v.SetDefault("matching.default_limit", 10)
	v.SetDefault("matching.max_limit", 50)
	v.SetDefault("matching.min_questionnaire_score", 70)
	v.SetDefault("matching.notify_threshold", 90)
	v.SetDefault("followup.enabled", true)
	v.SetDefault("followup.interval", 15*time.Minute)
	v.SetDefault("followup.batch", 50)
	v.SetDefault("log.level", "info")
}

// Load reads app.yaml (if present) and environment overrides prefixed with
// KNOT_, e.g. KNOT_MONGO_URI.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("KNOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	v.SetEnvPrefix("KNOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.LeadScoring.Rules) == 0 {
		cfg.LeadScoring.Rules = DefaultLeadRules()
	}
	return &cfg, nil
}

// DefaultLeadRules is the scoring used when app.yaml defines none.
func DefaultLeadRules() []LeadRuleConfig {
	return []LeadRuleConfig{
		{Name: "has_phone", Expression: `phone != ""`, Points: 15},
		{Name: "answered_quiz", Expression: `len(answers) >= 5`, Points: 25},
		{Name: "marriage_intent", Expression: `answers["relationship_type"] in ["Marriage", "Long-term relationship leading to marriage"]`, Points: 30},
		{Name: "referral", Expression: `source == "referral"`, Points: 15},
		{Name: "biodata", Expression: `has_biodata`, Points: 15},
	}
}

// Package config defines the top-level configuration for the live feed
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// (or YAML) file and then optionally overridden by LIVEFEED_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Sources  []SourceConfig `toml:"sources" yaml:"sources"`
	Monitor  MonitorConfig  `toml:"monitor" yaml:"monitor"`
	History  HistoryConfig  `toml:"history" yaml:"history"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis"`
	Postgres PostgresConfig `toml:"postgres" yaml:"postgres"`
	S3       S3Config       `toml:"s3" yaml:"s3"`
	Notify   NotifyConfig   `toml:"notify" yaml:"notify"`
	LogLevel string         `toml:"log_level" yaml:"log_level"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host        string   `toml:"host" yaml:"host"`
	Port        int      `toml:"port" yaml:"port"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	// WSRatePerSecond limits WebSocket upgrades per client IP; 0 disables it.
	WSRatePerSecond float64  `toml:"ws_rate_per_second" yaml:"ws_rate_per_second"`
	WSBurst         int      `toml:"ws_burst" yaml:"ws_burst"`
	SendBuffer      int      `toml:"send_buffer" yaml:"send_buffer"`
	ShutdownTimeout duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SourceConfig is one upstream location the collectors write to.
type SourceConfig struct {
	Name     string `toml:"name" yaml:"name"`
	Variant  string `toml:"variant" yaml:"variant"`
	Location string `toml:"location" yaml:"location"`
	Fallback bool   `toml:"fallback" yaml:"fallback"`
}

// MonitorConfig tunes the poll loop and the idle catch-up of connections.
type MonitorConfig struct {
	PollInterval      duration `toml:"poll_interval" yaml:"poll_interval"`
	BackoffInterval   duration `toml:"backoff_interval" yaml:"backoff_interval"`
	IdleCheckInterval duration `toml:"idle_check_interval" yaml:"idle_check_interval"`
	SinkTimeout       duration `toml:"sink_timeout" yaml:"sink_timeout"`
}

// HistoryConfig selects where removed matches are kept.
type HistoryConfig struct {
	// Backend is one of file, memory, redis or postgres.
	Backend string `toml:"backend" yaml:"backend"`
	// Location is the history document for the file backend.
	Location  string `toml:"location" yaml:"location"`
	Window    int    `toml:"window" yaml:"window"`
	Retain    int    `toml:"retain" yaml:"retain"`
	PruneCron string `toml:"prune_cron" yaml:"prune_cron"`
}

// RedisConfig holds Redis connection parameters and the snapshot mirror keys.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	Addr       string `toml:"addr" yaml:"addr"`
	Password   string `toml:"password" yaml:"password"`
	DB         int    `toml:"db" yaml:"db"`
	PoolSize   int    `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int    `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled" yaml:"tls_enabled"`

	MirrorKey     string   `toml:"mirror_key" yaml:"mirror_key"`
	MirrorChannel string   `toml:"mirror_channel" yaml:"mirror_channel"`
	MirrorTTL     duration `toml:"mirror_ttl" yaml:"mirror_ttl"`
	HistoryKey    string   `toml:"history_key" yaml:"history_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters. The store serves
// s3:// source locations and, when ExportLocation is set, receives a copy of
// every published snapshot.
type S3Config struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
	ExportLocation string `toml:"export_location" yaml:"export_location"`
}

// NotifyConfig holds operator alert channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
	Cooldown          duration `toml:"cooldown" yaml:"cooldown"`
}

// duration is a wrapper around time.Duration that supports TOML and YAML
// string decoding.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so that BurntSushi/toml can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML accepts the same strings as UnmarshalText.
func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Defaults returns a Config populated with sensible default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			CORSOrigins:     []string{"*"},
			WSRatePerSecond: 2,
			WSBurst:         10,
			SendBuffer:      16,
			ShutdownTimeout: duration{5 * time.Second},
		},
		Sources: []SourceConfig{
			{Name: "live", Variant: string(domain.VariantLive), Location: "bet365_live_current.json"},
			{Name: "pregame", Variant: string(domain.VariantPregameSportsData), Location: "outputs/current_pregame_data.json"},
			{Name: "pregame-legacy", Variant: string(domain.VariantPregameLegacy), Location: "ultimate_revised_sport_bet365_data_latest.json", Fallback: true},
		},
		Monitor: MonitorConfig{
			PollInterval:      duration{time.Second},
			BackoffInterval:   duration{5 * time.Second},
			IdleCheckInterval: duration{time.Second},
			SinkTimeout:       duration{5 * time.Second},
		},
		History: HistoryConfig{
			Backend:   "file",
			Location:  "outputs/pregame_history.json",
			Window:    20,
			Retain:    1000,
			PruneCron: "0 3 * * *",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      10,
			MaxRetries:    3,
			MirrorKey:     "livefeed:snapshot",
			MirrorChannel: "livefeed:updates",
			HistoryKey:    "livefeed:history",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "livefeed",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events:   []string{"source_corrupt", "detector_backoff", "detector_recovered", "sink_failing"},
			Cooldown: duration{5 * time.Minute},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validHistoryBackends enumerates the accepted values for History.Backend.
var validHistoryBackends = map[string]bool{
	"file":     true,
	"memory":   true,
	"redis":    true,
	"postgres": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.WSRatePerSecond < 0 {
		errs = append(errs, "server: ws_rate_per_second must be >= 0")
	}
	if c.Server.WSRatePerSecond > 0 && c.Server.WSBurst < 1 {
		errs = append(errs, "server: ws_burst must be >= 1 when ws_rate_per_second is set")
	}

	// Sources
	if len(c.Sources) == 0 {
		errs = append(errs, "sources: at least one source must be configured")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		label := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			errs = append(errs, label+": name must not be empty")
		} else if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate name %q", label, s.Name))
		}
		seen[s.Name] = true
		if s.Location == "" {
			errs = append(errs, label+": location must not be empty")
		}
		v, err := domain.ParseSourceVariant(s.Variant)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", label, err))
		} else if s.Fallback && v.IsLive() {
			errs = append(errs, label+": a live source cannot be a fallback")
		}
		if strings.HasPrefix(s.Location, "s3://") && !c.S3.Enabled {
			errs = append(errs, label+": s3 location requires s3.enabled")
		}
	}

	// Monitor
	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be > 0")
	}
	if c.Monitor.BackoffInterval.Duration < c.Monitor.PollInterval.Duration {
		errs = append(errs, "monitor: backoff_interval must not be shorter than poll_interval")
	}
	if c.Monitor.IdleCheckInterval.Duration <= 0 {
		errs = append(errs, "monitor: idle_check_interval must be > 0")
	}

	// History
	backend := strings.ToLower(c.History.Backend)
	if !validHistoryBackends[backend] {
		errs = append(errs, fmt.Sprintf("history: unknown backend %q (valid: file, memory, redis, postgres)", c.History.Backend))
	}
	if backend == "file" && c.History.Location == "" {
		errs = append(errs, "history: location is required for the file backend")
	}
	if backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "history: redis backend requires redis.enabled")
	}
	if c.History.Window < 1 {
		errs = append(errs, "history: window must be >= 1")
	}
	if c.History.Retain < c.History.Window {
		errs = append(errs, "history: retain must not be smaller than window")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if backend == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty")
	}
	if c.S3.ExportLocation != "" && !c.S3.Enabled {
		errs = append(errs, "s3: export_location requires s3.enabled")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SourceSpecs converts the configured sources. Call after Validate.
func (c *Config) SourceSpecs() []domain.SourceSpec {
	specs := make([]domain.SourceSpec, 0, len(c.Sources))
	for _, s := range c.Sources {
		v, _ := domain.ParseSourceVariant(s.Variant)
		specs = append(specs, domain.SourceSpec{
			Name:     s.Name,
			Variant:  v,
			Location: s.Location,
			Fallback: s.Fallback,
		})
	}
	return specs
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file at path, merges it on top of the built-in
// defaults, applies LIVEFEED_* environment variable overrides, and returns the
// final Config. Files ending in .yaml or .yml are decoded as YAML, anything
// else as TOML. An empty path skips the file. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	// A source list in the file replaces the defaults instead of being
	// merged into them element by element.
	defaults := cfg.Sources
	cfg.Sources = nil

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if cfg.Sources == nil {
		cfg.Sources = defaults
	}
	return nil
}

// applyEnvOverrides reads well-known LIVEFEED_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the config file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setStr(&cfg.Server.Host, "LIVEFEED_SERVER_HOST")
	setInt(&cfg.Server.Port, "LIVEFEED_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform convention
	setStringSlice(&cfg.Server.CORSOrigins, "LIVEFEED_SERVER_CORS_ORIGINS")
	setFloat64(&cfg.Server.WSRatePerSecond, "LIVEFEED_SERVER_WS_RATE_PER_SECOND")
	setInt(&cfg.Server.WSBurst, "LIVEFEED_SERVER_WS_BURST")
	setInt(&cfg.Server.SendBuffer, "LIVEFEED_SERVER_SEND_BUFFER")
	setDuration(&cfg.Server.ShutdownTimeout, "LIVEFEED_SERVER_SHUTDOWN_TIMEOUT")

	// ── Sources ── LIVEFEED_SOURCE_<NAME>_LOCATION relocates a configured source.
	for i := range cfg.Sources {
		setStr(&cfg.Sources[i].Location, "LIVEFEED_SOURCE_"+envName(cfg.Sources[i].Name)+"_LOCATION")
	}

	// ── Monitor ──
	setDuration(&cfg.Monitor.PollInterval, "LIVEFEED_MONITOR_POLL_INTERVAL")
	setDuration(&cfg.Monitor.BackoffInterval, "LIVEFEED_MONITOR_BACKOFF_INTERVAL")
	setDuration(&cfg.Monitor.IdleCheckInterval, "LIVEFEED_MONITOR_IDLE_CHECK_INTERVAL")
	setDuration(&cfg.Monitor.SinkTimeout, "LIVEFEED_MONITOR_SINK_TIMEOUT")

	// ── History ──
	setStr(&cfg.History.Backend, "LIVEFEED_HISTORY_BACKEND")
	setStr(&cfg.History.Location, "LIVEFEED_HISTORY_LOCATION")
	setInt(&cfg.History.Window, "LIVEFEED_HISTORY_WINDOW")
	setInt(&cfg.History.Retain, "LIVEFEED_HISTORY_RETAIN")
	setStr(&cfg.History.PruneCron, "LIVEFEED_HISTORY_PRUNE_CRON")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LIVEFEED_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LIVEFEED_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LIVEFEED_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LIVEFEED_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LIVEFEED_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LIVEFEED_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LIVEFEED_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.MirrorKey, "LIVEFEED_REDIS_MIRROR_KEY")
	setStr(&cfg.Redis.MirrorChannel, "LIVEFEED_REDIS_MIRROR_CHANNEL")
	setDuration(&cfg.Redis.MirrorTTL, "LIVEFEED_REDIS_MIRROR_TTL")
	setStr(&cfg.Redis.HistoryKey, "LIVEFEED_REDIS_HISTORY_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LIVEFEED_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "LIVEFEED_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LIVEFEED_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LIVEFEED_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LIVEFEED_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LIVEFEED_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LIVEFEED_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LIVEFEED_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LIVEFEED_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LIVEFEED_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "LIVEFEED_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LIVEFEED_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LIVEFEED_S3_REGION")
	setStr(&cfg.S3.Bucket, "LIVEFEED_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LIVEFEED_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LIVEFEED_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LIVEFEED_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LIVEFEED_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ExportLocation, "LIVEFEED_S3_EXPORT_LOCATION")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LIVEFEED_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LIVEFEED_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LIVEFEED_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LIVEFEED_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "LIVEFEED_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "LIVEFEED_LOG_LEVEL")
}

// envName upper-cases a source name and maps anything outside [A-Z0-9] to '_'.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

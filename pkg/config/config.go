package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const envConfigPath = "BABYBOT_CONFIG"

// Persistence modes.
const (
	PersistencePostgres = "postgres"
	PersistenceLambda   = "lambda"
	PersistenceMemory   = "memory"
)

// Config is the root runtime configuration loaded from config.json and the environment.
type Config struct {
	Line        LineConfig        `json:"line"`
	Telegram    TelegramConfig    `json:"telegram"`
	Storage     StorageConfig     `json:"storage"`
	Database    DatabaseConfig    `json:"database"`
	Persistence PersistenceConfig `json:"persistence"`
	Ledger      LedgerConfig      `json:"ledger"`
	Feed        FeedConfig        `json:"feed"`
	Gateway     GatewayConfig     `json:"gateway"`
	Defaults    DefaultsConfig    `json:"defaults"`
	Logging     LoggingConfig     `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" env:"BABYBOT_LOG_FORMAT"`
	Level     string `json:"level,omitempty" env:"BABYBOT_LOG_LEVEL"`
	AddSource bool   `json:"add_source,omitempty" env:"BABYBOT_LOG_ADD_SOURCE"`
}

// LineConfig configures the LINE Messaging API channel.
type LineConfig struct {
	Enabled               bool   `json:"enabled" env:"LINE_ENABLED"`
	ChannelSecret         string `json:"channel_secret" env:"LINE_CHANNEL_SECRET"`
	ChannelAccessToken    string `json:"channel_access_token" env:"LINE_CHANNEL_ACCESS_TOKEN"`
	CallbackPath          string `json:"callback_path" env:"LINE_CALLBACK_PATH" env-default:"/callback"`
	Host                  string `json:"host" env:"LINE_HOST" env-default:"0.0.0.0"`
	Port                  int    `json:"port" env:"PORT" env-default:"3000"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" env:"LINE_REQUEST_TIMEOUT_SECONDS" env-default:"10"`
	ReplyTokenTTLSeconds  int    `json:"reply_token_ttl_seconds" env:"LINE_REPLY_TOKEN_TTL_SECONDS" env-default:"60"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" env:"TELEGRAM_ENABLED"`
	Token     string   `json:"token" env:"TELEGRAM_BOT_TOKEN"`
	AllowFrom []string `json:"allow_from" env:"TELEGRAM_ALLOW_FROM" env-separator:","`
}

// StorageConfig configures the S3 bucket receiving uploaded media. Without a
// bucket, media is written under LocalDir.
type StorageConfig struct {
	LocalDir              string `json:"local_dir" env:"MEDIA_LOCAL_DIR" env-default:"media"`
	Bucket                string `json:"bucket" env:"AWS_S3_BUCKET_NAME"`
	Region                string `json:"region" env:"AWS_S3_BUCKET_REGION"`
	AccessKey             string `json:"access_key" env:"AWS_S3_ACCESS_KEY"`
	SecretKey             string `json:"secret_key" env:"AWS_S3_ACCESS_SECRET_KEY"`
	Endpoint              string `json:"endpoint" env:"AWS_S3_ENDPOINT"`
	CDNURL                string `json:"cdn_url" env:"AWS_S3_CDN_URL"`
	PresignExpirySeconds  int    `json:"presign_expiry_seconds" env:"AWS_S3_PRESIGN_EXPIRY_SECONDS" env-default:"900"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" env:"AWS_S3_REQUEST_TIMEOUT_SECONDS" env-default:"30"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN                    string `json:"dsn" env:"DATABASE_DSN"`
	MaxConns               int32  `json:"max_conns" env:"DATABASE_MAX_CONNS" env-default:"10"`
	MinConns               int32  `json:"min_conns" env:"DATABASE_MIN_CONNS" env-default:"1"`
	MaxConnLifetimeMinutes int    `json:"max_conn_lifetime_minutes" env:"DATABASE_MAX_CONN_LIFETIME_MINUTES" env-default:"60"`
	MaxConnIdleMinutes     int    `json:"max_conn_idle_minutes" env:"DATABASE_MAX_CONN_IDLE_MINUTES" env-default:"30"`
}

// PersistenceConfig selects where activity records and media assets are written.
type PersistenceConfig struct {
	Mode   string       `json:"mode" env:"PERSISTENCE_MODE" env-default:"memory"`
	Lambda LambdaConfig `json:"lambda"`
}

// LambdaConfig configures the remote persistence function.
type LambdaConfig struct {
	FunctionName   string `json:"function_name" env:"AWS_LAMBDA_INVOKE_FUNCTION_NAME"`
	Region         string `json:"region" env:"AWS_LAMBDA_REGION"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"AWS_LAMBDA_TIMEOUT_SECONDS" env-default:"15"`
}

// LedgerConfig selects the reply-token ledger backend. An empty table keeps the
// ledger in process memory.
type LedgerConfig struct {
	DynamoTable string `json:"dynamo_table" env:"REPLY_TOKEN_TABLE"`
	Region      string `json:"region" env:"REPLY_TOKEN_TABLE_REGION"`
}

// FeedConfig configures the Kafka activity feed. No brokers disables the feed.
type FeedConfig struct {
	Brokers []string `json:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `json:"topic" env:"KAFKA_ACTIVITY_TOPIC" env-default:"babybot.activity"`
}

// GatewayConfig configures the status server bind settings.
type GatewayConfig struct {
	Host string `json:"host" env:"GATEWAY_HOST" env-default:"127.0.0.1"`
	Port int    `json:"port" env:"GATEWAY_PORT" env-default:"18790"`
}

// DefaultsConfig carries the fallback identities used by single-tenant deployments.
type DefaultsConfig struct {
	UserID int64 `json:"user_id" env:"DEFAULT_USER_ID"`
	BabyID int64 `json:"baby_id" env:"DEFAULT_BABY_ID"`
}

// LoadConfig loads .env, resolves config.json and applies environment overrides.
//
// A missing config file is not an error unless BABYBOT_CONFIG names one; the
// configuration is then built from the environment and defaults only.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env config: %w", err)
		}
	} else if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports settings that would make the selected components unusable.
func (c *Config) Validate() error {
	switch c.Persistence.Mode {
	case PersistencePostgres:
		if c.Database.DSN == "" {
			return errors.New("persistence mode postgres requires database.dsn")
		}
	case PersistenceLambda:
		if c.Persistence.Lambda.FunctionName == "" {
			return errors.New("persistence mode lambda requires persistence.lambda.function_name")
		}
	case PersistenceMemory:
	default:
		return fmt.Errorf("unsupported persistence mode %q", c.Persistence.Mode)
	}

	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return errors.New("telegram is enabled but telegram.token is empty")
	}

	return nil
}

// normalize trims and lowercases values that are matched case-insensitively.
func normalize(cfg *Config) {
	cfg.Persistence.Mode = strings.ToLower(strings.TrimSpace(cfg.Persistence.Mode))
	cfg.Telegram.AllowFrom = compact(cfg.Telegram.AllowFrom)
	cfg.Feed.Brokers = compact(cfg.Feed.Brokers)
	cfg.Storage.CDNURL = strings.TrimRight(cfg.Storage.CDNURL, "/")
}

// compact trims values and drops empty entries.
func compact(values []string) []string {
	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is BABYBOT_CONFIG first, then cwd-local fallback paths. An empty
// result means no file was found.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}

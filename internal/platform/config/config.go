// Package config loads escrowops configuration. Defaults live in code, an
// optional TOML file overrides them, and ESCROWOPS_* environment variables
// win over both.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// FileEnvVar names the optional TOML config file.
const FileEnvVar = "ESCROWOPS_CONFIG_FILE"

// Config is the full process configuration.
type Config struct {
	Server    Server         `toml:"server"`
	Auth      Auth           `toml:"auth"`
	Postgres  PostgresConfig `toml:"postgres"`
	Ledger    LedgerConfig   `toml:"ledger"`
	Redis     RedisConfig    `toml:"redis"`
	NATS      NATSConfig     `toml:"nats"`
	S3        S3Config       `toml:"s3"`
	Kafka     KafkaConfig    `toml:"kafka"`
	Custody   CustodyConfig  `toml:"custody"`
	BotConfig BotConfig      `toml:"bot_config"`
	Gate      GateConfig     `toml:"gate"`
	Stats     StatsConfig    `toml:"stats"`
	Pool      PoolConfig     `toml:"pool"`
	RateLimit RateLimit      `toml:"rate_limit"`
	OTel      OTelConfig     `toml:"otel"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `toml:"addr" env:"ESCROWOPS_ADDR"`
	RequestTimeout  time.Duration `toml:"request_timeout" env:"ESCROWOPS_REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"ESCROWOPS_SHUTDOWN_TIMEOUT"`
	MetricsToken    string        `toml:"metrics_token" env:"ESCROWOPS_METRICS_TOKEN"`
	LogLevel        string        `toml:"log_level" env:"ESCROWOPS_LOG_LEVEL"`
	Environment     string        `toml:"environment" env:"ESCROWOPS_ENV"`
}

// Auth configures verification of tokens minted by the identity provider.
type Auth struct {
	JWTSigningKey string `toml:"jwt_signing_key" env:"ESCROWOPS_JWT_SIGNING_KEY"`
	Issuer        string `toml:"issuer" env:"ESCROWOPS_JWT_ISSUER"`
	Audience      string `toml:"audience" env:"ESCROWOPS_JWT_AUDIENCE"`
}

// PostgresConfig selects the control-plane store. Empty DSN means in-memory.
type PostgresConfig struct {
	DSN          string        `toml:"dsn" env:"ESCROWOPS_POSTGRES_DSN"`
	MaxOpenConns int           `toml:"max_open_conns" env:"ESCROWOPS_POSTGRES_MAX_OPEN_CONNS"`
	TxTimeout    time.Duration `toml:"tx_timeout" env:"ESCROWOPS_POSTGRES_TX_TIMEOUT"`
}

// LedgerConfig points at the bot core's read-only deal ledger.
type LedgerConfig struct {
	DSN string `toml:"dsn" env:"ESCROWOPS_LEDGER_DSN"`
}

// RedisConfig holds connection settings for the optional Redis instance.
type RedisConfig struct {
	URL          string        `toml:"url" env:"ESCROWOPS_REDIS_URL"`
	PoolSize     int           `toml:"pool_size" env:"ESCROWOPS_REDIS_POOL_SIZE"`
	MinIdleConns int           `toml:"min_idle_conns" env:"ESCROWOPS_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `toml:"dial_timeout" env:"ESCROWOPS_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `toml:"read_timeout" env:"ESCROWOPS_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `toml:"write_timeout" env:"ESCROWOPS_REDIS_WRITE_TIMEOUT"`
}

// NATSConfig configures the payout hand-off.
type NATSConfig struct {
	URL            string        `toml:"url" env:"ESCROWOPS_NATS_URL"`
	PayoutSubject  string        `toml:"payout_subject" env:"ESCROWOPS_NATS_PAYOUT_SUBJECT"`
	RequestTimeout time.Duration `toml:"request_timeout" env:"ESCROWOPS_NATS_REQUEST_TIMEOUT"`
}

// S3Config locates custody bundles.
type S3Config struct {
	Bucket       string `toml:"bucket" env:"ESCROWOPS_S3_BUCKET"`
	Region       string `toml:"region" env:"ESCROWOPS_S3_REGION"`
	Endpoint     string `toml:"endpoint" env:"ESCROWOPS_S3_ENDPOINT"`
	UsePathStyle bool   `toml:"use_path_style" env:"ESCROWOPS_S3_USE_PATH_STYLE"`
}

// KafkaConfig configures the audit forwarder. No brokers disables it.
type KafkaConfig struct {
	Brokers      []string      `toml:"brokers" env:"ESCROWOPS_KAFKA_BROKERS" envSeparator:","`
	AuditTopic   string        `toml:"audit_topic" env:"ESCROWOPS_KAFKA_AUDIT_TOPIC"`
	PollInterval time.Duration `toml:"poll_interval" env:"ESCROWOPS_KAFKA_POLL_INTERVAL"`
	Partitions   int32         `toml:"partitions" env:"ESCROWOPS_KAFKA_PARTITIONS"`
}

// CustodyConfig addresses the custody collaborator that prepares key bundles.
type CustodyConfig struct {
	BaseURL string        `toml:"base_url" env:"ESCROWOPS_CUSTODY_URL"`
	Timeout time.Duration `toml:"timeout" env:"ESCROWOPS_CUSTODY_TIMEOUT"`
}

// BotConfig addresses the bot-config collaborator. Empty URL keeps messages
// in process memory.
type BotConfig struct {
	BaseURL string        `toml:"base_url" env:"ESCROWOPS_BOT_CONFIG_URL"`
	Timeout time.Duration `toml:"timeout" env:"ESCROWOPS_BOT_CONFIG_TIMEOUT"`
}

// GateConfig tunes the two-phase protocol.
type GateConfig struct {
	ConfirmTTL    time.Duration `toml:"confirm_ttl" env:"ESCROWOPS_GATE_CONFIRM_TTL"`
	SweepInterval time.Duration `toml:"sweep_interval" env:"ESCROWOPS_GATE_SWEEP_INTERVAL"`
	BcryptCost    int           `toml:"bcrypt_cost" env:"ESCROWOPS_GATE_BCRYPT_COST"`
}

// StatsConfig tunes the dashboard read model.
type StatsConfig struct {
	TTL time.Duration `toml:"ttl" env:"ESCROWOPS_STATS_TTL"`
}

// PoolConfig sizes the escrow group pool at first start.
type PoolConfig struct {
	Size int `toml:"size" env:"ESCROWOPS_POOL_SIZE"`
}

// RateLimit sets per-actor budgets. Counters live in Redis when it is
// configured.
type RateLimit struct {
	Disabled           bool `toml:"disabled" env:"ESCROWOPS_RATELIMIT_DISABLED"`
	StandardPerMinute  int  `toml:"standard_per_minute" env:"ESCROWOPS_RATELIMIT_STANDARD_PER_MINUTE"`
	SensitivePerMinute int  `toml:"sensitive_per_minute" env:"ESCROWOPS_RATELIMIT_SENSITIVE_PER_MINUTE"`
}

// OTelConfig enables OTLP trace export when an endpoint is set.
type OTelConfig struct {
	Endpoint    string `toml:"endpoint" env:"ESCROWOPS_OTEL_ENDPOINT"`
	ServiceName string `toml:"service_name" env:"ESCROWOPS_OTEL_SERVICE_NAME"`
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			LogLevel:        "info",
			Environment:     "development",
		},
		Auth: Auth{
			Issuer:   "escrowops-idp",
			Audience: "escrowops",
		},
		Postgres: PostgresConfig{
			MaxOpenConns: 10,
			TxTimeout:    5 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		NATS: NATSConfig{
			PayoutSubject:  "escrow.payout.submit",
			RequestTimeout: 5 * time.Second,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Kafka: KafkaConfig{
			AuditTopic:   "escrowops.audit",
			PollInterval: 2 * time.Second,
			Partitions:   1,
		},
		Custody: CustodyConfig{
			Timeout: 30 * time.Second,
		},
		BotConfig: BotConfig{
			Timeout: 5 * time.Second,
		},
		Gate: GateConfig{
			ConfirmTTL:    5 * time.Minute,
			SweepInterval: 30 * time.Second,
			BcryptCost:    12,
		},
		Stats: StatsConfig{
			TTL: 15 * time.Second,
		},
		Pool: PoolConfig{
			Size: 50,
		},
		RateLimit: RateLimit{
			StandardPerMinute:  300,
			SensitivePerMinute: 10,
		},
		OTel: OTelConfig{
			ServiceName: "escrowops",
		},
	}
}

// Load applies the TOML file named by ESCROWOPS_CONFIG_FILE (if any) and
// then the environment over the defaults.
func Load() (Config, error) {
	return LoadFile(os.Getenv(FileEnvVar))
}

// LoadFile is Load with an explicit file path; an empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwt_signing_key is required"))
	}
	if c.Pool.Size <= 0 {
		errs = append(errs, errors.New("pool.size must be positive"))
	}
	if c.Stats.TTL <= 0 {
		errs = append(errs, errors.New("stats.ttl must be positive"))
	}
	if c.Gate.ConfirmTTL <= 0 {
		errs = append(errs, errors.New("gate.confirm_ttl must be positive"))
	}
	if !c.RateLimit.Disabled && (c.RateLimit.StandardPerMinute <= 0 || c.RateLimit.SensitivePerMinute <= 0) {
		errs = append(errs, errors.New("rate_limit budgets must be positive unless disabled"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether production-only guards apply.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

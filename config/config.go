// config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration (matches config/config.yaml).
// Secrets (DSN, RPC URL, executor key, R2 credentials) are overridden from
// the environment and never committed.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// EngineConfig holds the lifecycle/payout engine tunables.
type EngineConfig struct {
	PhaseScanInterval        time.Duration `mapstructure:"phase_scan_interval"`
	DistributionScanInterval time.Duration `mapstructure:"distribution_scan_interval"`
	TxPollInterval           time.Duration `mapstructure:"tx_poll_interval"`

	PhaseBatchSize        int           `mapstructure:"phase_batch_size"`
	CompletionGracePeriod time.Duration `mapstructure:"completion_grace_period"`

	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBackoffBase time.Duration `mapstructure:"retry_backoff_base"`

	ConfirmationThreshold uint64        `mapstructure:"confirmation_threshold"`
	ReceiptTimeout        time.Duration `mapstructure:"receipt_timeout"`
}

type LedgerConfig struct {
	RPCURL             string `mapstructure:"rpc_url"`
	EscrowAddress      string `mapstructure:"escrow_address"`
	ExecutorPrivateKey string `mapstructure:"executor_private_key"`
}

// StorageConfig configures the R2 bucket holding submission assets.
type StorageConfig struct {
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"`
	CDNBaseURL      string `mapstructure:"cdn_base_url"`
}

// LoadConfig reads config/config.yaml and overlays secrets from the
// environment (.env is loaded first if present; env always wins).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("LEDGER_RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("ESCROW_ADDRESS"); v != "" {
		cfg.Ledger.EscrowAddress = v
	}
	if v := os.Getenv("EXECUTOR_PRIVATE_KEY"); v != "" {
		cfg.Ledger.ExecutorPrivateKey = v
	}
	if v := os.Getenv("CLOUDFLARE_ACCOUNT_ID"); v != "" {
		cfg.Storage.AccountID = v
	}
	if v := os.Getenv("R2_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.AccessKeyID = v
	}
	if v := os.Getenv("R2_ACCESS_KEY_SECRET"); v != "" {
		cfg.Storage.AccessKeySecret = v
	}
	if v := os.Getenv("R2_BUCKET_NAME"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("CDN_BASE_URL"); v != "" {
		cfg.Storage.CDNBaseURL = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = v
	}
}

// applyDefaults fills the engine tunables left unset in config.yaml.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5300
	}
	if cfg.Engine.PhaseScanInterval == 0 {
		cfg.Engine.PhaseScanInterval = time.Minute
	}
	if cfg.Engine.DistributionScanInterval == 0 {
		cfg.Engine.DistributionScanInterval = time.Minute
	}
	if cfg.Engine.TxPollInterval == 0 {
		cfg.Engine.TxPollInterval = time.Minute
	}
	if cfg.Engine.PhaseBatchSize == 0 {
		cfg.Engine.PhaseBatchSize = 5
	}
	if cfg.Engine.CompletionGracePeriod == 0 {
		cfg.Engine.CompletionGracePeriod = time.Hour
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = 3
	}
	if cfg.Engine.RetryBackoffBase == 0 {
		cfg.Engine.RetryBackoffBase = 30 * time.Second
	}
	if cfg.Engine.ConfirmationThreshold == 0 {
		cfg.Engine.ConfirmationThreshold = 12
	}
	if cfg.Engine.ReceiptTimeout == 0 {
		cfg.Engine.ReceiptTimeout = 30 * time.Minute
	}
}

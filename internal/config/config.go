package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Chain        ChainConfig        `mapstructure:"chain"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	DVP          DVPConfig          `mapstructure:"dvp"`
	Notification NotificationConfig `mapstructure:"notification"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ChainConfig contains blockchain node connection configuration
type ChainConfig struct {
	NodeURL        string        `mapstructure:"node_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	BackupNodes    []string      `mapstructure:"backup_nodes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// Finality modes
const (
	FinalityModeFinalized     = "finalized"
	FinalityModeConfirmations = "confirmations"
)

// MonitorConfig contains transaction receipt monitoring configuration
type MonitorConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ReceiptTimeout     time.Duration `mapstructure:"receipt_timeout"`
	BatchSize          int           `mapstructure:"batch_size"`
	ConcurrentJobs     int           `mapstructure:"concurrent_jobs"`
	FinalityMode       string        `mapstructure:"finality_mode"` // finalized, confirmations
	ConfirmationBlocks uint64        `mapstructure:"confirmation_blocks"`
}

// DVPConfig contains settlement workflow configuration
type DVPConfig struct {
	ExchangeAddress string `mapstructure:"exchange_address"`
	TxVersion       string `mapstructure:"tx_version"`
}

// NotificationConfig contains notification configuration
type NotificationConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	NATSURL       string        `mapstructure:"nats_url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// IBET_WST_MONITOR_POLL_INTERVAL -> monitor.poll_interval
	v.SetEnvPrefix("IBET_WST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "ibet-wst-settlement")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Chain defaults
	v.SetDefault("chain.node_url", "http://localhost:8545")
	v.SetDefault("chain.chain_id", 2017)
	v.SetDefault("chain.backup_nodes", []string{})
	v.SetDefault("chain.request_timeout", "30s")
	v.SetDefault("chain.retry_attempts", 3)
	v.SetDefault("chain.retry_delay", "5s")
	v.SetDefault("chain.gas_limit", 6000000)

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/settlement.db")
	v.SetDefault("storage.max_connections", 25)
	v.SetDefault("storage.max_idle_time", "15m")

	// Monitor defaults
	v.SetDefault("monitor.poll_interval", "10s")
	v.SetDefault("monitor.receipt_timeout", "10s")
	v.SetDefault("monitor.batch_size", 100)
	v.SetDefault("monitor.concurrent_jobs", 4)
	v.SetDefault("monitor.finality_mode", FinalityModeFinalized)
	v.SetDefault("monitor.confirmation_blocks", 12)

	// DVP defaults
	v.SetDefault("dvp.exchange_address", "")
	v.SetDefault("dvp.tx_version", "1")

	// Notification defaults
	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("notification.subject_prefix", "ibet.wst")
	v.SetDefault("notification.timeout", "5s")

	// Server defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chain.NodeURL == "" {
		return fmt.Errorf("chain node URL is required")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive")
	}
	if c.Storage.Type != "sqlite" && c.Storage.Type != "postgres" {
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor poll interval must be positive")
	}
	if c.Monitor.ReceiptTimeout <= 0 {
		return fmt.Errorf("monitor receipt timeout must be positive")
	}
	if c.Monitor.BatchSize <= 0 {
		return fmt.Errorf("monitor batch size must be positive")
	}
	if c.Monitor.ConcurrentJobs <= 0 {
		return fmt.Errorf("monitor concurrent jobs must be positive")
	}
	switch c.Monitor.FinalityMode {
	case FinalityModeFinalized:
	case FinalityModeConfirmations:
		if c.Monitor.ConfirmationBlocks == 0 {
			return fmt.Errorf("confirmation blocks must be positive in %s mode", FinalityModeConfirmations)
		}
	default:
		return fmt.Errorf("unknown finality mode: %s", c.Monitor.FinalityMode)
	}
	if c.Notification.Enabled && c.Notification.NATSURL == "" {
		return fmt.Errorf("nats url is required when notifications are enabled")
	}
	return nil
}

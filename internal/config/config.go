package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"
)

type Config struct {
	Wallet  Wallet
	Solana  SolanaConfig
	Scan    ScanConfig
	State   StateConfig
	DB      DBConfig
	Redis   RedisConfig
	Alert   AlertConfig
	Server  ServerConfig
	Log     LogConfig
	Tracing TracingConfig
}

type Wallet struct {
	Address string
}

type SolanaConfig struct {
	RPCURL           string
	DailyCallLimit   int
	RateLimitRPS     float64
	RateLimitBurst   int
	RateLimitRetries int
	ServerRetries    int
	RateLimitBackoff time.Duration
	ServerRetryDelay time.Duration
}

type ScanConfig struct {
	PageSize              int
	MaxPages              int
	FetchConcurrency      int
	PauseEvery            int
	PauseFor              time.Duration
	ExcludeSelfTransfers  bool
	LargeTransferLamports int64
	FullScanInterval      time.Duration
	ScanTimeout           time.Duration
	ScheduleTimes         string
}

type StateConfig struct {
	Backend  string
	FilePath string
}

type DBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL    string
	Stream string
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Cooldown        time.Duration
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Wallet: Wallet{
			Address: getEnv("WALLET_ADDRESS", ""),
		},
		Solana: SolanaConfig{
			RPCURL:           getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
			DailyCallLimit:   getEnvInt("DAILY_API_CALL_LIMIT", 100000),
			RateLimitRPS:     getEnvFloat("RPC_RATE_LIMIT_RPS", 8),
			RateLimitBurst:   getEnvInt("RPC_RATE_LIMIT_BURST", 4),
			RateLimitRetries: getEnvInt("RPC_RATE_LIMIT_RETRIES", 5),
			ServerRetries:    getEnvInt("RPC_SERVER_RETRIES", 3),
			RateLimitBackoff: time.Duration(getEnvInt("RPC_RATE_LIMIT_BACKOFF_MS", 2000)) * time.Millisecond,
			ServerRetryDelay: time.Duration(getEnvInt("RPC_SERVER_RETRY_DELAY_MS", 1000)) * time.Millisecond,
		},
		Scan: ScanConfig{
			PageSize:              getEnvInt("SCAN_PAGE_SIZE", 1000),
			MaxPages:              getEnvInt("SCAN_MAX_PAGES", 200),
			FetchConcurrency:      getEnvInt("FETCH_CONCURRENCY", 10),
			PauseEvery:            getEnvInt("FETCH_PAUSE_EVERY", 50),
			PauseFor:              time.Duration(getEnvInt("FETCH_PAUSE_MS", 500)) * time.Millisecond,
			ExcludeSelfTransfers:  getEnvBool("EXCLUDE_SELF_TRANSFERS", false),
			LargeTransferLamports: int64(getEnvInt("LARGE_TRANSFER_LAMPORTS", 0)),
			FullScanInterval:      time.Duration(getEnvInt("FULL_SCAN_INTERVAL_HOURS", 168)) * time.Hour,
			ScanTimeout:           time.Duration(getEnvInt("SCAN_TIMEOUT_MIN", 30)) * time.Minute,
			ScheduleTimes:         getEnv("SCAN_TIMES", "06:00,18:00"),
		},
		State: StateConfig{
			Backend:  getEnv("STATE_BACKEND", StateBackendFile),
			FilePath: getEnv("STATE_FILE", "data/state.json"),
		},
		DB: DBConfig{
			URL:             getEnv("DB_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
			MigrationsDir:   getEnv("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", ""),
			Stream: getEnv("REDIS_STREAM", "tracker:scan_events"),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:        time.Duration(getEnvInt("ALERT_COOLDOWN_MIN", 30)) * time.Minute,
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("TRACING_ENDPOINT", ""),
			Insecure: getEnvBool("TRACING_INSECURE", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Wallet.Address == "" {
		return fmt.Errorf("WALLET_ADDRESS is required")
	}
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("SOLANA_RPC_URL is required")
	}
	if c.Solana.DailyCallLimit <= 0 {
		return fmt.Errorf("DAILY_API_CALL_LIMIT must be positive")
	}
	switch c.State.Backend {
	case StateBackendFile:
		if c.State.FilePath == "" {
			return fmt.Errorf("STATE_FILE is required when STATE_BACKEND=file")
		}
	case StateBackendPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("DB_URL is required when STATE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q",
			StateBackendFile, StateBackendPostgres, c.State.Backend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

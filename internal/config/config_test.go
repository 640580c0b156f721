package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WALLET_ADDRESS", "CreatorWallet111")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "CreatorWallet111", cfg.Wallet.Address)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.Solana.RPCURL)
	assert.Equal(t, 100000, cfg.Solana.DailyCallLimit)
	assert.Equal(t, float64(8), cfg.Solana.RateLimitRPS)
	assert.Equal(t, 4, cfg.Solana.RateLimitBurst)
	assert.Equal(t, 5, cfg.Solana.RateLimitRetries)
	assert.Equal(t, 3, cfg.Solana.ServerRetries)
	assert.Equal(t, 2*time.Second, cfg.Solana.RateLimitBackoff)
	assert.Equal(t, time.Second, cfg.Solana.ServerRetryDelay)
	assert.Equal(t, 1000, cfg.Scan.PageSize)
	assert.Equal(t, 200, cfg.Scan.MaxPages)
	assert.Equal(t, 10, cfg.Scan.FetchConcurrency)
	assert.Equal(t, 50, cfg.Scan.PauseEvery)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.PauseFor)
	assert.False(t, cfg.Scan.ExcludeSelfTransfers)
	assert.Equal(t, int64(0), cfg.Scan.LargeTransferLamports)
	assert.Equal(t, 168*time.Hour, cfg.Scan.FullScanInterval)
	assert.Equal(t, 30*time.Minute, cfg.Scan.ScanTimeout)
	assert.Equal(t, "06:00,18:00", cfg.Scan.ScheduleTimes)
	assert.Equal(t, StateBackendFile, cfg.State.Backend)
	assert.Equal(t, "data/state.json", cfg.State.FilePath)
	assert.Equal(t, "migrations", cfg.DB.MigrationsDir)
	assert.Equal(t, "tracker:scan_events", cfg.Redis.Stream)
	assert.Equal(t, 30*time.Minute, cfg.Alert.Cooldown)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Empty(t, cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.Insecure)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("WALLET_ADDRESS", "Wallet222")
	t.Setenv("SOLANA_RPC_URL", "https://rpc.example.com")
	t.Setenv("DAILY_API_CALL_LIMIT", "5000")
	t.Setenv("RPC_RATE_LIMIT_RPS", "2.5")
	t.Setenv("SCAN_PAGE_SIZE", "500")
	t.Setenv("SCAN_MAX_PAGES", "20")
	t.Setenv("FETCH_CONCURRENCY", "4")
	t.Setenv("EXCLUDE_SELF_TRANSFERS", "true")
	t.Setenv("LARGE_TRANSFER_LAMPORTS", "10000000000")
	t.Setenv("FULL_SCAN_INTERVAL_HOURS", "24")
	t.Setenv("SCAN_TIMES", "03:30")
	t.Setenv("STATE_BACKEND", "postgres")
	t.Setenv("DB_URL", "postgres://test:test@db:5432/tracker")
	t.Setenv("REDIS_URL", "redis://redis:6379")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.example/x")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("TRACING_ENDPOINT", "otel-collector:4317")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Wallet222", cfg.Wallet.Address)
	assert.Equal(t, "https://rpc.example.com", cfg.Solana.RPCURL)
	assert.Equal(t, 5000, cfg.Solana.DailyCallLimit)
	assert.Equal(t, 2.5, cfg.Solana.RateLimitRPS)
	assert.Equal(t, 500, cfg.Scan.PageSize)
	assert.Equal(t, 20, cfg.Scan.MaxPages)
	assert.Equal(t, 4, cfg.Scan.FetchConcurrency)
	assert.True(t, cfg.Scan.ExcludeSelfTransfers)
	assert.Equal(t, int64(10000000000), cfg.Scan.LargeTransferLamports)
	assert.Equal(t, 24*time.Hour, cfg.Scan.FullScanInterval)
	assert.Equal(t, "03:30", cfg.Scan.ScheduleTimes)
	assert.Equal(t, StateBackendPostgres, cfg.State.Backend)
	assert.Equal(t, "postgres://test:test@db:5432/tracker", cfg.DB.URL)
	assert.Equal(t, "redis://redis:6379", cfg.Redis.URL)
	assert.Equal(t, "https://hooks.slack.example/x", cfg.Alert.SlackWebhookURL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otel-collector:4317", cfg.Tracing.Endpoint)
}

func TestLoad_MissingWalletAddress(t *testing.T) {
	t.Setenv("WALLET_ADDRESS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WALLET_ADDRESS")
}

func TestValidate_PostgresRequiresDBURL(t *testing.T) {
	t.Setenv("WALLET_ADDRESS", "Wallet222")
	t.Setenv("STATE_BACKEND", "postgres")
	t.Setenv("DB_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_URL")
}

func TestValidate_UnknownBackend(t *testing.T) {
	t.Setenv("WALLET_ADDRESS", "Wallet222")
	t.Setenv("STATE_BACKEND", "s3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATE_BACKEND")
}

func TestValidate_NonPositiveDailyLimit(t *testing.T) {
	t.Setenv("WALLET_ADDRESS", "Wallet222")
	t.Setenv("DAILY_API_CALL_LIMIT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DAILY_API_CALL_LIMIT")
}

func TestGetEnvInt_InvalidValue(t *testing.T) {
	t.Setenv("TEST_INT", "not_a_number")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))
}

func TestGetEnvFloat_ValidValue(t *testing.T) {
	t.Setenv("TEST_FLOAT", "1.25")
	assert.Equal(t, 1.25, getEnvFloat("TEST_FLOAT", 9))
}

func TestGetEnvBool_InvalidValue(t *testing.T) {
	t.Setenv("TEST_BOOL", "maybe")
	assert.True(t, getEnvBool("TEST_BOOL", true))
}

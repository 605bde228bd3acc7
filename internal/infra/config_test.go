package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"quotefuse/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
app:
  name: "quotefuse"
venues:
  okx:
    enabled: true
    ws_url: "wss://ws.okx.com:8443/ws/v5/public"
    symbols: ["BTC-USDT-SWAP"]
quoting:
  symbol: "BTC_USDT"
  spread_bps: 10
  quote_size: 1
  max_position_notional: 50000
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.CooldownFloor())
	assert.Equal(t, 1500*time.Millisecond, cfg.Freshness())
	assert.Equal(t, 8*time.Second, cfg.DemeanHalfLife())
	assert.Equal(t, 0.1, cfg.Fusion.DemeanAlpha)
	assert.Equal(t, time.Minute, cfg.ResyncInterval())
	assert.Equal(t, "usdt", cfg.Execution.Settle)
	assert.Equal(t, "0.01", cfg.Quoting.PriceTolerance.String())

	min, max := cfg.BackoffBounds()
	assert.Equal(t, 250*time.Millisecond, min)
	assert.Equal(t, 5*time.Second, max)

	assert.Equal(t, "logs/quotefuse.log", cfg.Logging.Path)
	assert.False(t, cfg.ExecutionEnabled())
}

func TestLoadConfigLogPathOverride(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
logging:
  path: "/var/log/quotefuse/run.log"
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/log/quotefuse/run.log", cfg.Logging.Path)
}

func TestLoadConfigEnvOverridesCredentials(t *testing.T) {
	t.Setenv("QUOTEFUSE_GATE_KEY", "env-key")
	t.Setenv("QUOTEFUSE_GATE_SECRET", "env-secret")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
execution:
  ws_url: "wss://fx-ws.gateio.ws/v4/ws/usdt"
`))
	require.NoError(t, err)
	assert.True(t, cfg.ExecutionEnabled())
	assert.Equal(t, "env-key", cfg.Execution.AccessKey)
	assert.Equal(t, "env-secret", cfg.Execution.SecretKey)
}

func TestLoadConfigMissingCredentials(t *testing.T) {
	t.Setenv("QUOTEFUSE_GATE_KEY", "")
	t.Setenv("QUOTEFUSE_GATE_SECRET", "")

	_, err := LoadConfig(writeConfig(t, minimalConfig+`
execution:
  ws_url: "wss://fx-ws.gateio.ws/v4/ws/usdt"
`))
	require.Error(t, err)
	var cerr *domain.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestLoadConfigRejectsBadVenueURL(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
venues:
  bybit:
    enabled: true
    ws_url: "http://not-a-websocket"
    symbols: ["BTCUSDT"]
quoting:
  symbol: "BTC_USDT"
  spread_bps: 10
  quote_size: 1
  max_position_notional: 50000
`))
	assert.Error(t, err)
}

func TestLoadConfigRequiresSymbols(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
venues:
  okx:
    enabled: true
    ws_url: "wss://ws.okx.com:8443/ws/v5/public"
    symbols: []
quoting:
  symbol: "BTC_USDT"
  spread_bps: 10
  quote_size: 1
  max_position_notional: 50000
`))
	assert.Error(t, err)
}

func TestLoadConfigRejectsNonPositiveQuoting(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
quoting:
  symbol: "BTC_USDT"
  spread_bps: 0
  quote_size: 1
  max_position_notional: 50000
`))
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestBackoffBoundsOrdering(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, minimalConfig+`
reconnect:
  min_delay_ms: 10000
  max_delay_ms: 1000
`))
	assert.Error(t, err)
}

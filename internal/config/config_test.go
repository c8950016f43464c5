package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "serial", cfg.Transport)
	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialDevice)
	assert.Equal(t, 115200, cfg.SerialBaud)
	assert.True(t, cfg.SourceIDHex)
	assert.Equal(t, "catalog.yaml", cfg.CatalogPath)
	assert.Equal(t, 1000000, cfg.MaxFrames)
	assert.Equal(t, 60, cfg.FlushIntervalMs)
	assert.Equal(t, 5000, cfg.StaleTimeoutMs)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Empty(t, cfg.ClickHouseHost, "database sinks are opt-in")
}

func TestLoadConfigOverrides(t *testing.T) {
	env := `# capture rig
TRANSPORT=wireless
WIRELESS_ADDR=10.0.0.5:3333
SOURCE_ID_HEX=false
CATALOG_PATH="configs/bike.yaml"
MAX_FRAME_LIMIT=50000
ROLLOVER_COOLDOWN_MS=2000
SPOOL_DIR='/var/spool/cantrace'
CLICKHOUSE_HOST=ch.internal
CLICKHOUSE_PORT=9440
INFLUXDB_TOKEN=secret-token
API_PORT=9090

not a key value line
`
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(env), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "wireless", cfg.Transport)
	assert.Equal(t, "10.0.0.5:3333", cfg.WirelessAddr)
	assert.False(t, cfg.SourceIDHex)
	assert.Equal(t, "configs/bike.yaml", cfg.CatalogPath, "double quotes stripped")
	assert.Equal(t, 50000, cfg.MaxFrames)
	assert.Equal(t, 2000, cfg.RolloverCooldownMs)
	assert.Equal(t, "/var/spool/cantrace", cfg.SpoolDir, "single quotes stripped")
	assert.Equal(t, "ch.internal", cfg.ClickHouseHost)
	assert.Equal(t, 9440, cfg.ClickHousePort)
	assert.Equal(t, "secret-token", cfg.InfluxDBToken)
	assert.Equal(t, 9090, cfg.APIPort)

	// Untouched keys keep their defaults.
	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialDevice)
	assert.Equal(t, 1000, cfg.BatchSize)
}

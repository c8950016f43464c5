package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	// Transport selection
	Transport    string // serial, wireless, or bridge
	SerialDevice string
	SerialBaud   int
	WirelessAddr string
	BridgeSocket string

	// Identifier handling: whether transport identifiers are hex text.
	// Explicit by design; all-digit hex cannot be told apart from decimal.
	SourceIDHex bool

	// Catalog
	CatalogPath string

	// Engine
	MaxFrames          int
	FlushIntervalMs    int
	SweepIntervalMs    int
	StaleTimeoutMs     int
	RolloverCooldownMs int
	SpoolDir           string

	// ClickHouse
	ClickHouseHost       string
	ClickHousePort       int
	ClickHouseDatabase   string
	ClickHouseUsername   string
	ClickHousePassword   string
	ClickHouseTable      string
	ClickHouseStatsTable string

	// InfluxDB
	InfluxDBURL      string
	InfluxDBToken    string
	InfluxDBDatabase string

	// General
	StatsInterval int
	BatchSize     int
	APIPort       int
}

// LoadConfig loads configuration from .env file
func LoadConfig(envFile string) (*Config, error) {
	// Set default values
	config := &Config{
		Transport:            "serial",
		SerialDevice:         "/dev/ttyUSB0",
		SerialBaud:           115200,
		WirelessAddr:         "localhost:3333",
		BridgeSocket:         "/tmp/cantrace.sock",
		SourceIDHex:          true,
		CatalogPath:          "catalog.yaml",
		MaxFrames:            1000000,
		FlushIntervalMs:      60,
		SweepIntervalMs:      1000,
		StaleTimeoutMs:       5000,
		RolloverCooldownMs:   5000,
		SpoolDir:             "./spool",
		ClickHouseHost:       "",
		ClickHousePort:       9000,
		ClickHouseDatabase:   "default",
		ClickHouseUsername:   "default",
		ClickHousePassword:   "",
		ClickHouseTable:      "can_frames",
		ClickHouseStatsTable: "can_session_stats",
		InfluxDBURL:          "http://localhost:8086",
		InfluxDBToken:        "",
		InfluxDBDatabase:     "can_signals",
		StatsInterval:        10,
		BatchSize:            1000,
		APIPort:              8080,
	}

	// Try to load .env file
	if envFile == "" {
		envFile = ".env"
	}

	file, err := os.Open(envFile)
	if err != nil {
		// If .env file doesn't exist, return default config
		if os.IsNotExist(err) {
			fmt.Printf("No .env file found at %s, using default configuration\n", envFile)
			return config, nil
		}
		return nil, fmt.Errorf("error opening .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		value = strings.Trim(value, `"'`)

		// Set configuration values
		switch key {
		case "TRANSPORT":
			config.Transport = value
		case "SERIAL_DEVICE":
			config.SerialDevice = value
		case "SERIAL_BAUD":
			config.SerialBaud, _ = strconv.Atoi(value)
		case "WIRELESS_ADDR":
			config.WirelessAddr = value
		case "BRIDGE_SOCKET":
			config.BridgeSocket = value
		case "SOURCE_ID_HEX":
			config.SourceIDHex, _ = strconv.ParseBool(value)
		case "CATALOG_PATH":
			config.CatalogPath = value
		case "MAX_FRAME_LIMIT":
			config.MaxFrames, _ = strconv.Atoi(value)
		case "FLUSH_INTERVAL_MS":
			config.FlushIntervalMs, _ = strconv.Atoi(value)
		case "SWEEP_INTERVAL_MS":
			config.SweepIntervalMs, _ = strconv.Atoi(value)
		case "STALE_TIMEOUT_MS":
			config.StaleTimeoutMs, _ = strconv.Atoi(value)
		case "ROLLOVER_COOLDOWN_MS":
			config.RolloverCooldownMs, _ = strconv.Atoi(value)
		case "SPOOL_DIR":
			config.SpoolDir = value
		case "CLICKHOUSE_HOST":
			config.ClickHouseHost = value
		case "CLICKHOUSE_PORT":
			config.ClickHousePort, _ = strconv.Atoi(value)
		case "CLICKHOUSE_DATABASE":
			config.ClickHouseDatabase = value
		case "CLICKHOUSE_USERNAME":
			config.ClickHouseUsername = value
		case "CLICKHOUSE_PASSWORD":
			config.ClickHousePassword = value
		case "CLICKHOUSE_TABLE":
			config.ClickHouseTable = value
		case "CLICKHOUSE_STATS_TABLE":
			config.ClickHouseStatsTable = value
		case "INFLUXDB_URL":
			config.InfluxDBURL = value
		case "INFLUXDB_TOKEN":
			config.InfluxDBToken = value
		case "INFLUXDB_DATABASE":
			config.InfluxDBDatabase = value
		case "STATS_INTERVAL":
			config.StatsInterval, _ = strconv.Atoi(value)
		case "BATCH_SIZE":
			config.BatchSize, _ = strconv.Atoi(value)
		case "API_PORT":
			config.APIPort, _ = strconv.Atoi(value)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	return config, nil
}

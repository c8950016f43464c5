package influxdb

// Config holds InfluxDB connection settings
type Config struct {
	URL      string
	Token    string
	Database string
}

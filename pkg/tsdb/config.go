package tsdb

import (
	"os"
	"time"
)

const (
	defaultPrecision = "s"
	defaultTimeout   = 3 * time.Second
)

// Config holds the line-protocol endpoint settings.
type Config struct {
	URL       string
	Org       string
	Bucket    string
	Token     string
	Precision string
	// Timeout bounds a single write. It must stay well below the invocation
	// deadline so the sink never causes an overrun.
	Timeout time.Duration
}

// LoadConfigFromEnv loads the time-series sink configuration from environment
// variables. All values are optional: an empty INFLUX_URL disables the sink.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		URL:       os.Getenv("INFLUX_URL"),
		Org:       os.Getenv("INFLUX_ORG"),
		Bucket:    os.Getenv("INFLUX_BUCKET"),
		Token:     os.Getenv("INFLUX_TOKEN"),
		Precision: os.Getenv("INFLUX_PRECISION"),
	}
	if d, err := time.ParseDuration(os.Getenv("INFLUX_TIMEOUT")); err == nil {
		cfg.Timeout = d
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Precision == "" {
		c.Precision = defaultPrecision
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

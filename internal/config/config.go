package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config holds every run parameter. Values come from flags, with environment
// variables as fallbacks and the defaults below behind both.
type Config struct {
	NumClients      int
	CyclesPerClient int
	MaxConcurrent   int

	HTTPURL string
	WSURL   string

	ResponseLengthWords int
	TokenDelay          time.Duration

	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration
	RampDelay         time.Duration

	ReconnectAttempts  int
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	ProgressInterval time.Duration

	MetricsAddr string
	ReportFile  string
	LogDir      string
}

// Load parses args into a Config. Flags win over environment variables, which
// win over defaults.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := pflag.NewFlagSet("gateway-bench", pflag.ContinueOnError)
	fs.IntVar(&cfg.NumClients, "clients", envInt("NUM_CLIENTS", 10), "number of simulated clients")
	fs.IntVar(&cfg.CyclesPerClient, "cycles", envInt("CYCLES_PER_CLIENT", 5), "request cycles per client")
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent", envInt("MAX_CONCURRENT_CLIENTS", 100), "max clients running at once")

	fs.StringVar(&cfg.HTTPURL, "http-url", envStr("GATEWAY_HTTP_URL", "http://localhost:9000"), "gateway REST base URL")
	fs.StringVar(&cfg.WSURL, "ws-url", envStr("GATEWAY_WS_URL", "ws://localhost:9001/connection/websocket"), "gateway websocket URL")

	fs.IntVar(&cfg.ResponseLengthWords, "length", envInt("RESPONSE_LENGTH_WORDS", 100), "emulated response length in words")
	fs.DurationVar(&cfg.TokenDelay, "delay", envDuration("TOKEN_DELAY", 10*time.Millisecond), "emulated per-token delay")

	fs.DurationVar(&cfg.ConnectionTimeout, "connect-timeout", envDuration("CONNECTION_TIMEOUT", 30*time.Second), "session and stream connect timeout")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", envDuration("REQUEST_TIMEOUT", 120*time.Second), "per-wait cycle timeout")
	fs.DurationVar(&cfg.RampDelay, "ramp-delay", envDuration("CLIENT_RAMP_DELAY", 0), "pause between client launches")

	fs.IntVar(&cfg.ReconnectAttempts, "reconnect-attempts", envInt("RECONNECT_ATTEMPTS", 3), "max stream reconnection attempts")
	fs.DurationVar(&cfg.ReconnectBaseDelay, "reconnect-base", envDuration("RECONNECT_BASE_DELAY", time.Second), "first reconnection backoff delay")
	fs.DurationVar(&cfg.ReconnectMaxDelay, "reconnect-cap", envDuration("RECONNECT_MAX_DELAY", 10*time.Second), "reconnection backoff cap")

	fs.DurationVar(&cfg.ProgressInterval, "progress-interval", envDuration("PROGRESS_INTERVAL", 10*time.Second), "progress log interval")

	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", envStr("METRICS_ADDR", ""), "address for the /metrics listener (empty disables)")
	fs.StringVar(&cfg.ReportFile, "report", envStr("REPORT_FILE", ""), "markdown report path (empty disables)")
	fs.StringVar(&cfg.LogDir, "log-dir", envStr("LOG_DIR", "logs"), "directory for log files (empty disables file logging)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.NumClients <= 0 {
		return fmt.Errorf("clients must be positive")
	}
	if c.CyclesPerClient <= 0 {
		return fmt.Errorf("cycles must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max-concurrent must be positive")
	}
	if c.HTTPURL == "" {
		return fmt.Errorf("http-url is required")
	}
	if c.WSURL == "" {
		return fmt.Errorf("ws-url is required")
	}
	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connect-timeout must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be positive")
	}
	if c.ReconnectAttempts <= 0 {
		return fmt.Errorf("reconnect-attempts must be positive")
	}
	if c.ReconnectBaseDelay <= 0 || c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		return fmt.Errorf("reconnect delays must be positive with cap >= base")
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress-interval must be positive")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

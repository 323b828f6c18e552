package market

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marketpulse/pkg/confkit"
)

// Config describes the market data pipeline: which exchange feeds it,
// which symbols it watches, and how its buffers and caches are sized.
type Config struct {
	Exchange string   `yaml:"exchange"`
	APIKey   string   `yaml:"api_key"`
	Symbols  []string `yaml:"symbols"`

	// KlineWindow caps the per-stream rolling buffer; oldest bars are
	// evicted first.
	KlineWindow int `yaml:"kline_window"`
	// SubscriberBuffer sizes each fan-out channel.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
	// BatchSize limits how many streams one subscribe frame carries.
	BatchSize int `yaml:"batch_size"`

	FundingTTLRaw  string        `yaml:"funding_ttl"`
	FundingTTL     time.Duration `yaml:"-"`
	TimeoutRaw     string        `yaml:"timeout"`
	Timeout        time.Duration `yaml:"-"`
	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`
}

const (
	defaultKlineWindow      = 120
	defaultSubscriberBuffer = 64
	defaultBatchSize        = 40
	defaultFundingTTL       = time.Hour
)

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads market configuration from the default project location
// and panics on error.
func MustLoad() *Config {
	path := confkit.MustProjectPath("etc/market.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal market config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	c.Exchange = strings.TrimSpace(os.ExpandEnv(c.Exchange))
	c.APIKey = strings.TrimSpace(os.ExpandEnv(c.APIKey))
	c.FundingTTLRaw = strings.TrimSpace(os.ExpandEnv(c.FundingTTLRaw))
	c.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(c.TimeoutRaw))
	c.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(c.HTTPTimeoutRaw))

	for i, sym := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(os.ExpandEnv(sym)))
	}

	if c.KlineWindow <= 0 {
		c.KlineWindow = defaultKlineWindow
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = defaultSubscriberBuffer
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}

	var err error
	if c.FundingTTL, err = parseDuration("funding_ttl", c.FundingTTLRaw, defaultFundingTTL); err != nil {
		return err
	}
	if c.Timeout, err = parseDuration("timeout", c.TimeoutRaw, 8*time.Second); err != nil {
		return err
	}
	if c.HTTPTimeout, err = parseDuration("http_timeout", c.HTTPTimeoutRaw, 30*time.Second); err != nil {
		return err
	}
	return nil
}

func parseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("market config: invalid %s %q: %w", name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("market config: %s must be positive, got %s", name, d)
	}
	return d, nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("market config: symbols cannot be empty")
	}
	for _, sym := range c.Symbols {
		if sym == "" {
			return fmt.Errorf("market config: symbol cannot be empty")
		}
	}
	return nil
}

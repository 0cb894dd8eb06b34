package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	PushURL string `yaml:"push_url"`
	PullURL string `yaml:"pull_url"`

	PullInterval  time.Duration `yaml:"pull_interval"`
	StoreCapacity int           `yaml:"store_capacity"`

	ReconnectBase time.Duration `yaml:"reconnect_base"`
	ReconnectCap  time.Duration `yaml:"reconnect_cap"`

	APIAddr string `yaml:"api_addr"`

	// Empty NATSURL disables the relay.
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	LogDebug bool `yaml:"log_debug"`
}

// UnmarshalYAML accepts durations in "10s" form. yaml.v3 cannot decode a
// duration string into time.Duration on its own.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		PushURL       string `yaml:"push_url"`
		PullURL       string `yaml:"pull_url"`
		PullInterval  string `yaml:"pull_interval"`
		StoreCapacity *int   `yaml:"store_capacity"`
		ReconnectBase string `yaml:"reconnect_base"`
		ReconnectCap  string `yaml:"reconnect_cap"`
		APIAddr       string `yaml:"api_addr"`
		NATSURL       string `yaml:"nats_url"`
		NATSSubject   string `yaml:"nats_subject"`
		LogDebug      *bool  `yaml:"log_debug"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}

	if r.PushURL != "" {
		c.PushURL = r.PushURL
	}
	if r.PullURL != "" {
		c.PullURL = r.PullURL
	}
	if r.APIAddr != "" {
		c.APIAddr = r.APIAddr
	}
	if r.NATSURL != "" {
		c.NATSURL = r.NATSURL
	}
	if r.NATSSubject != "" {
		c.NATSSubject = r.NATSSubject
	}
	if r.StoreCapacity != nil {
		c.StoreCapacity = *r.StoreCapacity
	}
	if r.LogDebug != nil {
		c.LogDebug = *r.LogDebug
	}

	for _, f := range []struct {
		val string
		dst *time.Duration
	}{
		{r.PullInterval, &c.PullInterval},
		{r.ReconnectBase, &c.ReconnectBase},
		{r.ReconnectCap, &c.ReconnectCap},
	} {
		if f.val == "" {
			continue
		}
		d, err := time.ParseDuration(f.val)
		if err != nil {
			return fmt.Errorf("config: bad duration %q: %w", f.val, err)
		}
		*f.dst = d
	}
	return nil
}

func Default() Config {
	return Config{
		PushURL:       "ws://localhost:8000/ws/alerts",
		PullURL:       "http://localhost:8000/alerts/summary",
		PullInterval:  10 * time.Second,
		StoreCapacity: 500,
		ReconnectBase: 1 * time.Second,
		ReconnectCap:  30 * time.Second,
		APIAddr:       "127.0.0.1:7171",
		NATSSubject:   "console.incidents",
	}
}

// Load reads the YAML file at path (missing file falls back to defaults),
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config read error: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config parse error: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CONSOLE_PUSH_URL"); v != "" {
		c.PushURL = v
	}
	if v := os.Getenv("CONSOLE_PULL_URL"); v != "" {
		c.PullURL = v
	}
	if v := os.Getenv("CONSOLE_API_ADDR"); v != "" {
		c.APIAddr = v
	}
	if v := os.Getenv("CONSOLE_NATS_URL"); v != "" {
		c.NATSURL = v
	}
}

func (c *Config) validate() error {
	if c.PushURL == "" {
		return fmt.Errorf("config: push_url is required")
	}
	if c.PullURL == "" {
		return fmt.Errorf("config: pull_url is required")
	}
	if c.PullInterval <= 0 {
		c.PullInterval = 10 * time.Second
	}
	if c.StoreCapacity <= 0 {
		c.StoreCapacity = 500
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 1 * time.Second
	}
	if c.ReconnectCap < c.ReconnectBase {
		c.ReconnectCap = 30 * time.Second
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kloudmate/jenkins-exporter/internal/logging"
	"github.com/kloudmate/jenkins-exporter/pkg/histogram"
)

type Config struct {
	Jenkins struct {
		URL      string        `yaml:"url" env:"JENKINS_SERVER" env-default:"http://jenkins:8080"`
		User     string        `yaml:"user" env:"JENKINS_USER"`
		Password string        `yaml:"password" env:"JENKINS_PASSWORD"`
		Insecure bool          `yaml:"insecure" env:"JENKINS_INSECURE"`
		Timeout  time.Duration `yaml:"timeout" env:"JENKINS_TIMEOUT" env-default:"10s"`
	} `yaml:"jenkins"`

	Server struct {
		Port            int           `yaml:"port" env:"VIRTUAL_PORT" env-default:"9118"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Histogram struct {
		Bounds []float64 `yaml:"bounds"`
		Job    string    `yaml:"job"`
		Pool   string    `yaml:"pool"`
	} `yaml:"histogram"`

	// PollInterval > 0 serves scrapes from a background snapshot refreshed
	// on this interval instead of calling Jenkins on every scrape.
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`

	Debug bool `yaml:"debug" env:"DEBUG"`

	Logging logging.Config `yaml:"logging"`
}

// Flags are the command line options. Non-zero values override every other
// source.
type Flags struct {
	Jenkins      string        `short:"j" help:"Jenkins server URL"`
	User         string        `help:"Jenkins user"`
	Password     string        `help:"Jenkins password or API token"`
	Port         int           `short:"p" help:"Port to expose metrics on"`
	Insecure     bool          `short:"k" help:"Skip TLS certificate verification"`
	Timeout      time.Duration `help:"Timeout for Jenkins API requests"`
	PollInterval time.Duration `name:"poll-interval" help:"Refresh job status in the background on this interval"`
	Config       string        `short:"c" help:"Optional YAML configuration file" type:"path"`
	EnvFile      string        `name:"env-file" help:"Optional .env file" type:"path"`
	Debug        bool          `help:"Enable debug logging"`
}

// Load resolves the configuration: YAML file, then .env file, then the
// process environment, then flags.
func Load(flags Flags) (*Config, error) {
	var cfg Config

	if flags.Config != "" {
		data, err := os.ReadFile(flags.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if flags.EnvFile != "" {
		if err := godotenv.Load(flags.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	applyFlags(&cfg, flags)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyFlags(cfg *Config, flags Flags) {
	if flags.Jenkins != "" {
		cfg.Jenkins.URL = flags.Jenkins
	}
	if flags.User != "" {
		cfg.Jenkins.User = flags.User
	}
	if flags.Password != "" {
		cfg.Jenkins.Password = flags.Password
	}
	if flags.Insecure {
		cfg.Jenkins.Insecure = true
	}
	if flags.Timeout != 0 {
		cfg.Jenkins.Timeout = flags.Timeout
	}
	if flags.Port != 0 {
		cfg.Server.Port = flags.Port
	}
	if flags.PollInterval != 0 {
		cfg.PollInterval = flags.PollInterval
	}
	if flags.Debug {
		cfg.Debug = true
	}
}

func setDefaults(cfg *Config) {
	cfg.Jenkins.URL = strings.TrimRight(cfg.Jenkins.URL, "/")

	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if len(cfg.Histogram.Bounds) == 0 {
		cfg.Histogram.Bounds = append([]float64(nil), histogram.DefaultBounds...)
	}

	if cfg.Histogram.Job == "" {
		cfg.Histogram.Job = "jenkins_api"
	}

	if cfg.Histogram.Pool == "" {
		if u, err := url.Parse(cfg.Jenkins.URL); err == nil {
			cfg.Histogram.Pool = u.Hostname()
		}
	}

	if cfg.Debug {
		cfg.Logging.Level = "debug"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Logging.File != "" && cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Jenkins.URL)
	if err != nil {
		return fmt.Errorf("invalid jenkins url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid jenkins url %q: must be an absolute http(s) URL", c.Jenkins.URL)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}

	if c.Jenkins.Timeout <= 0 {
		return errors.New("jenkins timeout must be positive")
	}

	if c.PollInterval < 0 {
		return errors.New("poll interval must not be negative")
	}

	if err := histogram.ValidateBounds(c.Histogram.Bounds); err != nil {
		return fmt.Errorf("invalid histogram bounds: %w", err)
	}
	if c.Histogram.Bounds[0] <= 0 {
		return fmt.Errorf("invalid histogram bounds: first bound %v must be positive", c.Histogram.Bounds[0])
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}

// ListenAddress is the address the metrics server binds.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

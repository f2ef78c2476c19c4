// Package config holds run settings: defaults, an optional YAML file
// validated against a CUE schema, then command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grantcarthew/sitesnap/internal/driver"
	"github.com/grantcarthew/sitesnap/internal/wait"
)

// Config is the complete configuration for one run.
type Config struct {
	URL      string `yaml:"url"`
	LogLevel int    `yaml:"log_level"`

	Driver    string `yaml:"driver"`
	Headless  bool   `yaml:"headless"`
	NoSandbox bool   `yaml:"no_sandbox"`
	Chrome    string `yaml:"chrome"`
	Port      int    `yaml:"port"`
	RemoteURL string `yaml:"remote_url"`

	ElementClass  string        `yaml:"element_class"`
	AjaxCounter   string        `yaml:"ajax_counter"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	SettleTimeout time.Duration `yaml:"settle_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`

	LogCapacity int  `yaml:"log_capacity"`
	JSON        bool `yaml:"json"`
	NoColor     bool `yaml:"no_color"`
}

// Default returns the stock configuration.
func Default() Config {
	w := wait.DefaultOptions()
	return Config{
		Driver:        driver.BackendCDP,
		Headless:      true,
		ElementClass:  w.ElementClass,
		AjaxCounter:   w.AjaxCounter,
		ReadyTimeout:  w.ReadyTimeout,
		SettleTimeout: w.SettleTimeout,
		PollInterval:  w.PollInterval,
		LogCapacity:   driver.DefaultLogCapacity,
	}
}

// Load reads path over the defaults. The file is schema-checked first so
// typos in keys are reported rather than ignored.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := validate(path, data); err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that flags can set outside the schema's reach.
func (c Config) Validate() error {
	var errs []error
	if c.Driver != driver.BackendCDP && c.Driver != driver.BackendRod {
		errs = append(errs, fmt.Errorf("driver must be %s or %s, got %q", driver.BackendCDP, driver.BackendRod, c.Driver))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.ReadyTimeout <= 0 {
		errs = append(errs, errors.New("ready timeout must be positive"))
	}
	if c.SettleTimeout <= 0 {
		errs = append(errs, errors.New("settle timeout must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.AjaxCounter == "" {
		errs = append(errs, errors.New("ajax counter expression is empty"))
	}
	return errors.Join(errs...)
}

// WaitOptions projects the waiter settings.
func (c Config) WaitOptions() wait.Options {
	return wait.Options{
		ReadyTimeout:  c.ReadyTimeout,
		SettleTimeout: c.SettleTimeout,
		PollInterval:  c.PollInterval,
		ElementClass:  c.ElementClass,
		AjaxCounter:   c.AjaxCounter,
	}
}

// DriverOptions projects the browser settings.
func (c Config) DriverOptions() driver.Options {
	return driver.Options{
		Backend:     c.Driver,
		Chrome:      c.Chrome,
		Headless:    c.Headless,
		NoSandbox:   c.NoSandbox,
		Port:        c.Port,
		RemoteURL:   c.RemoteURL,
		LogCapacity: c.LogCapacity,
	}
}

// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mwiater/ragview/internal/search"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultStreamPath is the service route that answers with an event stream.
	DefaultStreamPath = "/api/rag/stream"
	// defaultRequestTimeout bounds one streamed search, headers to last frame.
	defaultRequestTimeout = 60 * time.Second
	// defaultCharDelay is the reveal cadence of summary text.
	defaultCharDelay = 35 * time.Millisecond
	// defaultTopK is the number of results requested when the config omits it.
	defaultTopK = 5
	// defaultTemperature is used when the config omits a temperature.
	defaultTemperature = 0.7
	// defaultProxyListen is the proxy's listen address.
	defaultProxyListen = ":3000"
	// defaultLogFile is where logs go when no path is configured.
	defaultLogFile = "ragview.log"
)

// Config represents the top-level application configuration.
type Config struct {
	BaseURL        string   `json:"baseURL" yaml:"baseURL" mapstructure:"baseURL"`
	StreamPath     string   `json:"streamPath,omitempty" yaml:"streamPath,omitempty" mapstructure:"streamPath"`
	TimeoutSeconds int      `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	CharDelayMs    int      `json:"charDelayMs,omitempty" yaml:"charDelayMs,omitempty" mapstructure:"charDelayMs"`
	TopK           int      `json:"topK,omitempty" yaml:"topK,omitempty" mapstructure:"topK"`
	Temperature    *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	Debug          bool     `json:"debug" yaml:"debug" mapstructure:"debug"`
	LogFile        string   `json:"logFile,omitempty" yaml:"logFile,omitempty" mapstructure:"logFile"`
	LogLevel       string   `json:"logLevel,omitempty" yaml:"logLevel,omitempty" mapstructure:"logLevel"`
	Metrics        bool     `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	MetricsListen  string   `json:"metricsListen,omitempty" yaml:"metricsListen,omitempty" mapstructure:"metricsListen"`
	Proxy          Proxy    `json:"proxy" yaml:"proxy" mapstructure:"proxy"`
	ConfigPath     string   `json:"-" yaml:"-" mapstructure:"-"`
}

// Proxy configures the forwarding proxy command.
type Proxy struct {
	Listen         string `json:"listen,omitempty" yaml:"listen,omitempty" mapstructure:"listen"`
	Upstream       string `json:"upstream,omitempty" yaml:"upstream,omitempty" mapstructure:"upstream"`
	TimeoutSeconds int    `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// RequestTimeout returns the timeout for one streamed search, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CharDelay returns the reveal cadence.
func (c Config) CharDelay() time.Duration {
	if c.CharDelayMs <= 0 {
		return defaultCharDelay
	}
	return time.Duration(c.CharDelayMs) * time.Millisecond
}

// Endpoint returns the absolute URL searches are posted to.
func (c Config) Endpoint() string {
	path := strings.TrimSpace(c.StreamPath)
	if path == "" {
		path = DefaultStreamPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + path
}

// SearchOptions returns the default generation parameters for a query.
func (c Config) SearchOptions() search.Options {
	opts := search.Options{TopK: c.TopK, Temperature: defaultTemperature}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if c.Temperature != nil {
		opts.Temperature = *c.Temperature
	}
	return opts
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return defaultLogFile
}

// LogLevelName returns the effective log level.
func (c Config) LogLevelName() string {
	if lvl := strings.TrimSpace(c.LogLevel); lvl != "" {
		return lvl
	}
	if c.Debug {
		return "debug"
	}
	return "info"
}

// ProxyListen returns the proxy's listen address.
func (c Config) ProxyListen() string {
	if addr := strings.TrimSpace(c.Proxy.Listen); addr != "" {
		return addr
	}
	return defaultProxyListen
}

// ProxyTimeout returns the proxy's upper bound on the upstream exchange.
func (c Config) ProxyTimeout() time.Duration {
	if c.Proxy.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.Proxy.TimeoutSeconds) * time.Second
}

// Validate checks the settings a search needs.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, errors.New("baseURL is required"))
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("baseURL %q is not an absolute URL", c.BaseURL))
	}
	if c.TopK < 0 {
		errs = append(errs, fmt.Errorf("topK must be positive, got %d", c.TopK))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 1) {
		errs = append(errs, fmt.Errorf("temperature must be within [0,1], got %v", *c.Temperature))
	}
	if c.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %d", c.TimeoutSeconds))
	}
	if c.CharDelayMs < 0 {
		errs = append(errs, fmt.Errorf("charDelayMs must not be negative, got %d", c.CharDelayMs))
	}
	return errors.Join(errs...)
}

// Load reads the application configuration from a JSON file at path.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %q: %w", path, err)
	}
	config.ConfigPath = path
	return config, nil
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}

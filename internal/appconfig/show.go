// internal/appconfig/show.go
package appconfig

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp"
	"gopkg.in/yaml.v3"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	if cfg == nil {
		cfg = &Config{}
	}
	opts := cfg.SearchOptions()
	fmt.Fprintf(out, "  Base URL:        %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Endpoint:        %s\n", cfg.Endpoint())
	fmt.Fprintf(out, "  Timeout:         %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Char Delay:      %s\n", cfg.CharDelay())
	fmt.Fprintf(out, "  Top K:           %d\n", opts.TopK)
	fmt.Fprintf(out, "  Temperature:     %.2f\n", opts.Temperature)
	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Log File:        %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Log Level:       %s\n", cfg.LogLevelName())
	fmt.Fprintf(out, "  Metrics:         %v\n", cfg.Metrics)
	if cfg.MetricsListen != "" {
		fmt.Fprintf(out, "  Metrics Listen:  %s\n", cfg.MetricsListen)
	}
	fmt.Fprintf(out, "  Proxy Listen:    %s\n", cfg.ProxyListen())
	fmt.Fprintf(out, "  Proxy Upstream:  %s\n", cfg.Proxy.Upstream)
	fmt.Fprintf(out, "  Proxy Timeout:   %s\n", cfg.ProxyTimeout())
}

// ShowConfigYAML writes cfg as YAML.
func ShowConfigYAML(out io.Writer, cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// DumpConfig pretty-prints the raw configuration value.
func DumpConfig(out io.Writer, cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	_, err := pp.Fprintln(out, cfg)
	return err
}

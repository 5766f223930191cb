// internal/commands/root.go
package ragview

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mwiater/ragview/internal/appconfig"
	"github.com/mwiater/ragview/internal/logging"
	"github.com/mwiater/ragview/internal/metrics"
	"github.com/mwiater/ragview/internal/stream"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "ragview",
	Short:        "ragview is a terminal client for streaming archive search",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfigLoaded(cmd); err != nil {
			return err
		}

		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ConfigPath = viper.ConfigFileUsed()
		currentConfig = &cfg

		if _, err := logging.Init(logging.Options{
			Path:    cfg.LogFilePath(),
			Level:   cfg.LogLevelName(),
			Console: viper.GetBool("logConsole"),
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.L().Debug("configuration loaded",
			zap.String("config", cfg.ConfigPath),
			zap.String("endpoint", cfg.Endpoint()),
		)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	err := rootCmd.Execute()
	_ = logging.Close()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file, JSON or YAML (e.g., config/config.json)")

	rootCmd.PersistentFlags().String("baseURL", "", "base URL of the search service")
	rootCmd.PersistentFlags().String("streamPath", appconfig.DefaultStreamPath, "path of the streaming search route")
	rootCmd.PersistentFlags().Int("timeout", 60, "seconds allowed for one streamed search")
	rootCmd.PersistentFlags().Int("charDelayMs", 35, "milliseconds between revealed summary characters")
	rootCmd.PersistentFlags().Int("topK", 5, "number of results to request")
	rootCmd.PersistentFlags().Float64("temperature", 0.7, "summary temperature within [0,1]")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")
	rootCmd.PersistentFlags().String("logLevel", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("logConsole", false, "also log to stderr")
	rootCmd.PersistentFlags().Bool("metrics", false, "record Prometheus stream metrics")
	rootCmd.PersistentFlags().String("metricsListen", "", "address to expose /metrics on while searching")

	for _, name := range []string{
		"baseURL", "streamPath", "timeout", "charDelayMs", "topK", "temperature",
		"debug", "logFile", "logLevel", "logConsole", "metrics", "metricsListen",
	} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// initConfig wires the config file and RAGVIEW_ environment variables into viper.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvPrefix("RAGVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// ensureConfigLoaded reads the config file. A missing default file is fine;
// a missing file named with --config is not.
func ensureConfigLoaded(cmd *cobra.Command) error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if missing && !cmd.Flags().Changed("config") {
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// DebugEnabled returns true if debug mode is enabled.
func DebugEnabled() bool { return viper.GetBool("debug") }

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// searchConfig returns the loaded config after checking what a search needs.
func searchConfig() (*appconfig.Config, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, errors.New("configuration is not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSearcher builds the stream client for cfg, wrapped with metrics when enabled.
func newSearcher(cfg *appconfig.Config, logger *zap.Logger) stream.Searcher {
	var searcher stream.Searcher = stream.New(cfg, logger)
	if cfg.Metrics {
		searcher = metrics.NewSearcher(searcher, logger)
	}
	return searcher
}

// internal/commands/show_config.go
package ragview

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/ragview/internal/appconfig"
)

var (
	showConfigFormat string
	showConfigDump   bool
)

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the config file is loaded properly and overridden by environment variables and flags accordingly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg := GetConfig()
		switch {
		case showConfigDump:
			return appconfig.DumpConfig(out, cfg)
		case showConfigFormat == "yaml":
			return appconfig.ShowConfigYAML(out, cfg)
		case showConfigFormat == "text" || showConfigFormat == "":
			appconfig.ShowConfig(out, viper.ConfigFileUsed(), cfg)
			return nil
		default:
			return fmt.Errorf("unknown format %q (want text or yaml)", showConfigFormat)
		}
	},
}

func init() {
	showConfigCmd.Flags().StringVar(&showConfigFormat, "format", "text", "output format: text or yaml")
	showConfigCmd.Flags().BoolVar(&showConfigDump, "dump", false, "pretty-print the raw configuration value")
	showCmd.AddCommand(showConfigCmd)
}

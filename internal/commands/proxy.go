// internal/commands/proxy.go
package ragview

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/ragview/internal/logging"
	"github.com/mwiater/ragview/internal/proxy"
)

// proxyCmd implements 'proxy', which forwards /api/search to the upstream service.
var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Forward search requests to the upstream service",
	Long:  `The 'proxy' command serves /api/search and relays the upstream event stream verbatim. It also exposes /metrics and /healthz.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errors.New("configuration is not loaded")
		}
		if cfg.Proxy.Upstream == "" {
			return errors.New("proxy.upstream is required")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return proxy.New(cfg, logging.L()).ListenAndServe(ctx, cfg.ProxyListen())
	},
}

func init() {
	proxyCmd.Flags().String("listen", ":3000", "address the proxy listens on")
	proxyCmd.Flags().String("upstream", "", "URL of the upstream streaming search route")
	proxyCmd.Flags().Int("upstreamTimeout", 60, "seconds allowed for one upstream exchange")
	_ = viper.BindPFlag("proxy.listen", proxyCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("proxy.upstream", proxyCmd.Flags().Lookup("upstream"))
	_ = viper.BindPFlag("proxy.timeout", proxyCmd.Flags().Lookup("upstreamTimeout"))
	rootCmd.AddCommand(proxyCmd)
}

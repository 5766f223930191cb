// internal/commands/search.go
package ragview

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mwiater/ragview/internal/logging"
	"github.com/mwiater/ragview/internal/tui"
)

// runSearchUI is a function alias to tui.Run for starting the interactive interface.
var runSearchUI = tui.Run

// searchCmd represents the 'search' command, which starts the interactive search interface.
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Start the interactive search interface",
	Long:  `The 'search' command opens a terminal interface that streams ranked results and reveals the generated summary as it arrives.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := searchConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := logging.L()
		startMetricsListener(ctx, cfg, logger)
		return runSearchUI(ctx, cfg, newSearcher(cfg, logger), logger)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

// internal/commands/query.go
package ragview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mwiater/ragview/internal/logging"
	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/session"
	"github.com/mwiater/ragview/internal/stream"
	"github.com/mwiater/ragview/internal/util"
)

var (
	queryWidth int

	headingText = color.New(color.FgCyan, color.Bold).SprintFunc()
	rankText    = color.New(color.FgMagenta, color.Bold).SprintFunc()
	scoreText   = color.New(color.FgGreen).SprintFunc()
	subtleText  = color.New(color.FgHiBlack).SprintFunc()
	failedText  = color.New(color.FgRed).SprintFunc()
)

// queryCmd implements 'query', which streams one search to stdout.
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Stream one search to stdout",
	Long:  `The 'query' command runs a single search, reveals the summary on stdout as it streams and then lists the ranked results.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := searchConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := logging.L()
		startMetricsListener(ctx, cfg, logger)
		req := search.NewRequest(strings.Join(args, " "), cfg.SearchOptions())
		return runQuery(ctx, cmd.OutOrStdout(), newSearcher(cfg, logger), req, cfg.CharDelay(), queryWidth, logger)
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryWidth, "width", 80, "wrap result previews to this many columns")
	rootCmd.AddCommand(queryCmd)
}

// runQuery streams req through searcher, writing the summary at the reveal
// cadence and the ranked results once the summary is fully revealed.
func runQuery(ctx context.Context, out io.Writer, searcher stream.Searcher, req search.Request, delay time.Duration, width int, logger *zap.Logger) error {
	var (
		mu      sync.Mutex
		printed int
		results []search.Result
		sess    *session.Session
	)
	revealed := make(chan struct{}, 1)

	// flushLocked writes the revealed runes not printed yet. A trailing
	// backslash is held back until the next rune shows whether it starts an
	// escaped newline.
	flushLocked := func(final bool) {
		if sess == nil {
			return
		}
		text := sess.Visible()
		if !final && strings.HasSuffix(text, `\`) {
			text = strings.TrimSuffix(text, `\`)
		}
		runes := []rune(util.UnescapeNewlines(text))
		if len(runes) > printed {
			fmt.Fprint(out, string(runes[printed:]))
			printed = len(runes)
		}
	}

	created := session.New(searcher, delay, func(int) {
		mu.Lock()
		flushLocked(false)
		mu.Unlock()
		select {
		case revealed <- struct{}{}:
		default:
		}
	}, logger)
	defer created.Close()

	mu.Lock()
	sess = created
	fmt.Fprintf(out, "%s %s\n\n%s\n", headingText("Query:"), req.Query, headingText("Summary"))
	mu.Unlock()

	q := sess.Submit(ctx, req, stream.Callbacks{
		OnResults: func(r []search.Result) {
			mu.Lock()
			results = r
			mu.Unlock()
		},
	})

	var streamErr error
	select {
	case <-q.Done():
		streamErr = q.Wait()
	case <-ctx.Done():
		sess.Cancel()
		streamErr = ctx.Err()
	}

	for streamErr == nil && sess.Revealing() {
		select {
		case <-revealed:
		case <-ctx.Done():
			streamErr = ctx.Err()
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if streamErr == nil {
		flushLocked(true)
	}
	if printed == 0 {
		fmt.Fprint(out, subtleText("(no summary)"))
	}
	fmt.Fprintln(out)

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			fmt.Fprintln(out, subtleText("cancelled"))
			return nil
		}
		fmt.Fprintf(out, "\n%s %v\n", failedText("Error:"), streamErr)
		return streamErr
	}

	printResults(out, results, width)
	return nil
}

// printResults lists results in rank order.
func printResults(out io.Writer, results []search.Result, width int) {
	fmt.Fprintf(out, "\n%s\n", headingText(fmt.Sprintf("Results (%d)", len(results))))
	if len(results) == 0 {
		fmt.Fprintln(out, subtleText("No results."))
		return
	}
	for _, res := range results {
		fmt.Fprintf(out, "\n%s %s %s\n", rankText(fmt.Sprintf("#%d", res.Rank)), res.Title, scoreText(res.SimilarityPercent()))
		if res.OriginalTitle != "" && res.OriginalTitle != res.Title {
			fmt.Fprintf(out, "   %s\n", subtleText(res.OriginalTitle))
		}
		fmt.Fprintf(out, "   %s\n", subtleText(res.Locator))
		if res.Heading != "" {
			for _, line := range strings.Split(util.WrapToWidth(res.Heading, max(width-3, 20)), "\n") {
				fmt.Fprintf(out, "   %s\n", line)
			}
		}
	}
}

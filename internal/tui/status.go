// internal/tui/status.go
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/ragview/internal/metrics"
	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/stream"
)

// streamStatus is the header label for the current query.
type streamStatus string

const (
	// statusIdle is shown before the first query.
	statusIdle streamStatus = "idle"
	// statusSearching is shown until the first summary delta arrives.
	statusSearching streamStatus = "searching"
	// statusStreaming is shown while summary deltas arrive.
	statusStreaming streamStatus = "streaming"
	// statusDone is shown after completion.
	statusDone streamStatus = "done"
	// statusFailed is shown after a transport error.
	statusFailed streamStatus = "failed"
	// statusCancelled is shown after esc aborted the query.
	statusCancelled streamStatus = "cancelled"
)

// deriveStatus maps a router phase onto the header label.
func deriveStatus(router *stream.Router) streamStatus {
	if router == nil {
		return statusIdle
	}
	switch router.Phase() {
	case stream.PhaseIdle:
		return statusSearching
	case stream.PhaseStreaming:
		return statusStreaming
	case stream.PhaseCompleted:
		return statusDone
	case stream.PhaseFailed:
		return statusFailed
	default:
		return statusCancelled
	}
}

// metricsEnabled reports whether searcher is, or wraps, the metrics decorator.
func metricsEnabled(searcher stream.Searcher) bool {
	for searcher != nil {
		if _, ok := searcher.(*metrics.Searcher); ok {
			return true
		}
		wrapper, ok := searcher.(interface{ Wrapped() stream.Searcher })
		if !ok {
			return false
		}
		next := wrapper.Wrapped()
		if next == searcher {
			return false
		}
		searcher = next
	}
	return false
}

// renderStatusBadge returns a Lipgloss-styled badge string for the stream status.
func renderStatusBadge(status streamStatus) string {
	color := lipgloss.Color("229")
	switch status {
	case statusDone:
		color = lipgloss.Color("40")
	case statusFailed:
		color = lipgloss.Color("9")
	case statusCancelled:
		color = lipgloss.Color("245")
	}
	badgeStyle := lipgloss.NewStyle().Background(color).Foreground(lipgloss.Color("0")).Padding(0, 1).MarginLeft(1)
	return badgeStyle.Render(string(status))
}

// renderOptionsBadge returns a Lipgloss-styled badge string for the query options.
func renderOptionsBadge(opts search.Options) string {
	label := fmt.Sprintf("Top-K: %d  Temperature: %.1f", opts.TopK, opts.Temperature)
	badgeStyle := lipgloss.NewStyle().Background(lipgloss.Color("255")).Foreground(lipgloss.Color("0")).Padding(0, 1).MarginLeft(1)
	return badgeStyle.Render(label)
}

// renderMetricsBadge returns a Lipgloss-styled badge string for metrics collection.
func renderMetricsBadge(enabled bool) string {
	label := "Metrics: off"
	if enabled {
		label = "Metrics: on"
	}
	badgeStyle := lipgloss.NewStyle().Background(lipgloss.Color("0")).Foreground(lipgloss.Color("255")).Padding(0, 1).MarginLeft(1)
	return badgeStyle.Render(label)
}

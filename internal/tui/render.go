// internal/tui/render.go
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/ragview/internal/search"
	"github.com/mwiater/ragview/internal/util"
)

// summaryContextSize is how many top results the service feeds the summary.
const summaryContextSize = 5

var (
	headerStyle      = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	subtleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sectionStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	rankStyle        = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	titleStyle       = lipgloss.NewStyle().Bold(true).MarginLeft(1)
	similarityStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("40")).MarginLeft(1)
	contextBadge     = lipgloss.NewStyle().Background(lipgloss.Color("229")).Foreground(lipgloss.Color("0")).Padding(0, 1).MarginLeft(1)
	cardBorderStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	summaryCursorTxt = "▌"
)

// newRenderer builds a glamour renderer wrapping at width.
func newRenderer(width int) (*glamour.TermRenderer, error) {
	if width < 20 {
		width = 20
	}
	return glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
}

// renderSummary renders the revealed summary text as markdown. Without a
// renderer, or when rendering fails, the text is word-wrapped as is.
func renderSummary(r *glamour.TermRenderer, visible string, revealing bool, width int) string {
	text := util.UnescapeNewlines(visible)
	if strings.TrimSpace(text) == "" {
		if revealing {
			return subtleStyle.Render("Waiting for summary...")
		}
		return ""
	}

	var out string
	if r != nil {
		rendered, err := r.Render(text)
		if err == nil {
			out = strings.TrimRight(rendered, "\n")
		}
	}
	if out == "" {
		out = util.WrapToWidth(text, width)
	}
	if revealing {
		out += summaryCursorTxt
	}
	return out
}

// renderResults renders every result as a card.
func renderResults(results []search.Result, width int) string {
	if len(results) == 0 {
		return ""
	}
	cards := make([]string, 0, len(results))
	for i, res := range results {
		cards = append(cards, renderCard(res, i < summaryContextSize, width))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

// renderCard renders one search result.
func renderCard(res search.Result, inContext bool, width int) string {
	var header strings.Builder
	header.WriteString(rankStyle.Render(fmt.Sprintf("#%d", res.Rank)))
	header.WriteString(titleStyle.Render(res.Title))
	header.WriteString(similarityStyle.Render(res.SimilarityPercent()))
	if inContext {
		header.WriteString(contextBadge.Render("summary context"))
	}

	lines := []string{header.String()}
	if res.OriginalTitle != "" && res.OriginalTitle != res.Title {
		lines = append(lines, subtleStyle.Render(res.OriginalTitle))
	}

	var meta []string
	if res.PageNumber > 0 {
		meta = append(meta, fmt.Sprintf("page %d", res.PageNumber))
	}
	if res.Language != "" {
		meta = append(meta, res.Language)
	}
	if res.Locator != "" && !strings.HasPrefix(res.Locator, "page ") {
		meta = append(meta, res.Locator)
	}
	if len(meta) > 0 {
		lines = append(lines, subtleStyle.Render(strings.Join(meta, " · ")))
	}

	if res.Heading != "" {
		inner := width - 4
		if inner < 20 {
			inner = 20
		}
		lines = append(lines, util.WrapToWidth(res.Heading, inner))
	}

	style := cardBorderStyle
	if width > 4 {
		style = style.Width(width - 2)
	}
	return style.Render(strings.Join(lines, "\n"))
}

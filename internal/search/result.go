// internal/search/result.go
package search

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mwiater/ragview/internal/util"
)

// headingRunes bounds the preview-derived heading shown above a result.
const headingRunes = 100

// FromAPI converts wire items into display results. Items without an explicit
// rank are ranked by their position in the input (1-based). When ranks are
// present the output is stable-sorted by rank.
func FromAPI(items []APIResult) []Result {
	results := make([]Result, 0, len(items))
	for i, item := range items {
		rank := item.Rank
		if rank <= 0 {
			rank = i + 1
		}
		results = append(results, toResult(item, rank))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Rank < results[j].Rank
	})
	return results
}

func toResult(item APIResult, rank int) Result {
	preview := NormalizePreview(item.Preview)

	title := strings.TrimSpace(item.ArticleTitleTr)
	if title == "" {
		title = strings.TrimSpace(item.ArticleTitle)
	}
	if title == "" {
		title = fmt.Sprintf("Result %d", rank)
	}

	return Result{
		Rank:          rank,
		Similarity:    clampUnit(item.Similarity),
		PageID:        item.PageID,
		PageNumber:    item.PageNumber,
		ArticleID:     item.ArticleID,
		Title:         title,
		OriginalTitle: strings.TrimSpace(item.ArticleTitle),
		Locator:       locator(item),
		Language:      strings.TrimSpace(item.Language),
		Preview:       preview,
		Heading:       util.TruncateRunes(preview, headingRunes),
	}
}

// NormalizePreview collapses line breaks and runs of whitespace into single spaces.
func NormalizePreview(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// SimilarityPercent renders a similarity score as a rounded percentage.
func (r Result) SimilarityPercent() string {
	return fmt.Sprintf("%d%%", int(math.Round(r.Similarity*100)))
}

func locator(item APIResult) string {
	url := strings.TrimSpace(item.ArticleURL)
	if url == "" {
		if item.PageNumber > 0 {
			return fmt.Sprintf("page %d", item.PageNumber)
		}
		return fmt.Sprintf("page %d", item.PageID)
	}
	if strings.Contains(url, "://") {
		return url
	}
	return "https://" + strings.TrimPrefix(url, "//")
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

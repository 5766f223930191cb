// internal/search/types.go
// Package search defines the wire and display shapes of search results and the
// request body sent to the retrieval service.
package search

// APIResult is a single item of a search_results event as it appears on the wire.
// Field names follow the upstream service, including its mixed casing.
type APIResult struct {
	Rank           int     `json:"rank"`
	Similarity     float64 `json:"similarity"`
	PageID         int     `json:"page_id"`
	PageNumber     int     `json:"page_number"`
	ArticleID      int     `json:"Article_id"`
	ArticleTitle   string  `json:"Article_title"`
	ArticleTitleTr string  `json:"Article_title_tr"`
	ArticleURL     string  `json:"Article_url"`
	Language       string  `json:"language"`
	Preview        string  `json:"preview"`
}

// Result is the display form of a search hit.
type Result struct {
	Rank          int
	Similarity    float64
	PageID        int
	PageNumber    int
	ArticleID     int
	Title         string
	OriginalTitle string
	Locator       string
	Language      string
	Preview       string
	Heading       string
}

// Options carries the tunable generation parameters of a query.
type Options struct {
	TopK        int     `json:"top_k"`
	Temperature float64 `json:"temperature"`
}

// Request is the JSON body of one upstream search request.
type Request struct {
	Query       string  `json:"query"`
	TopK        int     `json:"top_k"`
	Temperature float64 `json:"temperature"`
}

// NewRequest builds a request for query using opts.
func NewRequest(query string, opts Options) Request {
	return Request{Query: query, TopK: opts.TopK, Temperature: opts.Temperature}
}

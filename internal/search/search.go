// Package search indexes devotions and hymns and answers full-text queries.
// Meilisearch is the primary engine; a Postgres ILIKE scan over the content
// tables serves as the fallback so search keeps working when Meilisearch is
// down or not configured.
package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDevotion ResultType = "devotion"
	ResultHymn     ResultType = "hymn"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Date    string     `json:"date,omitempty"`
	Month   string     `json:"month"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// DevotionRecord is the data we index for a devotion.
type DevotionRecord struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	BibleText string `json:"bibleText"`
	Body      string `json:"body"`
	Month     string `json:"month"`
}

// HymnRecord is the data we index for a hymn.
type HymnRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Lyrics string `json:"lyrics"`
	Month  string `json:"month"`
}

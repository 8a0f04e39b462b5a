// Package bible fetches scripture text through a chain of providers and
// always produces something renderable: mirror, primary API, secondary API,
// then a synthesized fallback.
package bible

// Source discriminates where a verse came from.
const (
	SourceESV      = "esv"
	SourceBibleAPI = "bible-api"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// FallbackMessage is the literal text served when every provider fails and
// the caller supplied no scripture text of its own.
const FallbackMessage = "Scripture text could not be loaded. Please check your connection and try again."

type VerseSegment struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

type Verse struct {
	Reference string         `json:"reference"`
	Verses    []VerseSegment `json:"verses"`
	Text      string         `json:"text"`
	Source    string         `json:"source"`
}

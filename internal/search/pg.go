package search

import (
	"context"
	"strings"
	"unicode/utf8"

	"selah/api/internal/store"
)

type contentStore interface {
	SearchDevotions(ctx context.Context, query string, limit int) ([]store.Devotion, error)
	SearchHymns(ctx context.Context, query string, limit int) ([]store.Hymn, error)
}

// Postgres answers search queries with ILIKE scans over the content tables.
type Postgres struct {
	store contentStore
}

// NewPostgres creates the Postgres fallback searcher.
func NewPostgres(store contentStore) *Postgres {
	return &Postgres{store: store}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *Postgres) Healthy() bool {
	return true
}

// Search scans devotions and hymns. Results are unranked beyond the
// per-table recency ordering the store applies.
func (p *Postgres) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	var results []Result

	if q.FilterType == "" || q.FilterType == ResultDevotion {
		devotions, err := p.store.SearchDevotions(ctx, text, limit)
		if err != nil {
			return nil, 0, err
		}
		for _, d := range devotions {
			results = append(results, Result{
				Type:    ResultDevotion,
				ID:      d.ID,
				Date:    d.Date,
				Month:   d.Month,
				Title:   d.BibleText,
				Snippet: snippetAround(DevotionBody(d), text),
			})
		}
	}

	if q.FilterType == "" || q.FilterType == ResultHymn {
		hymns, err := p.store.SearchHymns(ctx, text, limit)
		if err != nil {
			return nil, 0, err
		}
		for _, h := range hymns {
			results = append(results, Result{
				Type:    ResultHymn,
				ID:      h.ID,
				Month:   h.Month,
				Title:   h.Title,
				Snippet: snippetAround(HymnLyrics(h), text),
			})
		}
	}

	return results, len(results), nil
}

// snippetAround extracts a window of text centred on the first match,
// approximating the highlighted fragments Meilisearch returns. Window
// boundaries snap to rune starts so a multibyte character is never split.
func snippetAround(body, needle string) string {
	const window = 120

	body = strings.Join(strings.Fields(body), " ")
	idx := strings.Index(strings.ToLower(body), strings.ToLower(needle))
	if idx < 0 {
		if len(body) > window {
			return body[:runeFloor(body, window)] + "…"
		}
		return body
	}

	start := runeFloor(body, idx-window/2)
	end := runeFloor(body, idx+len(needle)+window/2)

	snippet := body[start:end]
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(body) {
		snippet += "…"
	}
	return snippet
}

// runeFloor clamps a byte offset into [0, len(s)] and walks it back to the
// nearest rune start.
func runeFloor(s string, i int) int {
	if i < 0 {
		return 0
	}
	if i > len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

package search

import (
	"context"
	"log"
	"strings"

	"selah/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// the Postgres scan.
type Service struct {
	meili *Meili
	pg    *Postgres
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pg *Postgres) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pg.Search(ctx, q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDevotion indexes a devotion (fire-and-forget to Meilisearch).
func (s *Service) IndexDevotion(d store.Devotion) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromDevotion(d)
	go func() {
		if err := s.meili.IndexDevotion(record); err != nil {
			log.Printf("search: index devotion %s: %v", record.Date, err)
		}
	}()
}

// IndexHymn indexes a hymn (fire-and-forget to Meilisearch).
func (s *Service) IndexHymn(h store.Hymn) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromHymn(h)
	go func() {
		if err := s.meili.IndexHymn(record); err != nil {
			log.Printf("search: index hymn %s: %v", record.Month, err)
		}
	}()
}

// ReindexAll pushes every devotion and hymn into Meilisearch. Called at
// startup so a fresh Meilisearch instance catches up with Postgres.
func (s *Service) ReindexAll(devotions []store.Devotion, hymns []store.Hymn) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	devotionRecords := make([]DevotionRecord, 0, len(devotions))
	for _, d := range devotions {
		devotionRecords = append(devotionRecords, RecordFromDevotion(d))
	}
	if err := s.meili.IndexDevotions(devotionRecords); err != nil {
		log.Printf("search: reindex devotions: %v", err)
	}

	hymnRecords := make([]HymnRecord, 0, len(hymns))
	for _, h := range hymns {
		hymnRecords = append(hymnRecords, RecordFromHymn(h))
	}
	if err := s.meili.IndexHymns(hymnRecords); err != nil {
		log.Printf("search: reindex hymns: %v", err)
	}
}

// RecordFromDevotion flattens a devotion into its indexable form.
func RecordFromDevotion(d store.Devotion) DevotionRecord {
	return DevotionRecord{
		ID:        d.ID,
		Date:      d.Date,
		BibleText: d.BibleText,
		Body:      DevotionBody(d),
		Month:     d.Month,
	}
}

// RecordFromHymn flattens a hymn into its indexable form.
func RecordFromHymn(h store.Hymn) HymnRecord {
	return HymnRecord{
		ID:     h.ID,
		Title:  h.Title,
		Author: h.Author,
		Lyrics: HymnLyrics(h),
		Month:  h.Month,
	}
}

// DevotionBody joins a devotion's passages and questions into one
// searchable text blob.
func DevotionBody(d store.Devotion) string {
	var parts []string
	for _, section := range d.Sections {
		if section.Passage != "" {
			parts = append(parts, section.Passage)
		}
		parts = append(parts, section.Questions...)
	}
	return strings.Join(parts, " ")
}

// HymnLyrics joins a hymn's lines into one searchable text blob.
func HymnLyrics(h store.Hymn) string {
	lines := make([]string, 0, len(h.Lyrics))
	for _, line := range h.Lyrics {
		lines = append(lines, line.Text)
	}
	return strings.Join(lines, " ")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

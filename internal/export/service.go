package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"selah/api/internal/store"
)

type contentStore interface {
	ListDevotionsByMonth(ctx context.Context, month string) ([]store.Devotion, error)
	GetHymnByMonth(ctx context.Context, month string) (store.Hymn, error)
}

// Service renders monthly devotion booklets.
type Service struct {
	store contentStore
}

func NewService(store contentStore) *Service {
	return &Service{store: store}
}

// ExportMonth renders every devotion in a month, plus the month's hymn,
// into a printable PDF booklet.
func (s *Service) ExportMonth(ctx context.Context, month string) (*Result, error) {
	parsed, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: expected YYYY-MM", month)
	}

	devotions, err := s.store.ListDevotionsByMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list devotions: %w", err)
	}
	if len(devotions) == 0 {
		return nil, fmt.Errorf("%w: no devotions for %s", ErrContentUnavailable, month)
	}

	data := TemplateData{
		Month:     month,
		MonthName: parsed.Format("January 2006"),
		Devotions: devotions,
	}

	hymn, err := s.store.GetHymnByMonth(ctx, month)
	if err == nil {
		data.Hymn = &hymn
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load hymn: %w", err)
	}

	html, err := RenderBookletHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render booklet: %w", err)
	}

	return exportPDF(html, "Devotions "+data.MonthName)
}

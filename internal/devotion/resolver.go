package devotion

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"syscall"
	"time"

	"selah/api/internal/store"
)

// Resolved is what the API hands the client for a date lookup. A missing
// devotion is not an error: NotFound is set and Message explains, so the
// UI can render a friendly empty state.
type Resolved struct {
	store.Devotion
	NotFound bool   `json:"notFound,omitempty"`
	Message  string `json:"message,omitempty"`
}

type contentStore interface {
	GetDevotionByDate(ctx context.Context, date string) (store.Devotion, error)
}

type Resolver struct {
	store      contentStore
	maxRetries int
	backoff    time.Duration
}

func NewResolver(cs contentStore) *Resolver {
	return &Resolver{store: cs, maxRetries: 2, backoff: time.Second}
}

// Resolve looks up the devotion for an ISO date. Transient store errors are
// retried with exponential backoff (1s, 2s); anything else propagates.
func (r *Resolver) Resolve(ctx context.Context, date string) (Resolved, error) {
	parsed, err := ParseDate(date)
	if err != nil {
		return Resolved{}, err
	}
	normalized := parsed.Format("2006-01-02")

	var item store.Devotion
	var lookupErr error
	for attempt := 0; ; attempt++ {
		item, lookupErr = r.store.GetDevotionByDate(ctx, normalized)
		if lookupErr == nil || !isTransient(lookupErr) || attempt >= r.maxRetries {
			break
		}
		wait := r.backoff << attempt
		log.Printf("devotion: transient lookup error for %s (attempt %d): %v", normalized, attempt+1, lookupErr)
		select {
		case <-ctx.Done():
			return Resolved{}, ctx.Err()
		case <-time.After(wait):
		}
	}

	if errors.Is(lookupErr, sql.ErrNoRows) {
		return placeholder(normalized), nil
	}
	if lookupErr != nil {
		return Resolved{}, lookupErr
	}

	return Resolved{Devotion: item}, nil
}

func placeholder(date string) Resolved {
	return Resolved{
		Devotion: store.Devotion{
			ID:        "notfound-" + date,
			Date:      date,
			BibleText: "",
			Sections:  []store.ReflectionSection{},
		},
		NotFound: true,
		Message:  "No devotion is available for this date.",
	}
}

// isTransient classifies store errors worth retrying: timeouts and
// offline-style connection failures. Classification is by error type, never
// by message text.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}

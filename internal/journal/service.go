// Package journal persists a user's answers for a devotion date. Writes are
// local-first: the Local Mirror always gets the entry, the content store is
// best-effort. Reads prefer the content store and fall back to the mirror,
// pushing mirror-only data back remotely when found.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"selah/api/internal/devotion"
	"selah/api/internal/store"
)

type remoteStore interface {
	GetJournalEntry(ctx context.Context, userID, date string) (store.JournalEntry, error)
	UpsertJournalEntry(ctx context.Context, item store.JournalEntry) error
}

type entryCache interface {
	Get(ctx context.Context, key string, target any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type Service struct {
	remote remoteStore
	cache  entryCache
	// syncTimeout bounds the fire-and-forget back-sync on load.
	syncTimeout time.Duration
}

func NewService(remote remoteStore, cache entryCache) *Service {
	return &Service{remote: remote, cache: cache, syncTimeout: 10 * time.Second}
}

type SaveResult struct {
	Synced    bool      `json:"synced"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func cacheKey(userID, date string) string {
	return "journal:" + userID + ":" + date
}

// Save writes mirror-first, then upserts remotely. A remote failure is
// logged and reported via Synced=false; the mirror write is never rolled
// back, so the two stores can diverge until the next load re-syncs.
// Last write wins in each store independently.
func (s *Service) Save(ctx context.Context, userID, date string, entries map[string]string) (SaveResult, error) {
	parsed, err := devotion.ParseDate(date)
	if err != nil {
		return SaveResult{}, err
	}
	normalized := parsed.Format("2006-01-02")
	if entries == nil {
		entries = map[string]string{}
	}

	item := store.JournalEntry{
		UserID:    userID,
		Date:      normalized,
		Entries:   entries,
		UpdatedAt: time.Now(),
	}

	mirrorErr := error(nil)
	if s.cache != nil {
		mirrorErr = s.cache.Set(ctx, cacheKey(userID, normalized), item)
		if mirrorErr != nil {
			log.Printf("journal: mirror write for %s/%s: %v", userID, normalized, mirrorErr)
		}
	}

	remoteErr := s.remote.UpsertJournalEntry(ctx, item)
	if remoteErr != nil {
		log.Printf("journal: remote save for %s/%s: %v", userID, normalized, remoteErr)
		if mirrorErr != nil || s.cache == nil {
			// Neither store took the write; this one is a real failure.
			return SaveResult{}, fmt.Errorf("save journal entry: %w", remoteErr)
		}
		return SaveResult{Synced: false, UpdatedAt: item.UpdatedAt}, nil
	}

	return SaveResult{Synced: true, UpdatedAt: item.UpdatedAt}, nil
}

// Load prefers the remote entry. On a remote miss or failure it falls back
// to the mirror; mirror-only data is pushed back remotely fire-and-forget.
func (s *Service) Load(ctx context.Context, userID, date string) (store.JournalEntry, error) {
	parsed, err := devotion.ParseDate(date)
	if err != nil {
		return store.JournalEntry{}, err
	}
	normalized := parsed.Format("2006-01-02")

	item, remoteErr := s.remote.GetJournalEntry(ctx, userID, normalized)
	if remoteErr == nil {
		return item, nil
	}
	if !errors.Is(remoteErr, sql.ErrNoRows) {
		log.Printf("journal: remote load for %s/%s: %v", userID, normalized, remoteErr)
	}

	if s.cache == nil {
		if errors.Is(remoteErr, sql.ErrNoRows) {
			return emptyEntry(userID, normalized), nil
		}
		return store.JournalEntry{}, remoteErr
	}

	var mirrored store.JournalEntry
	hit, cacheErr := s.cache.Get(ctx, cacheKey(userID, normalized), &mirrored)
	if cacheErr != nil {
		log.Printf("journal: mirror load for %s/%s: %v", userID, normalized, cacheErr)
	}
	if !hit {
		if errors.Is(remoteErr, sql.ErrNoRows) {
			return emptyEntry(userID, normalized), nil
		}
		return store.JournalEntry{}, remoteErr
	}

	// The mirror has data the remote store lacks: push it back. Concurrent
	// tabs can still overwrite each other remotely; no merge is attempted.
	if errors.Is(remoteErr, sql.ErrNoRows) {
		go s.syncBack(mirrored)
	}
	return mirrored, nil
}

func (s *Service) syncBack(item store.JournalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
	defer cancel()
	if err := s.remote.UpsertJournalEntry(ctx, item); err != nil {
		log.Printf("journal: back-sync for %s/%s: %v", item.UserID, item.Date, err)
	}
}

func emptyEntry(userID, date string) store.JournalEntry {
	return store.JournalEntry{UserID: userID, Date: date, Entries: map[string]string{}}
}

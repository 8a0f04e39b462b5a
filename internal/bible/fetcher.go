package bible

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

// verseCache is the slice of the Local Mirror the fetcher needs.
type verseCache interface {
	Get(ctx context.Context, key string, target any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	IncrErrorCount(ctx context.Context) (int64, error)
	ResetErrorCount(ctx context.Context) error
	Sweep(ctx context.Context, force bool) (int, error)
}

// Provider is a scripture text source. ESV and bible-api both satisfy it.
type Provider interface {
	Fetch(ctx context.Context, reference string) (Verse, error)
}

// offlineCooldown is how long the fetcher skips network attempts after a
// timeout/offline classified failure.
const offlineCooldown = 30 * time.Second

// Fetcher resolves scripture text: mirror first, then the primary provider,
// then the secondary, then a synthesized fallback. FetchVerse never returns
// an error; availability beats correctness here and the caller always gets
// something renderable.
type Fetcher struct {
	cache        verseCache
	primary      Provider
	secondary    Provider
	offlineUntil atomic.Int64
	sweepAfter   int64
}

func NewFetcher(cache verseCache, primary, secondary Provider) *Fetcher {
	return &Fetcher{
		cache:      cache,
		primary:    primary,
		secondary:  secondary,
		sweepAfter: SweepErrorThreshold,
	}
}

// SweepErrorThreshold mirrors mirror.SweepErrorThreshold without importing
// the package (the cache dependency is an interface).
const SweepErrorThreshold = 10

func cacheKey(source, reference string) string {
	return "verse:" + source + ":" + strings.ToLower(strings.TrimSpace(reference))
}

// FetchVerse resolves a reference. scriptureText, when non-empty, seeds the
// fallback so a devotion can still show its own stored text.
func (f *Fetcher) FetchVerse(ctx context.Context, reference, scriptureText string) Verse {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return f.fallback(reference, scriptureText)
	}

	// 1. Mirror check, primary source first.
	if f.cache != nil {
		for _, source := range []string{SourceESV, SourceBibleAPI} {
			var cached Verse
			hit, err := f.cache.Get(ctx, cacheKey(source, reference), &cached)
			if err != nil {
				log.Printf("bible: mirror read %s/%s: %v", source, reference, err)
				continue
			}
			if hit {
				cached.Source = SourceCache
				return cached
			}
		}
	}

	// 2. Offline check: a recent timeout/offline failure short-circuits
	// straight to the fallback instead of burning another 8 seconds.
	if f.Offline() {
		return f.fallback(reference, scriptureText)
	}

	// 3. Primary provider.
	if f.primary != nil {
		verse, err := f.primary.Fetch(ctx, reference)
		if err == nil {
			f.recordSuccess(ctx)
			f.writeBack(ctx, SourceESV, reference, verse)
			return verse
		}
		f.recordFailure(ctx, err)
	}

	// 4. Secondary provider.
	if f.secondary != nil {
		verse, err := f.secondary.Fetch(ctx, reference)
		if err == nil {
			f.recordSuccess(ctx)
			f.writeBack(ctx, SourceBibleAPI, reference, verse)
			return verse
		}
		f.recordFailure(ctx, err)
	}

	// 5. Fallback synthesis.
	return f.fallback(reference, scriptureText)
}

// Offline reports whether the fetcher is inside its post-failure cooldown.
func (f *Fetcher) Offline() bool {
	return time.Now().UnixNano() < f.offlineUntil.Load()
}

// SetOffline forces the offline gate; tests and the debug surface use it.
func (f *Fetcher) SetOffline(d time.Duration) {
	f.offlineUntil.Store(time.Now().Add(d).UnixNano())
}

func (f *Fetcher) fallback(reference, scriptureText string) Verse {
	text := strings.TrimSpace(scriptureText)
	if text == "" {
		text = FallbackMessage
	}
	return Verse{
		Reference: reference,
		Verses:    []VerseSegment{{Number: 1, Text: text}},
		Text:      text,
		Source:    SourceFallback,
	}
}

func (f *Fetcher) writeBack(ctx context.Context, source, reference string, verse Verse) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Set(ctx, cacheKey(source, reference), verse); err != nil {
		log.Printf("bible: mirror write %s/%s: %v", source, reference, err)
	}
}

func (f *Fetcher) recordSuccess(ctx context.Context) {
	f.offlineUntil.Store(0)
	if f.cache != nil {
		_ = f.cache.ResetErrorCount(ctx)
	}
}

func (f *Fetcher) recordFailure(ctx context.Context, err error) {
	log.Printf("bible: fetch failed: %v", err)
	if IsNetworkKind(err) {
		f.offlineUntil.Store(time.Now().Add(offlineCooldown).UnixNano())
	}
	if f.cache == nil {
		return
	}
	count, countErr := f.cache.IncrErrorCount(ctx)
	if countErr != nil {
		log.Printf("bible: error counter: %v", countErr)
		return
	}
	if count >= f.sweepAfter {
		// Repeated upstream failures: the mirror is now the serving copy,
		// drop it wholesale so stale text does not linger indefinitely.
		if _, sweepErr := f.cache.Sweep(ctx, true); sweepErr != nil {
			log.Printf("bible: forced sweep: %v", sweepErr)
		}
	}
}

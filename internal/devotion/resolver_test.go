package devotion

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"selah/api/internal/store"
)

type fakeContentStore struct {
	getFn func(context.Context, string) (store.Devotion, error)
	calls int
}

func (f *fakeContentStore) GetDevotionByDate(ctx context.Context, date string) (store.Devotion, error) {
	f.calls++
	if f.getFn != nil {
		return f.getFn(ctx, date)
	}
	return store.Devotion{}, sql.ErrNoRows
}

func TestResolveMissingDateReturnsPlaceholder(t *testing.T) {
	fs := &fakeContentStore{}
	r := NewResolver(fs)

	resolved, err := r.Resolve(context.Background(), "2024-04-25")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !resolved.NotFound {
		t.Error("expected notFound placeholder")
	}
	if resolved.BibleText != "" {
		t.Errorf("placeholder bibleText should be empty, got %q", resolved.BibleText)
	}
	if resolved.Message == "" {
		t.Error("placeholder should carry a human-readable message")
	}
	if resolved.Sections == nil {
		t.Error("placeholder sections should be an empty slice, not nil")
	}
}

func TestResolveInvalidDate(t *testing.T) {
	r := NewResolver(&fakeContentStore{})

	if _, err := r.Resolve(context.Background(), "not-a-date"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "2024-02-30"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate for impossible calendar date, got %v", err)
	}
}

func TestResolveFound(t *testing.T) {
	want := store.Devotion{
		ID:        "dev_1",
		Date:      "2024-05-01",
		BibleText: "John 15:1-8",
		Sections:  []store.ReflectionSection{{Passage: "John 15:1-8", Questions: []string{"q1"}}},
	}
	fs := &fakeContentStore{getFn: func(ctx context.Context, date string) (store.Devotion, error) {
		if date != "2024-05-01" {
			t.Errorf("unexpected lookup date %q", date)
		}
		return want, nil
	}}
	r := NewResolver(fs)

	resolved, err := r.Resolve(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.NotFound {
		t.Error("unexpected notFound")
	}
	if resolved.ID != want.ID || resolved.BibleText != want.BibleText {
		t.Errorf("resolved mismatch: %+v", resolved.Devotion)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestResolveRetriesTransientErrors(t *testing.T) {
	fs := &fakeContentStore{}
	fs.getFn = func(ctx context.Context, date string) (store.Devotion, error) {
		if fs.calls < 3 {
			return store.Devotion{}, timeoutErr{}
		}
		return store.Devotion{ID: "dev_1", Date: date}, nil
	}
	r := NewResolver(fs)
	r.backoff = time.Millisecond

	resolved, err := r.Resolve(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("Resolve failed after retries: %v", err)
	}
	if fs.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", fs.calls)
	}
	if resolved.ID != "dev_1" {
		t.Errorf("unexpected devotion %+v", resolved.Devotion)
	}
}

func TestResolveRetriesConnectionErrors(t *testing.T) {
	fs := &fakeContentStore{}
	fs.getFn = func(ctx context.Context, date string) (store.Devotion, error) {
		if fs.calls < 3 {
			return store.Devotion{}, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
		}
		return store.Devotion{ID: "dev_1", Date: date}, nil
	}
	r := NewResolver(fs)
	r.backoff = time.Millisecond

	resolved, err := r.Resolve(context.Background(), "2024-05-01")
	if err != nil {
		t.Fatalf("Resolve failed after retries: %v", err)
	}
	if fs.calls != 3 {
		t.Errorf("expected 3 attempts for connection-refused, got %d", fs.calls)
	}
	if resolved.ID != "dev_1" {
		t.Errorf("unexpected devotion %+v", resolved.Devotion)
	}
}

func TestResolveDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("column does not exist")
	fs := &fakeContentStore{getFn: func(context.Context, string) (store.Devotion, error) {
		return store.Devotion{}, permanent
	}}
	r := NewResolver(fs)
	r.backoff = time.Millisecond

	if _, err := r.Resolve(context.Background(), "2024-05-01"); !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if fs.calls != 1 {
		t.Errorf("expected a single attempt, got %d", fs.calls)
	}
}

func TestNormalizeLegacyRecord(t *testing.T) {
	raw := RawRecord{
		Date:                "2024-03-10",
		ScriptureReference:  "Romans 8:31-39",
		ScriptureText:       "If God is for us...",
		ReflectionQuestions: []string{"q1", "q2", "q3"},
		Title:               "More Than Conquerors",
	}

	item, err := Normalize(raw, "admin@selah.app")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(item.Sections) != 1 {
		t.Fatalf("expected exactly one synthetic section, got %d", len(item.Sections))
	}
	section := item.Sections[0]
	if section.Passage != "Romans 8:31-39" {
		t.Errorf("synthetic passage = %q", section.Passage)
	}
	if len(section.Questions) != 3 || section.Questions[0] != "q1" {
		t.Errorf("questions should equal the legacy list, got %v", section.Questions)
	}
	if item.BibleText != "Romans 8:31-39" {
		t.Errorf("bibleText = %q", item.BibleText)
	}
	if item.Month != "March" || item.MonthID != 3 {
		t.Errorf("month derivation: %s/%d", item.Month, item.MonthID)
	}
}

func TestNormalizeBackfillsMissingPassages(t *testing.T) {
	raw := RawRecord{
		Date:      "2024-03-10",
		BibleText: "Psalm 23",
		Sections: []store.ReflectionSection{
			{Passage: "Psalm 23:1-3", Questions: []string{"a"}},
			{Passage: "", Questions: []string{"b"}},
			{Passage: "  ", Questions: nil},
		},
	}

	item, err := Normalize(raw, "admin@selah.app")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if got := item.Sections[0].Passage; got != "Psalm 23:1-3" {
		t.Errorf("section 1 passage = %q", got)
	}
	if got := item.Sections[1].Passage; got != "Psalm 23 (Part 2)" {
		t.Errorf("section 2 passage = %q", got)
	}
	if got := item.Sections[2].Passage; got != "Psalm 23 (Part 3)" {
		t.Errorf("section 3 passage = %q", got)
	}
	if item.Sections[2].Questions == nil {
		t.Error("nil question lists should normalize to empty slices")
	}
}

func TestNormalizeRejectsMalformedDate(t *testing.T) {
	if _, err := Normalize(RawRecord{Date: "03/10/2024"}, ""); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestGenerateStubDeterministic(t *testing.T) {
	a, err := GenerateStub("2024-06-15", "admin@selah.app")
	if err != nil {
		t.Fatalf("GenerateStub failed: %v", err)
	}
	b, err := GenerateStub("2024-06-15", "admin@selah.app")
	if err != nil {
		t.Fatalf("GenerateStub failed: %v", err)
	}
	if a.BibleText != b.BibleText || a.ID != b.ID {
		t.Errorf("stub generation is not deterministic: %q vs %q", a.BibleText, b.BibleText)
	}
	if len(a.Sections) != 1 || a.Sections[0].Passage == "" {
		t.Errorf("stub should carry one populated section, got %+v", a.Sections)
	}
}

// Package devotion resolves and normalizes daily devotion records.
//
// Two record shapes exist in the wild: the current one carrying
// reflectionSections, and a legacy flat one carrying scriptureReference /
// scriptureText / reflectionQuestions. Both are accepted on ingest and folded
// into the canonical store.Devotion exactly once, here; nothing downstream
// ever sees the legacy shape.
package devotion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"selah/api/internal/store"
	"selah/api/internal/util"
)

var ErrInvalidDate = errors.New("invalid date")

// RawRecord is the ingest shape for admin uploads. Current and legacy
// fields are both present so either payload decodes; Normalize decides
// which shape the record actually is.
type RawRecord struct {
	ID        string                    `json:"id"`
	Date      string                    `json:"date"`
	BibleText string                    `json:"bibleText"`
	Sections  []store.ReflectionSection `json:"reflectionSections"`
	MonthID   int                       `json:"monthId"`
	Month     string                    `json:"month"`

	// Legacy flat shape
	ScriptureReference  string   `json:"scriptureReference"`
	ScriptureText       string   `json:"scriptureText"`
	ReflectionQuestions []string `json:"reflectionQuestions"`
	Title               string   `json:"title"`
	Content             string   `json:"content"`
	Prayer              string   `json:"prayer"`
}

// ParseDate validates an ISO yyyy-MM-dd date string.
func ParseDate(date string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return parsed, nil
}

// Normalize turns either record shape into the canonical Devotion.
// Invariant on the way out: every section carries a non-empty passage.
func Normalize(raw RawRecord, updatedBy string) (store.Devotion, error) {
	parsed, err := ParseDate(raw.Date)
	if err != nil {
		return store.Devotion{}, err
	}

	bibleText := strings.TrimSpace(raw.BibleText)
	if bibleText == "" {
		bibleText = strings.TrimSpace(raw.ScriptureReference)
	}

	sections := raw.Sections
	if len(sections) == 0 {
		// Legacy flat record: wrap the question list into one synthetic section.
		sections = []store.ReflectionSection{{
			Passage:   bibleText,
			Questions: raw.ReflectionQuestions,
		}}
	}

	normalized := make([]store.ReflectionSection, len(sections))
	for i, section := range sections {
		passage := strings.TrimSpace(section.Passage)
		if passage == "" {
			passage = fmt.Sprintf("%s (Part %d)", bibleText, i+1)
		}
		questions := section.Questions
		if questions == nil {
			questions = []string{}
		}
		normalized[i] = store.ReflectionSection{Passage: passage, Questions: questions}
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = util.NewID("dev")
	}

	month := raw.Month
	if month == "" {
		month = parsed.Month().String()
	}
	monthID := raw.MonthID
	if monthID == 0 {
		monthID = int(parsed.Month())
	}

	return store.Devotion{
		ID:        id,
		Date:      parsed.Format("2006-01-02"),
		BibleText: bibleText,
		Sections:  normalized,
		MonthID:   monthID,
		Month:     month,
		UpdatedBy: updatedBy,
	}, nil
}

package store

import "time"

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ReflectionSection groups one passage with its reflection questions.
// This is the only section shape that ever leaves the store; legacy flat
// records are folded into it before they are written.
type ReflectionSection struct {
	Passage   string   `json:"passage"`
	Questions []string `json:"questions"`
}

type Devotion struct {
	ID        string              `json:"id"`
	Date      string              `json:"date"`
	BibleText string              `json:"bibleText"`
	Sections  []ReflectionSection `json:"reflectionSections"`
	MonthID   int                 `json:"monthId"`
	Month     string              `json:"month"`
	UpdatedAt time.Time           `json:"updatedAt"`
	UpdatedBy string              `json:"updatedBy"`
}

type HymnLine struct {
	LineNumber int    `json:"lineNumber"`
	Text       string `json:"text"`
}

type Hymn struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Author    string     `json:"author"`
	Lyrics    []HymnLine `json:"lyrics"`
	MonthID   int        `json:"monthId"`
	Month     string     `json:"month"`
	UpdatedAt time.Time  `json:"updatedAt"`
	UpdatedBy string     `json:"updatedBy"`
}

type JournalEntry struct {
	UserID    string            `json:"-"`
	Date      string            `json:"date"`
	Entries   map[string]string `json:"entries"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

package devotion

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	"selah/api/internal/store"
)

// readingList is the fixed pool the admin stub generator draws from.
// Selection is a hash of the date so regenerating a range is idempotent.
var readingList = []struct {
	Passage   string
	Questions []string
}{
	{"Psalm 23:1-6", []string{"Where do you need the Shepherd's leading today?", "What does it mean that goodness and mercy follow you?"}},
	{"John 15:1-8", []string{"What does abiding look like in an ordinary day?", "Which branches in your life need pruning?"}},
	{"Romans 8:31-39", []string{"What is currently making you doubt that God is for you?", "How does nothing-can-separate change how you pray?"}},
	{"Philippians 4:4-9", []string{"What anxiety can you hand over in prayer today?", "What is one true, lovely thing to dwell on?"}},
	{"Isaiah 40:28-31", []string{"Where are you running on empty?", "What would waiting on the Lord look like this week?"}},
	{"Matthew 6:25-34", []string{"What are you anxious about providing for yourself?", "How have you seen the Father's care before?"}},
	{"Hebrews 11:1-6", []string{"What are you hoping for that you cannot yet see?", "Where is faith being asked of you right now?"}},
	{"Psalm 46:1-11", []string{"What would 'be still' require of you today?", "Which refuge are you tempted to run to instead?"}},
	{"Colossians 3:12-17", []string{"Which garment on this list is hardest for you to put on?", "Who do you need to forgive as the Lord forgave you?"}},
	{"James 1:2-8", []string{"What trial could you begin to count as joy?", "What wisdom do you need to ask for?"}},
	{"1 Peter 5:6-11", []string{"What care can you cast on him today?", "Where do you need to stand firm?"}},
	{"Micah 6:6-8", []string{"What does doing justice ask of you this week?", "Where is humility hardest for you?"}},
}

// GenerateStub builds a deterministic devotion for a date that has none.
func GenerateStub(date string, updatedBy string) (store.Devotion, error) {
	parsed, err := ParseDate(date)
	if err != nil {
		return store.Devotion{}, err
	}
	normalized := parsed.Format("2006-01-02")

	sum := sha1.Sum([]byte(normalized))
	idx := binary.BigEndian.Uint32(sum[:4]) % uint32(len(readingList))
	reading := readingList[idx]

	return store.Devotion{
		ID:        fmt.Sprintf("gen-%s", normalized),
		Date:      normalized,
		BibleText: reading.Passage,
		Sections: []store.ReflectionSection{{
			Passage:   reading.Passage,
			Questions: reading.Questions,
		}},
		MonthID:   int(parsed.Month()),
		Month:     parsed.Month().String(),
		UpdatedBy: updatedBy,
	}, nil
}

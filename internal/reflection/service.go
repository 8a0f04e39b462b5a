// Package reflection produces AI-assisted devotional reflections and
// supplementary resource suggestions. The generative backend is optional:
// without one, the service serves a static set so the endpoints keep
// working in development and during build-time rendering.
package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Generator is the slice of the AI client the service needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type historyCache interface {
	Get(ctx context.Context, key string, target any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

const reflectionPrompt = `You are a gentle devotional companion. A reader is journaling on the passage %q and asks: %q

Write a short reflection (3-5 sentences) that engages the question honestly, stays close to the passage, and ends with one quiet thing to carry into the day. Do not preach; accompany.`

const resourcesPrompt = `Suggest study resources for the Bible passage %q. Respond with only a JSON object of the form {"commentaries":[{"title":"","author":"","url":""}],"videos":[{"title":"","channel":"","url":""}],"podcasts":[{"title":"","show":"","url":""}]} with 2-3 entries per category. Prefer widely available, reputable sources.`

type HistoryEntry struct {
	Question   string    `json:"question"`
	Reflection string    `json:"reflection"`
	Timestamp  time.Time `json:"timestamp"`
}

type Resource struct {
	Title   string `json:"title"`
	Author  string `json:"author,omitempty"`
	Channel string `json:"channel,omitempty"`
	Show    string `json:"show,omitempty"`
	URL     string `json:"url"`
}

type ResourceSet struct {
	Commentaries []Resource `json:"commentaries"`
	Videos       []Resource `json:"videos"`
	Podcasts     []Resource `json:"podcasts"`
	Mocked       bool       `json:"mocked,omitempty"`
}

type Service struct {
	generator Generator
	cache     historyCache
}

// NewService builds the service. generator may be nil (mock mode).
func NewService(generator Generator, cache historyCache) *Service {
	return &Service{generator: generator, cache: cache}
}

func historyKey(userID, date string) string {
	return "reflection:" + userID + ":" + date
}

// Reflect answers a journaling question and appends the exchange to the
// user's mirror-only history for that date. History lives nowhere else;
// clearing the mirror loses it, and that is accepted.
func (s *Service) Reflect(ctx context.Context, userID, date, passage, question string) (HistoryEntry, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return HistoryEntry{}, fmt.Errorf("question is required")
	}

	var text string
	if s.generator == nil {
		text = mockReflection(passage)
	} else {
		generated, err := s.generator.Generate(ctx, fmt.Sprintf(reflectionPrompt, passage, question))
		if err != nil {
			log.Printf("reflection: generate failed, serving mock: %v", err)
			text = mockReflection(passage)
		} else {
			text = generated
		}
	}

	entry := HistoryEntry{
		Question:   question,
		Reflection: text,
		Timestamp:  time.Now(),
	}

	if s.cache != nil {
		history, _ := s.History(ctx, userID, date)
		history = append(history, entry)
		if err := s.cache.Set(ctx, historyKey(userID, date), history); err != nil {
			log.Printf("reflection: history write for %s/%s: %v", userID, date, err)
		}
	}

	return entry, nil
}

func (s *Service) History(ctx context.Context, userID, date string) ([]HistoryEntry, error) {
	if s.cache == nil {
		return []HistoryEntry{}, nil
	}
	var history []HistoryEntry
	hit, err := s.cache.Get(ctx, historyKey(userID, date), &history)
	if err != nil {
		return []HistoryEntry{}, err
	}
	if !hit || history == nil {
		return []HistoryEntry{}, nil
	}
	return history, nil
}

// Resources suggests commentaries, videos, and podcasts for a passage.
func (s *Service) Resources(ctx context.Context, passage string) ResourceSet {
	if s.generator == nil {
		return mockResources(passage)
	}

	raw, err := s.generator.Generate(ctx, fmt.Sprintf(resourcesPrompt, passage))
	if err != nil {
		log.Printf("resources: generate failed, serving mock: %v", err)
		return mockResources(passage)
	}

	var set ResourceSet
	if err := json.Unmarshal([]byte(extractJSON(raw)), &set); err != nil {
		log.Printf("resources: decode failed, serving mock: %v", err)
		return mockResources(passage)
	}
	return set
}

// extractJSON trims markdown fences and surrounding prose that models wrap
// around JSON payloads.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func mockReflection(passage string) string {
	return fmt.Sprintf("Sit with %s for a moment before answering. What word or phrase stands out to you, and why might it be meeting you today? Carry that word with you as you go.", passage)
}

func mockResources(passage string) ResourceSet {
	return ResourceSet{
		Commentaries: []Resource{
			{Title: "Matthew Henry's Commentary on " + passage, Author: "Matthew Henry", URL: "https://www.biblegateway.com/resources/matthew-henry"},
			{Title: "Enduring Word Commentary", Author: "David Guzik", URL: "https://enduringword.com"},
		},
		Videos: []Resource{
			{Title: "Overview video for the book containing " + passage, Channel: "BibleProject", URL: "https://bibleproject.com/explore"},
		},
		Podcasts: []Resource{
			{Title: "Daily audio devotion", Show: "Pray As You Go", URL: "https://pray-as-you-go.org"},
		},
		Mocked: true,
	}
}

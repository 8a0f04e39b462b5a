package bible

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BibleAPIClient talks to the secondary, unauthenticated provider
// (bible-api.com).
type BibleAPIClient struct {
	baseURL string
	client  *http.Client
}

func NewBibleAPIClient(baseURL string, timeout time.Duration) *BibleAPIClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &BibleAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type bibleAPIResponse struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
	Verses    []struct {
		Verse int    `json:"verse"`
		Text  string `json:"text"`
	} `json:"verses"`
}

func (c *BibleAPIClient) Fetch(ctx context.Context, reference string) (Verse, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Verse{}, parseError(SourceBibleAPI, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Verse{}, classifyTransport(SourceBibleAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Verse{}, statusError(SourceBibleAPI, resp.StatusCode)
	}

	var payload bibleAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Verse{}, parseError(SourceBibleAPI, err)
	}
	if payload.Text == "" && len(payload.Verses) == 0 {
		return Verse{}, parseError(SourceBibleAPI, fmt.Errorf("empty response for %q", reference))
	}

	segments := make([]VerseSegment, 0, len(payload.Verses))
	for _, item := range payload.Verses {
		segments = append(segments, VerseSegment{
			Number: item.Verse,
			Text:   strings.TrimSpace(strings.ReplaceAll(item.Text, "\n", " ")),
		})
	}
	if len(segments) == 0 {
		segments = []VerseSegment{{Number: 1, Text: strings.TrimSpace(payload.Text)}}
	}

	canonical := payload.Reference
	if canonical == "" {
		canonical = reference
	}

	text := strings.TrimSpace(strings.ReplaceAll(payload.Text, "\n", " "))
	if text == "" {
		text = joinSegments(segments)
	}

	return Verse{
		Reference: canonical,
		Verses:    segments,
		Text:      text,
		Source:    SourceBibleAPI,
	}, nil
}

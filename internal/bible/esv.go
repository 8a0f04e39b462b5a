package bible

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// bracketPattern matches the ESV plain-text verse markers: `[4] text`.
var bracketPattern = regexp.MustCompile(`\[(\d+)\]\s*([^\[]+)`)

// ESVClient talks to the primary text provider (api.esv.org).
type ESVClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewESVClient(baseURL, apiKey string, timeout time.Duration) *ESVClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &ESVClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has an API key to send.
func (c *ESVClient) Configured() bool {
	return c.apiKey != ""
}

type esvResponse struct {
	Canonical string   `json:"canonical"`
	Passages  []string `json:"passages"`
}

func (c *ESVClient) Fetch(ctx context.Context, reference string) (Verse, error) {
	query := url.Values{}
	query.Set("q", reference)
	query.Set("include-headings", "false")
	query.Set("include-footnotes", "false")
	query.Set("include-short-copyright", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+query.Encode(), nil)
	if err != nil {
		return Verse{}, parseError(SourceESV, err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Verse{}, classifyTransport(SourceESV, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Verse{}, statusError(SourceESV, resp.StatusCode)
	}

	var payload esvResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Verse{}, parseError(SourceESV, err)
	}
	if len(payload.Passages) == 0 {
		return Verse{}, parseError(SourceESV, fmt.Errorf("no passages for %q", reference))
	}

	segments := parseBracketedText(payload.Passages[0])
	if len(segments) == 0 {
		return Verse{}, parseError(SourceESV, fmt.Errorf("no verse markers in passage for %q", reference))
	}

	canonical := payload.Canonical
	if canonical == "" {
		canonical = reference
	}

	return Verse{
		Reference: canonical,
		Verses:    segments,
		Text:      joinSegments(segments),
		Source:    SourceESV,
	}, nil
}

func parseBracketedText(passage string) []VerseSegment {
	matches := bracketPattern.FindAllStringSubmatch(passage, -1)
	segments := make([]VerseSegment, 0, len(matches))
	for _, match := range matches {
		number, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		text := strings.TrimSpace(strings.ReplaceAll(match[2], "\n", " "))
		if text == "" {
			continue
		}
		segments = append(segments, VerseSegment{Number: number, Text: text})
	}
	return segments
}

func joinSegments(segments []VerseSegment) string {
	parts := make([]string, len(segments))
	for i, segment := range segments {
		parts[i] = segment.Text
	}
	return strings.Join(parts, " ")
}

package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jusunglee/subway-board/internal/models"
)

// DefaultBaseURL is the MTA GTFS-RT endpoint; group suffixes are appended to it
const DefaultBaseURL = "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs"

// Group is one MTA real-time feed and the lines it carries
type Group struct {
	Name   string
	Suffix string
	Lines  []models.LineID
}

// FeedGroups for NYC Subway
var FeedGroups = []Group{
	{Name: "123456S", Suffix: "", Lines: []models.LineID{"1", "2", "3", "4", "5", "6", "7", "GS"}},
	{Name: "ace", Suffix: "-ace", Lines: []models.LineID{"A", "C", "E", "H", "FS"}},
	{Name: "bdfm", Suffix: "-bdfm", Lines: []models.LineID{"B", "D", "F", "M"}},
	{Name: "g", Suffix: "-g", Lines: []models.LineID{"G"}},
	{Name: "jz", Suffix: "-jz", Lines: []models.LineID{"J", "Z"}},
	{Name: "nqrw", Suffix: "-nqrw", Lines: []models.LineID{"N", "Q", "R", "W"}},
	{Name: "l", Suffix: "-l", Lines: []models.LineID{"L"}},
	{Name: "si", Suffix: "-si", Lines: []models.LineID{"SI"}},
}

// GroupsForLines returns the distinct feed groups needed to cover lines
func GroupsForLines(lines []models.LineID) ([]Group, error) {
	byLine := make(map[models.LineID]int)
	for i, g := range FeedGroups {
		for _, l := range g.Lines {
			byLine[l] = i
		}
	}

	needed := make(map[int]bool)
	for _, l := range lines {
		i, ok := byLine[models.NormalizeLine(string(l))]
		if !ok {
			return nil, fmt.Errorf("line %s is not served by any feed", l)
		}
		needed[i] = true
	}

	groups := make([]Group, 0, len(needed))
	for i, g := range FeedGroups {
		if needed[i] {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// Fetcher retrieves the raw feed bytes for one group
type Fetcher interface {
	Fetch(ctx context.Context, group Group) ([]byte, error)
}

// HTTPFetcher fetches feeds from the MTA API.
// A base that is not an http(s) URL is treated as a directory of <group>.pb files.
type HTTPFetcher struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher. No retries are made; the poll loop owns retry policy.
func NewHTTPFetcher(apiKey, baseURL string, timeout time.Duration) *HTTPFetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPFetcher{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// URL returns where the group is fetched from
func (f *HTTPFetcher) URL(group Group) string {
	if !isHTTP(f.baseURL) {
		return filepath.Join(f.baseURL, group.Name+".pb")
	}
	return f.baseURL + group.Suffix
}

// Fetch performs one retrieval of the group's feed
func (f *HTTPFetcher) Fetch(ctx context.Context, group Group) ([]byte, error) {
	url := f.URL(group)
	if !isHTTP(f.baseURL) {
		data, err := os.ReadFile(url)
		if err != nil {
			return nil, &NetworkError{URL: url, Err: err}
		}
		return data, nil
	}

	if f.apiKey == "" {
		return nil, &AuthError{URL: url}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{URL: url, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return body, nil
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// NetworkError is a transient failure reaching the feed
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError means the API key is missing or was rejected
type AuthError struct {
	URL        string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("missing API key for %s", e.URL)
	}
	return fmt.Sprintf("API key rejected by %s (HTTP %d)", e.URL, e.StatusCode)
}

// DecodeError means the feed bytes could not be interpreted
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode feed: %s: %v", e.Reason, e.Err)
	}
	return "decode feed: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsTransient reports whether a retry on the next tick can be expected to help
func IsTransient(err error) bool {
	var authErr *AuthError
	return err != nil && !errors.As(err, &authErr)
}

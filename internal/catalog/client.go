package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	errpkg "github.com/tracktide/tracktide/internal/errors"
)

// Quality selects which stream variant is requested from the catalog.
type Quality string

const (
	QualityLow      Quality = "low"
	QualityStandard Quality = "standard"
	QualityLossless Quality = "lossless"
)

// Format returns the audio container format delivered for this quality tier.
func (q Quality) Format() string {
	if q == QualityLossless {
		return "flac"
	}
	return "mp3"
}

// TrackInfo is the resolved per-track download context supplied by the
// catalog: the stream endpoint plus the metadata embedded after download.
type TrackInfo struct {
	TrackID     string `json:"track_id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	TrackNumber int    `json:"track_number"`

	StreamURL  string `json:"stream_url"`
	TotalBytes int64  `json:"total_bytes"`
	Format     string `json:"format"`

	CoverURL string `json:"cover_url,omitempty"`
	Lyrics   string `json:"lyrics,omitempty"`
}

// Resolver resolves track identifiers into download contexts.
type Resolver interface {
	ResolveTrack(ctx context.Context, trackID string, quality Quality) (*TrackInfo, error)
	FetchCover(ctx context.Context, coverURL string) ([]byte, error)
}

// Client is the HTTP catalog client, authenticated with a session token the
// engine does not manage.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a catalog client against the given base URL.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, token: token, httpClient: httpClient}
}

// ResolveTrack fetches the stream descriptor and metadata for one track at
// the requested quality.
func (c *Client) ResolveTrack(ctx context.Context, trackID string, quality Quality) (*TrackInfo, error) {
	url := fmt.Sprintf("%s/v1/tracks/%s/stream?quality=%s", c.baseURL, trackID, quality)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve track %s: %w", trackID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("resolve track %s: %w", trackID, errpkg.ErrAuth)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("resolve track %s: %w", trackID, errpkg.ErrTrackNotFound)
	default:
		return nil, fmt.Errorf("resolve track %s: %w", trackID, &errpkg.StatusError{Code: resp.StatusCode})
	}

	var info TrackInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode track info: %w", err)
	}
	if info.TrackID == "" {
		info.TrackID = trackID
	}
	if info.Format == "" {
		info.Format = quality.Format()
	}
	return &info, nil
}

// FetchCover downloads cover art bytes. Failures here degrade tagging only,
// never the download itself; the caller decides how to report them.
func (c *Client) FetchCover(ctx context.Context, coverURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch cover: %w", &errpkg.StatusError{Code: resp.StatusCode})
	}
	return io.ReadAll(resp.Body)
}

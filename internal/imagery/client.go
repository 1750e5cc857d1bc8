package imagery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openroads/road-extractor/pkg/georef"
	"github.com/openroads/road-extractor/pkg/requestid"
)

const DefaultBaseURL = "https://api.openaerialmap.org"

var ErrNoResults = errors.New("no imagery covers the requested area")

// UpstreamError reports a failed call to the imagery metadata service.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("imagery service returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("imagery service unavailable: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Searcher finds imagery covering a bounding box.
type Searcher interface {
	Search(ctx context.Context, bbox georef.BBox) (*Result, error)
}

// Client talks to an OpenAerialMap style metadata API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Searcher = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type searchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// Search returns the first result of GET {base}/meta?bbox=w,s,e,n.
func (c *Client) Search(ctx context.Context, bbox georef.BBox) (*Result, error) {
	url := fmt.Sprintf("%s/meta?bbox=%s", c.baseURL, bbox.Query())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	requestid.Propagate(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(bodyBytes)))}
	}

	var searchResp searchResponse
	if err := json.Unmarshal(bodyBytes, &searchResp); err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(searchResp.Results) == 0 {
		return nil, ErrNoResults
	}

	return ParseResult(searchResp.Results[0])
}

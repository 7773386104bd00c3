package movies

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.themoviedb.org/3"

// APIError is a non-2xx reply from the movie API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("movie api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("movie api returned %d: %s", e.StatusCode, e.Message)
}

type ClientConfig struct {
	BaseURL      string
	ImageBaseURL string
	APIKey       string
	Language     string
	// RequestsPerSecond of 0 means unlimited.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client talks to the now_playing endpoint.
type Client struct {
	baseURL   string
	imageBase string
	apiKey    string
	language  string
	http      *http.Client
	limiter   *rate.Limiter
}

func NewClient(c ClientConfig) *Client {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	imageBase := c.ImageBaseURL
	if imageBase == "" {
		imageBase = DefaultImageBaseURL
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	limit := rate.Inf
	if c.RequestsPerSecond > 0 {
		limit = rate.Limit(c.RequestsPerSecond)
	}
	return &Client{
		baseURL:   base,
		imageBase: imageBase,
		apiKey:    c.APIKey,
		language:  c.Language,
		http:      hc,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func (c *Client) nowPlayingURL(page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	if c.language != "" {
		q.Set("language", c.language)
	}
	return c.baseURL + "/movie/now_playing?" + q.Encode()
}

// NowPlaying fetches one page (1-based).
func (c *Client) NowPlaying(ctx context.Context, page int) (*Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("bad page %d", page)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nowPlayingURL(page), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var status struct {
			Message string `json:"status_message"`
		}
		_ = json.Unmarshal(body, &status)
		return nil, &APIError{StatusCode: res.StatusCode, Message: status.Message}
	}
	var p Page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("bad now_playing response: %w", err)
	}
	for i := range p.Results {
		p.Results[i].imageBase = c.imageBase
	}
	return &p, nil
}

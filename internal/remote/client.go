package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kpfister44/Kinnect-sub000/internal/cache"
	"github.com/kpfister44/Kinnect-sub000/internal/post"
)

// Ensure Client implements both collaborator seams at compile time.
var (
	_ Service    = (*Client)(nil)
	_ FeedDialer = (*Client)(nil)
)

// Client talks to the Kinnect backend HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	actor     post.ActorID
}

const (
	defaultUserAgent = "kinnect/0.1"
	defaultTimeout   = 10 * time.Second
)

// NewClient builds a Client for the given base URL (scheme://host:port) and
// local actor identity. The timeout bounds every request; zero means the
// default.
func NewClient(baseURL string, actor post.ActorID, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
		actor:     actor,
	}, nil
}

// FetchPosts retrieves one page of posts for a scope.
func (c *Client) FetchPosts(ctx context.Context, scope cache.Scope, page Page) (Batch, error) {
	if c == nil {
		return Batch{}, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	values.Set("scope", scope.String())
	if page.Limit > 0 {
		values.Set("limit", strconv.Itoa(page.Limit))
	}
	if page.Cursor != "" {
		values.Set("cursor", page.Cursor)
	}

	var payload Batch
	if err := c.do(ctx, http.MethodGet, "/api/posts", values, nil, &payload); err != nil {
		return Batch{}, err
	}
	return payload, nil
}

// Mutate applies one engagement mutation and returns the confirmed state.
func (c *Client) Mutate(ctx context.Context, m Mutation) (Confirmation, error) {
	if c == nil {
		return Confirmation{}, fmt.Errorf("client is nil")
	}
	var payload Confirmation
	if err := c.do(ctx, http.MethodPost, "/api/mutations", nil, m, &payload); err != nil {
		return Confirmation{}, err
	}
	return payload, nil
}

// ResolveMedia mints fresh signed locators for the given storage keys.
func (c *Client) ResolveMedia(ctx context.Context, keys []post.MediaKey) (map[post.MediaKey]post.Media, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	req := struct {
		Keys []post.MediaKey `json:"keys"`
	}{Keys: keys}
	var payload struct {
		Media map[post.MediaKey]post.Media `json:"media"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/media/resolve", nil, req, &payload); err != nil {
		return nil, err
	}
	return payload.Media, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL.JoinPath(path)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Kinnect-Actor", string(c.actor))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("base URL is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", raw)
	}
	return base, nil
}

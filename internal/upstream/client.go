package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"
)

// Client fetches resources from the backend-as-a-service origin on behalf of
// the caching strategies.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BaseURL returns the configured origin, normalized without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch issues a GET for path?rawQuery against the origin and returns the
// response with its body fully read.
func (c *Client) Fetch(ctx context.Context, path string, rawQuery string, headers http.Header) (*http.Response, []byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	copyHeaders(req.Header, headers)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// FetchKey fetches a cache key, which is a request URL in path?query form.
func (c *Client) FetchKey(ctx context.Context, key string) (*http.Response, []byte, error) {
	u, err := url.Parse(key)
	if err != nil {
		return nil, nil, err
	}
	return c.Fetch(ctx, u.Path, u.RawQuery, http.Header{})
}

// Proxy builds a reverse proxy to the origin for requests the worker must not
// intercept.
func (c *Client) Proxy() (*httputil.ReverseProxy, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if len(vv) == 0 {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

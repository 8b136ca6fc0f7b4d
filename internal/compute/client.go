// Package compute is the client the dispatcher uses to forward calls to the
// upstream compute API. Responses are buffered in full so that the interception
// layer can read the created instance id before the body is relayed to the
// caller unchanged.
package compute

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/instance-action-log/instance-action-log/internal/telemetry"
)

// hopHeaders are connection-scoped and never forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client forwards requests to one upstream compute endpoint
type Client struct {
	BaseURL    *url.URL
	HTTPClient *http.Client
}

// Response is a fully read upstream response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewClient creates a client for baseURL. A zero timeout defaults to 60s.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid upstream url %q: scheme must be http or https", baseURL)
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL:    u,
		HTTPClient: &http.Client{Timeout: timeout},
	}, nil
}

// Forward sends method/path?query with the inbound headers and body to the
// upstream and returns its response. A transport failure is returned as an
// error and counted in compute_upstream_errors_total.
func (c *Client) Forward(ctx context.Context, in *http.Request, body []byte) (*Response, error) {
	target := *c.BaseURL
	target.Path = c.BaseURL.Path + in.URL.Path
	target.RawQuery = in.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, in.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	req.Header = in.Header.Clone()
	removeHopHeaders(req.Header)
	if in.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
			appendForwardedFor(req.Header, host)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		telemetry.UpstreamErrorsTotal.Inc()
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.UpstreamErrorsTotal.Inc()
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	header.Del("Content-Length")

	return &Response{StatusCode: resp.StatusCode, Header: header, Body: data}, nil
}

func removeHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

func appendForwardedFor(h http.Header, ip string) {
	if prior := h.Get("X-Forwarded-For"); prior != "" {
		ip = prior + ", " + ip
	}
	h.Set("X-Forwarded-For", ip)
}

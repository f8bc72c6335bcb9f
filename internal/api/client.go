// Package api is the JSON-over-HTTP client of the OSCE server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrAuthRequired is matched by every *AuthError.
var ErrAuthRequired = errors.New("authentication required")

// AuthError is returned for a 401 response that asks the client to log in again.
type AuthError struct {
	Redirect string
}

func (e *AuthError) Error() string {
	return "authentication required (redirect to " + e.Redirect + ")"
}

// Is makes errors.Is(err, ErrAuthRequired) match.
func (e *AuthError) Is(target error) bool { return target == ErrAuthRequired }

// StatusError is returned for every other non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.Code)
	}
	return fmt.Sprintf("api status %d: %s", e.Code, e.Message)
}

// Client talks to one OSCE server. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Jar is replaced by
// a fresh cookie jar when nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the whole-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL returns the server URL the client was created with.
func (c *Client) BaseURL() string { return c.base.String() }

// Cookies returns the session cookies currently held for the server.
func (c *Client) Cookies() []*http.Cookie {
	return c.http.Jar.Cookies(c.base)
}

// SetCookies restores previously saved session cookies.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.http.Jar.SetCookies(c.base, cookies)
}

// Resolve turns a server-relative link (such as a report URL) into an absolute one.
func (c *Client) Resolve(link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", link, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

// authBody is the shape of a 401 that requests a login.
type authBody struct {
	AuthRequired bool   `json:"auth_required"`
	Redirect     string `json:"redirect"`
}

// errorBody is the shape of the server's error envelope.
type errorBody struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := c.Resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// do sends a JSON request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	slog.Debug("api request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get("X-Request-ID"),
		"duration", time.Since(start),
	)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := checkResponse(resp.StatusCode, data); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkResponse(code int, data []byte) error {
	if code == http.StatusUnauthorized {
		var ab authBody
		_ = json.Unmarshal(data, &ab)
		if ab.AuthRequired || ab.Redirect != "" {
			redirect := ab.Redirect
			if redirect == "" {
				redirect = "/login"
			}
			return &AuthError{Redirect: redirect}
		}
	}
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	if code >= 200 && code < 300 {
		// Some endpoints answer 200 with {"success": false, "error": "..."}.
		if eb.Success != nil && !*eb.Success {
			return &StatusError{Code: code, Message: firstNonEmpty(eb.Error, eb.Message, "request rejected")}
		}
		return nil
	}
	return &StatusError{Code: code, Message: firstNonEmpty(eb.Error, eb.Message)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

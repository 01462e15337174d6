package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/glorpus-work/hoard/pkg/auth"
	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/ratelimit"
)

// maxResponseSize bounds JSON responses read from a provider API.
const maxResponseSize = 16 << 20

// ErrOutsideBase is returned for references that leave the provider base URL.
var ErrOutsideBase = fmt.Errorf("reference outside provider base URL")

// Client performs authenticated JSON requests below a fixed base URL.
type Client struct {
	base      *url.URL
	auth      auth.Authenticator
	http      *http.Client
	userAgent string
	now       func() time.Time
}

// NewClient creates a Client for baseURL using the credentials and transport in env.
func NewClient(baseURL string, env provider.Env) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	base.RawQuery = ""
	base.Fragment = ""

	c := &Client{
		base:      base,
		auth:      env.Auth,
		http:      env.HTTPClient,
		userAgent: env.UserAgent,
		now:       time.Now,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.userAgent == "" {
		c.userAgent = "hoard/1.0"
	}
	return c, nil
}

// SetAuth replaces the authenticator applied to every request.
func (c *Client) SetAuth(a auth.Authenticator) {
	c.auth = a
}

// Resolve turns a reference relative to the base URL into an absolute URL.
// Absolute references and paths escaping the base path are rejected.
func (c *Client) Resolve(ref string) (*url.URL, error) {
	rel, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrOutsideBase, ref, err)
	}
	if rel.Scheme != "" || rel.Host != "" || rel.User != nil {
		return nil, fmt.Errorf("%w: %q", ErrOutsideBase, ref)
	}

	basePath := strings.TrimSuffix(c.base.EscapedPath(), "/")
	u, err := c.base.Parse(basePath + "/" + strings.TrimPrefix(rel.EscapedPath(), "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrOutsideBase, ref, err)
	}
	if !strings.HasPrefix(u.EscapedPath()+"/", basePath+"/") {
		return nil, fmt.Errorf("%w: %q", ErrOutsideBase, ref)
	}
	u.RawQuery = rel.RawQuery
	return u, nil
}

// SameOrigin reports whether u is served by the base URL's host.
func (c *Client) SameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}

// AuthHeader returns the headers the authenticator adds to a request for u.
func (c *Client) AuthHeader(u *url.URL) (http.Header, error) {
	if c.auth == nil {
		return http.Header{}, nil
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	if err := c.auth.Apply(req); err != nil {
		return nil, fmt.Errorf("apply credentials: %w", err)
	}
	return req.Header, nil
}

// GetJSON fetches ref below the base URL and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, ref string, out any) error {
	u, err := c.Resolve(ref)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	return c.DoJSON(req, out)
}

// DoJSON sends req with credentials and decodes a successful JSON response
// into out, which may be nil.
func (c *Client) DoJSON(req *http.Request, out any) error {
	req.Header.Set("User-Agent", c.userAgent)
	if c.auth != nil {
		if err := c.auth.Apply(req); err != nil {
			return fmt.Errorf("apply credentials: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return fmt.Errorf("%w: %s %s: %v", errors.ErrNetwork, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := CheckResponse(resp, c.now()); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// CheckResponse maps a non-2xx response onto the sync error categories:
// 401/403 are auth failures, 404 is not found, 429 is a rate limit carrying
// Retry-After, and 5xx is a network error.
func CheckResponse(resp *http.Response, now time.Time) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	target := ""
	if resp.Request != nil && resp.Request.URL != nil {
		target = resp.Request.URL.String()
	}
	statusErr := errors.NewStatusError(resp.StatusCode, target)
	if resp.StatusCode == http.StatusTooManyRequests {
		return &errors.RateLimitedError{
			RetryAfter: ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), now),
			Err:        statusErr,
		}
	}
	return statusErr
}

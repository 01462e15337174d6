// Package httpapi implements providers that expose the owned library through
// a REST/JSON API:
//
//	GET  {base_url}/assets?page=N          {"assets": [...]}
//	GET  {base_url}/assets/{id}/files      {"files": [...]}
//	GET  {base_url}/files/{id}/locator     {"url": "...", "headers": {...}, "expires_at": "..."}
//	GET  {base_url}/me                     credential check
//	POST {token_url}                       refresh-token exchange, when configured
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/auth"
	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/model"
	"github.com/glorpus-work/hoard/pkg/provider"
)

// Settings keys read from the provider configuration.
const (
	SettingAccessToken  = "access_token"
	SettingRefreshToken = "refresh_token"
)

// Provider talks to a REST/JSON library API.
type Provider struct {
	id          string
	client      *Client
	tokenURL    string
	minInterval time.Duration

	refreshMu    sync.Mutex
	token        *auth.TokenAuth
	refreshToken string
}

var (
	_ provider.Provider  = (*Provider)(nil)
	_ provider.Throttled = (*Provider)(nil)
)

// Factory builds an http provider from a verified package.
func Factory(pkg *provider.Package, env provider.Env) (provider.Provider, error) {
	return New(pkg.Manifest, env)
}

// New creates a Provider from its manifest and local environment.
func New(m *provider.Manifest, env provider.Env) (*Provider, error) {
	client, err := NewClient(m.BaseURL, env)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", m.ID, err)
	}
	p := &Provider{
		id:           m.ID,
		client:       client,
		tokenURL:     m.TokenURL,
		minInterval:  m.MinInterval,
		refreshToken: setting(env.Settings, m.Settings, SettingRefreshToken),
	}
	if p.tokenURL != "" && p.refreshToken != "" {
		if t, ok := env.Auth.(*auth.TokenAuth); ok {
			p.token = t
		} else {
			p.token = auth.NewTokenAuth(setting(env.Settings, m.Settings, SettingAccessToken))
		}
		client.SetAuth(p.token)
	}
	return p, nil
}

// setting prefers the local configuration over manifest defaults.
func setting(local, defaults map[string]string, key string) string {
	if v, ok := local[key]; ok {
		return v
	}
	return defaults[key]
}

// Identifier returns the manifest id.
func (p *Provider) Identifier() string { return p.id }

// MinInterval returns the manifest's minimum request interval.
func (p *Provider) MinInterval() time.Duration { return p.minInterval }

// Authenticate exchanges the refresh token for a new access token when a
// token URL is configured, and otherwise checks the configured credentials.
func (p *Provider) Authenticate(ctx context.Context) error {
	if p.token != nil {
		return p.refresh(ctx)
	}
	if err := p.client.GetJSON(ctx, "me", nil); err != nil {
		return fmt.Errorf("check credentials for %s: %w", p.id, err)
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (p *Provider) refresh(ctx context.Context) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {p.refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tok tokenResponse
	// The token endpoint must not see the stale access token.
	p.token.SetToken("")
	if err := p.client.DoJSON(req, &tok); err != nil {
		var se *errors.StatusError
		if errors.As(err, &se) && se.Code == http.StatusBadRequest {
			return fmt.Errorf("%w: token refresh for %s rejected", errors.ErrAuth, p.id)
		}
		return fmt.Errorf("refresh token for %s: %w", p.id, err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("%w: token response for %s has no access_token", errors.ErrAuth, p.id)
	}
	p.token.SetToken(tok.AccessToken)
	if tok.RefreshToken != "" {
		p.refreshToken = tok.RefreshToken
	}
	logger.Debug("Refreshed provider access token", logger.Fields{"provider": p.id})
	return nil
}

type assetPage struct {
	Assets []model.RemoteAsset `json:"assets"`
}

// EnumeratePage returns one page of the remote library.
func (p *Provider) EnumeratePage(ctx context.Context, page int) ([]model.RemoteAsset, error) {
	var resp assetPage
	if err := p.client.GetJSON(ctx, "assets?page="+strconv.Itoa(page), &resp); err != nil {
		return nil, fmt.Errorf("enumerate %s page %d: %w", p.id, page, err)
	}
	for i, a := range resp.Assets {
		if a.ID == "" {
			return nil, fmt.Errorf("enumerate %s page %d: asset %d has no id", p.id, page, i)
		}
	}
	return resp.Assets, nil
}

type fileList struct {
	Files []model.FileDescriptor `json:"files"`
}

// ResolveFileMetadata lists the files of an asset.
func (p *Provider) ResolveFileMetadata(ctx context.Context, asset model.AssetID) ([]model.FileDescriptor, error) {
	var resp fileList
	if err := p.client.GetJSON(ctx, "assets/"+url.PathEscape(asset.Remote)+"/files", &resp); err != nil {
		return nil, fmt.Errorf("list files of %s: %w", asset, err)
	}
	for i, f := range resp.Files {
		if f.ID == "" || f.Filename == "" {
			return nil, fmt.Errorf("list files of %s: file %d lacks id or filename", asset, i)
		}
	}
	return resp.Files, nil
}

type locatorResponse struct {
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// ResolveFetchLocator asks the API for a download location. Locators on the
// API host carry the provider credentials.
func (p *Provider) ResolveFetchLocator(ctx context.Context, file model.FileID) (*provider.Locator, error) {
	var resp locatorResponse
	if err := p.client.GetJSON(ctx, "files/"+url.PathEscape(file.Remote)+"/locator", &resp); err != nil {
		return nil, fmt.Errorf("resolve locator of %s: %w", file, err)
	}
	return p.client.Locator(resp.URL, resp.Headers, resp.ExpiresAt)
}

// Locator builds a provider.Locator for raw, which may be relative to the base URL.
func (c *Client) Locator(raw string, headers map[string]string, expiresAt time.Time) (*provider.Locator, error) {
	if raw == "" {
		return nil, fmt.Errorf("locator has no url: %w", errors.ErrNotFound)
	}
	u, err := c.base.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid locator url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("locator url %q must be http(s)", raw)
	}

	header := http.Header{}
	if c.SameOrigin(u) {
		if header, err = c.AuthHeader(u); err != nil {
			return nil, err
		}
	}
	for k, v := range headers {
		header.Set(k, v)
	}
	return &provider.Locator{URL: u.String(), Header: header, ExpiresAt: expiresAt}, nil
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/hoard/pkg/auth"
	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/model"
	"github.com/glorpus-work/hoard/pkg/provider"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newAPI(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, srv *httptest.Server, env provider.Env, mutate ...func(*provider.Manifest)) *Provider {
	t.Helper()
	m := &provider.Manifest{
		ID:          "shop",
		Version:     "1.0.0",
		APIVersion:  "1.0.0",
		Kind:        provider.KindHTTP,
		BaseURL:     srv.URL + "/api",
		MinInterval: 250 * time.Millisecond,
	}
	for _, f := range mutate {
		f(m)
	}
	p, err := New(m, env)
	require.NoError(t, err)
	return p
}

func TestEnumeratePage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/assets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Query().Get("page") {
		case "0":
			writeJSON(w, map[string]any{"assets": []map[string]any{
				{"id": "a1", "title": "Forest", "creator": "Studio", "modified": "2024-05-01T10:00:00Z"},
				{"id": "a2", "title": "Desert", "creator": "Studio"},
			}})
		default:
			writeJSON(w, map[string]any{"assets": []any{}})
		}
	})
	srv := newAPI(t, mux)
	p := newProvider(t, srv, provider.Env{Auth: auth.BearerAuth{Token: "secret"}})

	page, err := p.EnumeratePage(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a1", page[0].ID)
	assert.Equal(t, "Forest", page[0].Title)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), page[0].Modified.UTC())

	page, err = p.EnumeratePage(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, page)

	assert.Equal(t, "shop", p.Identifier())
	assert.Equal(t, 250*time.Millisecond, provider.MinIntervalOf(p))
}

func TestEnumeratePage_RejectsAssetWithoutID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/assets", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"assets": []map[string]any{{"title": "nameless"}}})
	})
	p := newProvider(t, newAPI(t, mux), provider.Env{})

	_, err := p.EnumeratePage(context.Background(), 0)
	assert.Error(t, err)
}

func TestResolveFileMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/assets/a1/files", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"files": []map[string]any{
			{"id": "f1", "filename": "pack.zip", "size": 1024, "digest": "sha256:ABC"},
			{"id": "f2", "filename": "readme.txt", "change_token": "v3"},
		}})
	})
	p := newProvider(t, newAPI(t, mux), provider.Env{})

	files, err := p.ResolveFileMetadata(context.Background(), model.AssetID{Provider: "shop", Remote: "a1"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, model.FileDescriptor{ID: "f1", Filename: "pack.zip", Size: 1024, Digest: "sha256:ABC"}, files[0])
	assert.Equal(t, "v3", files[1].ChangeToken)
}

func TestResolveFetchLocator(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/files/f1/locator", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"url": "/api/download/f1", "expires_at": expires})
	})
	mux.HandleFunc("/api/files/f2/locator", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"url":     "https://cdn.example.com/f2?sig=abc",
			"headers": map[string]string{"X-Signed": "1"},
		})
	})
	mux.HandleFunc("/api/files/f3/locator", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{})
	})
	srv := newAPI(t, mux)
	p := newProvider(t, srv, provider.Env{Auth: auth.BearerAuth{Token: "secret"}})
	ctx := context.Background()

	loc, err := p.ResolveFetchLocator(ctx, model.FileID{Provider: "shop", Remote: "f1"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/api/download/f1", loc.URL)
	assert.Equal(t, "Bearer secret", loc.Header.Get("Authorization"))
	assert.Equal(t, expires, loc.ExpiresAt.UTC())

	loc, err = p.ResolveFetchLocator(ctx, model.FileID{Provider: "shop", Remote: "f2"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/f2?sig=abc", loc.URL)
	assert.Empty(t, loc.Header.Get("Authorization"))
	assert.Equal(t, "1", loc.Header.Get("X-Signed"))

	_, err = p.ResolveFetchLocator(ctx, model.FileID{Provider: "shop", Remote: "f3"})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: errors.ErrAuth},
		{name: "forbidden", status: http.StatusForbidden, want: errors.ErrAuth},
		{name: "not found", status: http.StatusNotFound, want: errors.ErrNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "7"}, want: errors.ErrRateLimited},
		{name: "server error", status: http.StatusBadGateway, want: errors.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/assets", func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			})
			p := newProvider(t, newAPI(t, mux), provider.Env{})

			_, err := p.EnumeratePage(context.Background(), 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			if tt.status == http.StatusTooManyRequests {
				wait, ok := errors.RetryAfter(err)
				assert.True(t, ok)
				assert.Equal(t, 7*time.Second, wait)
			}
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	p := newProvider(t, srv, provider.Env{})
	srv.Close()

	_, err := p.EnumeratePage(context.Background(), 0)
	assert.ErrorIs(t, err, errors.ErrNetwork)
}

func TestAuthenticate_ChecksCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "me" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]string{"name": "me"})
	})
	srv := newAPI(t, mux)

	good := newProvider(t, srv, provider.Env{Auth: auth.BasicAuth{Username: "me", Password: "pw"}})
	assert.NoError(t, good.Authenticate(context.Background()))

	bad := newProvider(t, srv, provider.Env{Auth: auth.BasicAuth{Username: "me", Password: "nope"}})
	assert.ErrorIs(t, bad.Authenticate(context.Background()), errors.ErrAuth)
}

func TestAuthenticate_RefreshesToken(t *testing.T) {
	var refreshTokens []string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		refreshTokens = append(refreshTokens, r.PostForm.Get("refresh_token"))
		writeJSON(w, map[string]string{"access_token": "access-" + r.PostForm.Get("refresh_token"), "refresh_token": "r2"})
	})
	mux.HandleFunc("/api/assets", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"assets": []any{}})
	})
	srv := newAPI(t, mux)
	env := provider.Env{Settings: map[string]string{SettingRefreshToken: "r1", SettingAccessToken: "expired"}}
	p := newProvider(t, srv, env, func(m *provider.Manifest) { m.TokenURL = srv.URL + "/oauth/token" })
	ctx := context.Background()

	_, err := p.EnumeratePage(ctx, 0)
	require.ErrorIs(t, err, errors.ErrAuth)

	require.NoError(t, p.Authenticate(ctx))
	_, err = p.EnumeratePage(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, p.Authenticate(ctx))
	assert.Equal(t, []string{"r1", "r2"}, refreshTokens)
}

func TestAuthenticate_RefreshRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	srv := newAPI(t, mux)
	env := provider.Env{Settings: map[string]string{SettingRefreshToken: "revoked"}}
	p := newProvider(t, srv, env, func(m *provider.Manifest) { m.TokenURL = srv.URL + "/oauth/token" })

	assert.ErrorIs(t, p.Authenticate(context.Background()), errors.ErrAuth)
}

func TestClient_Resolve(t *testing.T) {
	c, err := NewClient("https://api.example.com/v1/", provider.Env{})
	require.NoError(t, err)

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "assets?page=2", want: "https://api.example.com/v1/assets?page=2"},
		{ref: "/assets/a%2Fb/files", want: "https://api.example.com/v1/assets/a%2Fb/files"},
		{ref: "me", want: "https://api.example.com/v1/me"},
		{ref: "../admin", wantErr: true},
		{ref: "https://evil.example.com/x", wantErr: true},
		{ref: "//evil.example.com/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			u, err := c.Resolve(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideBase)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestNewClient_InvalidBase(t *testing.T) {
	for _, raw := range []string{"", "ftp://x", "relative/path"} {
		_, err := NewClient(raw, provider.Env{})
		assert.Error(t, err, raw)
	}
}

func TestFactory(t *testing.T) {
	manifest := []byte("id: shop\nversion: 1.0.0\napi_version: 1.0.0\nkind: http\nbase_url: https://api.example.com\n")
	pkg, err := provider.NewPackage(manifest, nil, "")
	require.NoError(t, err)

	p, err := Factory(pkg, provider.Env{})
	require.NoError(t, err)
	assert.Equal(t, "shop", p.Identifier())
}

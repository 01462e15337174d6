package provider_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glorpus-work/hoard/pkg/archive"
	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/provider"
	mock_provider "github.com/glorpus-work/hoard/pkg/provider/mocks"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func manifestYAML(id, ver, api string) []byte {
	return []byte(fmt.Sprintf(`id: %s
name: Test %s
version: %s
api_version: %s
kind: http
base_url: https://%s.example.com/api
`, id, id, ver, api, id))
}

func signedPackage(t *testing.T, key ed25519.PrivateKey, manifest []byte) *provider.Package {
	t.Helper()
	pkg, err := provider.NewPackage(manifest, nil, provider.Sign(key, manifest, nil))
	require.NoError(t, err)
	return pkg
}

// mockFactory builds gomock providers identifying as the manifest id.
func mockFactory(ctrl *gomock.Controller) provider.Factory {
	return func(pkg *provider.Package, _ provider.Env) (provider.Provider, error) {
		p := mock_provider.NewMockProvider(ctrl)
		p.EXPECT().Identifier().Return(pkg.Manifest.ID).AnyTimes()
		return p, nil
	}
}

func newRegistry(t *testing.T, key ed25519.PrivateKey, opts ...provider.Option) *provider.Registry {
	t.Helper()
	ctrl := gomock.NewController(t)
	base := []provider.Option{
		provider.WithTrustAnchors(key.Public().(ed25519.PublicKey)),
		provider.WithFactory(provider.KindHTTP, mockFactory(ctrl)),
	}
	r, err := provider.NewRegistry(append(base, opts...)...)
	require.NoError(t, err)
	return r
}

func TestRegistry_Register(t *testing.T) {
	key := newKey(t)
	r := newRegistry(t, key)

	require.NoError(t, r.Register(signedPackage(t, key, manifestYAML("shop", "1.2.0", "1.0.0"))))

	p, err := r.Lookup("shop")
	require.NoError(t, err)
	assert.Equal(t, "shop", p.Identifier())
	assert.Len(t, r.ListActive(), 1)

	entries := r.List()
	require.Len(t, entries, 1)
	assert.Equal(t, provider.TrustVerified, entries[0].Trust)
	assert.True(t, entries[0].Enabled)
	assert.Equal(t, "1.2.0", entries[0].Version)
}

func TestRegistry_Register_Rejections(t *testing.T) {
	key := newKey(t)
	stranger := newKey(t)

	tampered := signedPackage(t, key, manifestYAML("shop", "1.0.0", "1.0.0"))
	tampered.ManifestData = append(tampered.ManifestData, []byte("# edited\n")...)

	unsigned := signedPackage(t, key, manifestYAML("shop", "1.0.0", "1.0.0"))
	unsigned.Signature = ""

	scriptManifest := []byte("id: shop\nversion: 1.0.0\napi_version: 1.0.0\nkind: script\n")

	tests := []struct {
		name string
		pkg  *provider.Package
		want error
	}{
		{name: "unrecognized signer", pkg: signedPackage(t, stranger, manifestYAML("shop", "1.0.0", "1.0.0")), want: errors.ErrSignatureInvalid},
		{name: "missing signature", pkg: unsigned, want: errors.ErrSignatureInvalid},
		{name: "tampered manifest", pkg: tampered, want: errors.ErrSignatureInvalid},
		{name: "api too new", pkg: signedPackage(t, key, manifestYAML("shop", "1.0.0", "2.0.0")), want: errors.ErrVersionIncompatible},
		{name: "api too old", pkg: signedPackage(t, key, manifestYAML("shop", "1.0.0", "0.9.0")), want: errors.ErrVersionIncompatible},
		{name: "no factory for kind", pkg: signedPackage(t, key, scriptManifest), want: errors.ErrUnknownProviderKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t, key)
			err := r.Register(tt.pkg)
			assert.ErrorIs(t, err, tt.want)

			_, err = r.Lookup("shop")
			assert.ErrorIs(t, err, errors.ErrProviderNotFound)
			assert.Empty(t, r.ListActive())

			entries := r.List()
			require.Len(t, entries, 1)
			assert.Equal(t, provider.TrustRejected, entries[0].Trust)
			assert.NotEmpty(t, entries[0].Reason)
		})
	}
}

func TestRegistry_RejectionKeepsOthersUsable(t *testing.T) {
	key := newKey(t)
	r := newRegistry(t, key)
	require.NoError(t, r.Register(signedPackage(t, key, manifestYAML("good", "1.0.0", "1.0.0"))))

	err := r.Register(signedPackage(t, newKey(t), manifestYAML("evil", "1.0.0", "1.0.0")))
	require.ErrorIs(t, err, errors.ErrSignatureInvalid)

	err = r.Register(signedPackage(t, newKey(t), manifestYAML("good", "9.0.0", "1.0.0")))
	require.ErrorIs(t, err, errors.ErrSignatureInvalid)

	p, err := r.Lookup("good")
	require.NoError(t, err)
	assert.Equal(t, "good", p.Identifier())
	require.Len(t, r.ListActive(), 1)
	assert.Equal(t, "1.0.0", r.List()[0].Version, "a rejected package never replaces a verified one")
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	key := newKey(t)
	r := newRegistry(t, key)

	require.NoError(t, r.Register(signedPackage(t, key, manifestYAML("shop", "1.0.0", "1.0.0"))))
	require.NoError(t, r.Register(signedPackage(t, key, manifestYAML("shop", "1.1.0", "1.1.0"))))

	entries := r.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "1.1.0", entries[0].Version)
}

func TestRegistry_EnableDisable(t *testing.T) {
	key := newKey(t)
	r := newRegistry(t, key, provider.WithEnabled(func(id string) bool { return id != "off" }))

	require.NoError(t, r.Register(signedPackage(t, key, manifestYAML("on", "1.0.0", "1.0.0"))))
	require.NoError(t, r.Register(signedPackage(t, key, manifestYAML("off", "1.0.0", "1.0.0"))))

	active := r.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "on", active[0].Identifier())
	_, err := r.Lookup("off")
	assert.ErrorIs(t, err, errors.ErrProviderNotFound)

	require.NoError(t, r.Enable("off"))
	require.NoError(t, r.Disable("on"))
	active = r.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "off", active[0].Identifier())

	assert.ErrorIs(t, r.Enable("missing"), errors.ErrProviderNotFound)

	require.NoError(t, r.Unregister("on"))
	assert.ErrorIs(t, r.Unregister("on"), errors.ErrProviderNotFound)
	assert.Len(t, r.List(), 1)
}

func TestRegistry_IdentifierMismatch(t *testing.T) {
	key := newKey(t)
	ctrl := gomock.NewController(t)
	r, err := provider.NewRegistry(
		provider.WithTrustAnchors(key.Public().(ed25519.PublicKey)),
		provider.WithFactory(provider.KindHTTP, func(*provider.Package, provider.Env) (provider.Provider, error) {
			p := mock_provider.NewMockProvider(ctrl)
			p.EXPECT().Identifier().Return("other").AnyTimes()
			return p, nil
		}),
	)
	require.NoError(t, err)

	err = r.Register(signedPackage(t, key, manifestYAML("shop", "1.0.0", "1.0.0")))
	assert.ErrorIs(t, err, errors.ErrManifestInvalid)
}

func TestRegistry_EnvironmentPassedToFactory(t *testing.T) {
	key := newKey(t)
	ctrl := gomock.NewController(t)
	var got provider.Env
	r, err := provider.NewRegistry(
		provider.WithTrustAnchors(key.Public().(ed25519.PublicKey)),
		provider.WithEnvironment(func(id string) provider.Env {
			return provider.Env{Settings: map[string]string{"for": id}, UserAgent: "hoard-test"}
		}),
		provider.WithFactory(provider.KindHTTP, func(pkg *provider.Package, env provider.Env) (provider.Provider, error) {
			got = env
			return mockFactory(ctrl)(pkg, env)
		}),
	)
	require.NoError(t, err)

	require.NoError(t, r.Register(signedPackage(t, key, manifestYAML("shop", "1.0.0", "1.0.0"))))
	assert.Equal(t, "shop", got.Settings["for"])
	assert.Equal(t, "hoard-test", got.UserAgent)
}

func TestNewRegistry_InvalidConstraint(t *testing.T) {
	_, err := provider.NewRegistry(provider.WithAPIConstraint("not a constraint"))
	assert.Error(t, err)
}

func writePackageDir(t *testing.T, dir string, key ed25519.PrivateKey, manifest []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, provider.ManifestFile), manifest, 0o644))
	if key != nil {
		sig := provider.Sign(key, manifest, nil)
		require.NoError(t, os.WriteFile(filepath.Join(dir, provider.SignatureFile), []byte(sig), 0o644))
	}
}

func TestRegistry_Discover(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)
	pluginDir := t.TempDir()

	writePackageDir(t, filepath.Join(pluginDir, "alpha"), key, manifestYAML("alpha", "1.0.0", "1.0.0"))
	writePackageDir(t, filepath.Join(pluginDir, "unsigned"), nil, manifestYAML("unsigned", "1.0.0", "1.0.0"))
	writePackageDir(t, filepath.Join(pluginDir, "broken"), nil, []byte("id: [not valid"))

	packed := filepath.Join(t.TempDir(), "beta")
	writePackageDir(t, packed, key, manifestYAML("beta", "1.0.0", "1.0.0"))
	require.NoError(t, archive.Create(ctx, packed, filepath.Join(pluginDir, "beta"+archive.Extension)))

	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "README.md"), []byte("ignored"), 0o644))

	r := newRegistry(t, key)
	report, err := r.Discover(ctx, pluginDir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, report.Registered)
	require.Len(t, report.Rejected, 2)

	var reasons []error
	for _, rej := range report.Rejected {
		reasons = append(reasons, rej.Err)
	}
	assert.True(t, errors.Is(reasons[0], errors.ErrManifestInvalid) || errors.Is(reasons[1], errors.ErrManifestInvalid))
	assert.True(t, errors.Is(reasons[0], errors.ErrSignatureInvalid) || errors.Is(reasons[1], errors.ErrSignatureInvalid))

	assert.Len(t, r.ListActive(), 2)
}

func TestRegistry_Discover_MissingDir(t *testing.T) {
	r := newRegistry(t, newKey(t))
	report, err := r.Discover(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, report.Registered)
}

func TestRegistry_Rescan(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)
	pluginDir := t.TempDir()
	writePackageDir(t, filepath.Join(pluginDir, "alpha"), key, manifestYAML("alpha", "1.0.0", "1.0.0"))
	writePackageDir(t, filepath.Join(pluginDir, "beta"), key, manifestYAML("beta", "1.0.0", "1.0.0"))

	r := newRegistry(t, key)
	_, err := r.Discover(ctx, pluginDir)
	require.NoError(t, err)
	require.NoError(t, r.Disable("alpha"))

	require.NoError(t, os.RemoveAll(filepath.Join(pluginDir, "beta")))
	report, err := r.Rescan(ctx, pluginDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, report.Registered)

	_, err = r.Lookup("beta")
	assert.ErrorIs(t, err, errors.ErrProviderNotFound)

	entries := r.List()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Enabled, "disable survives a rescan")
}

func TestSignDirectory(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "plugin")
	writePackageDir(t, dir, nil, manifestYAML("shop", "1.0.0", "1.0.0"))

	pub, priv, err := provider.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, provider.SignDirectory(ctx, dir, []byte(priv)))

	pkg, err := provider.LoadPackage(ctx, dir)
	require.NoError(t, err)

	anchor, err := provider.ParsePublicKey(pub)
	require.NoError(t, err)
	assert.NoError(t, provider.VerifySignature([]ed25519.PublicKey{anchor}, pkg.ManifestData, pkg.Script, pkg.Signature))
}

func TestLoadPackage_Script(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)
	dir := filepath.Join(t.TempDir(), "scripted")
	manifest := []byte("id: scripted\nversion: 1.0.0\napi_version: 1.0.0\nkind: script\nscript: main.tengo\n")
	script := []byte(`result := []`)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, provider.ManifestFile), manifest, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.tengo"), script, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, provider.SignatureFile), []byte(provider.Sign(key, manifest, script)), 0o644))

	pkg, err := provider.LoadPackage(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, script, pkg.Script)
	assert.NoError(t, provider.VerifySignature([]ed25519.PublicKey{key.Public().(ed25519.PublicKey)}, pkg.ManifestData, pkg.Script, pkg.Signature))

	require.NoError(t, os.Remove(filepath.Join(dir, "main.tengo")))
	_, err = provider.LoadPackage(ctx, dir)
	assert.ErrorIs(t, err, errors.ErrManifestInvalid)
}

func TestTrustAnchorIsValid(t *testing.T) {
	key, err := provider.ParsePublicKey(provider.TrustAnchor)
	require.NoError(t, err)
	assert.Len(t, key, ed25519.PublicKeySize)
	assert.Equal(t, provider.TrustAnchor, hex.EncodeToString(key))
}

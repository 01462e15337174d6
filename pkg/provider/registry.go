package provider

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/auth"
	"github.com/glorpus-work/hoard/pkg/errors"
)

// SupportedAPIVersions is the range of provider API versions this core accepts.
const SupportedAPIVersions = ">= 1.0, < 2.0"

// TrustStatus records the outcome of the registration gate.
type TrustStatus string

// Trust statuses.
const (
	TrustVerified TrustStatus = "verified"
	TrustRejected TrustStatus = "rejected"
)

// Env carries the local configuration a factory needs to build a provider.
type Env struct {
	Settings   map[string]string
	Auth       auth.Authenticator
	HTTPClient *http.Client
	UserAgent  string
}

// Factory builds a provider from a verified package.
type Factory func(pkg *Package, env Env) (Provider, error)

// Entry describes a registered or rejected provider.
type Entry struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Version    string      `json:"version"`
	APIVersion string      `json:"api_version"`
	Kind       Kind        `json:"kind"`
	Source     string      `json:"source,omitempty"`
	Trust      TrustStatus `json:"trust"`
	Reason     string      `json:"reason,omitempty"`
	Enabled    bool        `json:"enabled"`

	provider Provider
}

// Registry owns the providers that passed the signature and version gate.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	rejected   map[string]*Entry
	overrides  map[string]bool
	anchors    []ed25519.PublicKey
	constraint version.Constraints
	factories  map[Kind]Factory
	envFor     func(id string) Env
	enabledFor func(id string) bool
}

// Option configures a Registry.
type Option func(*Registry) error

// WithTrustAnchors adds public keys accepted for package signatures.
func WithTrustAnchors(keys ...ed25519.PublicKey) Option {
	return func(r *Registry) error {
		r.anchors = append(r.anchors, keys...)
		return nil
	}
}

// WithoutDefaultTrustAnchor removes the built-in trust anchor.
func WithoutDefaultTrustAnchor() Option {
	return func(r *Registry) error {
		r.anchors = r.anchors[1:]
		return nil
	}
}

// WithAPIConstraint overrides SupportedAPIVersions.
func WithAPIConstraint(c string) Option {
	return func(r *Registry) error {
		constraint, err := version.NewConstraint(c)
		if err != nil {
			return fmt.Errorf("invalid API constraint %q: %w", c, err)
		}
		r.constraint = constraint
		return nil
	}
}

// WithFactory registers the builder for a provider kind.
func WithFactory(kind Kind, f Factory) Option {
	return func(r *Registry) error {
		r.factories[kind] = f
		return nil
	}
}

// WithEnvironment sets the function supplying per-provider configuration.
func WithEnvironment(f func(id string) Env) Option {
	return func(r *Registry) error {
		r.envFor = f
		return nil
	}
}

// WithEnabled sets the function deciding whether a newly seen provider starts enabled.
func WithEnabled(f func(id string) bool) Option {
	return func(r *Registry) error {
		r.enabledFor = f
		return nil
	}
}

// NewRegistry creates an empty Registry trusting the built-in anchor.
func NewRegistry(opts ...Option) (*Registry, error) {
	anchor, err := ParsePublicKey(TrustAnchor)
	if err != nil {
		return nil, err
	}
	constraint, err := version.NewConstraint(SupportedAPIVersions)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		entries:    make(map[string]*Entry),
		rejected:   make(map[string]*Entry),
		overrides:  make(map[string]bool),
		anchors:    []ed25519.PublicKey{anchor},
		constraint: constraint,
		factories:  make(map[Kind]Factory),
		envFor:     func(string) Env { return Env{} },
		enabledFor: func(string) bool { return true },
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register verifies pkg's signature, checks its API version and builds the
// provider. A rejected package is recorded with its reason and the error
// returned; providers already registered are unaffected. Registering an id
// that is already present replaces it.
func (r *Registry) Register(pkg *Package) error {
	entry := &Entry{
		ID:         pkg.Manifest.ID,
		Name:       pkg.Manifest.Name,
		Version:    pkg.Manifest.Version,
		APIVersion: pkg.Manifest.APIVersion,
		Kind:       pkg.Manifest.Kind,
		Source:     pkg.Source,
	}

	p, err := r.admit(pkg)
	if err != nil {
		entry.Trust = TrustRejected
		entry.Reason = err.Error()
		r.mu.Lock()
		r.rejected[rejectionKey(entry)] = entry
		r.mu.Unlock()
		logger.Warn("Provider rejected", logger.Fields{"provider": entry.ID, "source": entry.Source, "error": err.Error()})
		return err
	}

	entry.Trust = TrustVerified
	entry.provider = p

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[entry.ID]; ok {
		logger.Warn("Provider registered twice, replacing previous registration", logger.Fields{
			"provider":    entry.ID,
			"previous":    prev.Version,
			"version":     entry.Version,
			"source":      entry.Source,
			"prev_source": prev.Source,
		})
	}
	delete(r.rejected, rejectionKey(entry))
	r.entries[entry.ID] = entry
	logger.Debug("Provider registered", logger.Fields{"provider": entry.ID, "version": entry.Version, "kind": string(entry.Kind)})
	return nil
}

func rejectionKey(e *Entry) string {
	return e.ID + "\x00" + e.Source
}

func (r *Registry) admit(pkg *Package) (Provider, error) {
	r.mu.RLock()
	anchors := r.anchors
	constraint := r.constraint
	factory, ok := r.factories[pkg.Manifest.Kind]
	r.mu.RUnlock()

	if err := VerifySignature(anchors, pkg.ManifestData, pkg.Script, pkg.Signature); err != nil {
		return nil, err
	}

	apiVersion, err := version.NewSemver(pkg.Manifest.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrManifestInvalid, err)
	}
	if !constraint.Check(apiVersion) {
		return nil, fmt.Errorf("%w: %s requires API %s, supported %s",
			errors.ErrVersionIncompatible, pkg.Manifest.ID, apiVersion, constraint)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownProviderKind, pkg.Manifest.Kind)
	}
	p, err := factory(pkg, r.envFor(pkg.Manifest.ID))
	if err != nil {
		return nil, fmt.Errorf("build provider %s: %w", pkg.Manifest.ID, err)
	}
	if p.Identifier() != pkg.Manifest.ID {
		return nil, fmt.Errorf("%w: provider identifies as %q, manifest declares %q",
			errors.ErrManifestInvalid, p.Identifier(), pkg.Manifest.ID)
	}
	return p, nil
}

// Unregister removes a provider. The enable/disable state is kept.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return errors.ErrProviderNotFoundWithID(id)
	}
	delete(r.entries, id)
	return nil
}

// Lookup returns the provider with the given id. Fails with
// errors.ErrProviderNotFound if it is not registered or is disabled.
func (r *Registry) Lookup(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || !r.enabledLocked(id) {
		return nil, errors.ErrProviderNotFoundWithID(id)
	}
	return e.provider, nil
}

// ListActive returns the enabled providers ordered by id.
func (r *Registry) ListActive() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		if r.enabledLocked(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]Provider, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id].provider)
	}
	return out
}

// List returns every registered and rejected entry, registered first, each
// group ordered by id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries)+len(r.rejected))
	for _, e := range r.entries {
		c := *e
		c.Enabled = r.enabledLocked(e.ID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	rejected := make([]Entry, 0, len(r.rejected))
	for _, e := range r.rejected {
		rejected = append(rejected, *e)
	}
	sort.Slice(rejected, func(i, j int) bool {
		if rejected[i].ID != rejected[j].ID {
			return rejected[i].ID < rejected[j].ID
		}
		return rejected[i].Source < rejected[j].Source
	})
	return append(out, rejected...)
}

// Enable marks a registered provider active for sync runs.
func (r *Registry) Enable(id string) error {
	return r.setEnabled(id, true)
}

// Disable excludes a registered provider from sync runs without unregistering it.
func (r *Registry) Disable(id string) error {
	return r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return errors.ErrProviderNotFoundWithID(id)
	}
	r.overrides[id] = enabled
	return nil
}

func (r *Registry) enabledLocked(id string) bool {
	if enabled, ok := r.overrides[id]; ok {
		return enabled
	}
	return r.enabledFor(id)
}

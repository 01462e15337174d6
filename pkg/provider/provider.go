// Package provider defines the capability set every remote content source
// implements, the signed plugin package format that declares a provider, and
// the Registry that gates packages on signature and API version before they
// take part in a sync.
//
//go:generate mockgen -destination=./mocks/provider.go -package=mock_provider . Provider
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/glorpus-work/hoard/pkg/model"
)

// Provider is a remote content source.
// No method writes to the catalog; callers persist what they return.
type Provider interface {
	// Identifier is the stable namespace of every identity this provider returns.
	Identifier() string

	// Authenticate establishes or refreshes credentials. Fails with
	// errors.ErrAuth when the credentials are rejected or expired.
	Authenticate(ctx context.Context) error

	// EnumeratePage returns page (0-based) of the remote library. An empty
	// page marks the end.
	EnumeratePage(ctx context.Context, page int) ([]model.RemoteAsset, error)

	// ResolveFileMetadata lists the files of one asset in remote order.
	ResolveFileMetadata(ctx context.Context, asset model.AssetID) ([]model.FileDescriptor, error)

	// ResolveFetchLocator returns a time-bounded location to download a file from.
	ResolveFetchLocator(ctx context.Context, file model.FileID) (*Locator, error)
}

// Locator is a resolved download location.
type Locator struct {
	URL string
	// Header is sent with every request against URL.
	Header http.Header
	// ExpiresAt is zero when the provider gave no expiry.
	ExpiresAt time.Time
}

// Expired reports whether the locator can no longer be used at now.
func (l *Locator) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

// Throttled is implemented by providers that declare a minimum interval
// between requests.
type Throttled interface {
	MinInterval() time.Duration
}

// MinIntervalOf returns the declared minimum request interval of p, or zero.
func MinIntervalOf(p Provider) time.Duration {
	if t, ok := p.(Throttled); ok {
		return t.MinInterval()
	}
	return 0
}

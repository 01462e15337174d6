// Package reconcile diffs a provider's remote library against the catalog and
// derives the transfer intents that bring the local mirror up to date.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/events"
	"github.com/glorpus-work/hoard/pkg/metrics"
	"github.com/glorpus-work/hoard/pkg/model"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/ratelimit"
	"github.com/glorpus-work/hoard/pkg/retry"
	"github.com/glorpus-work/hoard/pkg/transfer"
)

// DefaultMaxPages bounds enumeration of a provider that never returns an empty page.
const DefaultMaxPages = 100000

// Catalog is the catalog access the reconciler needs.
type Catalog interface {
	UpsertAsset(ctx context.Context, asset model.Asset) (*model.Asset, error)
	UpsertFile(ctx context.Context, file model.File) (*model.File, bool, error)
}

// InFlightChecker reports files that currently have a transfer running.
type InFlightChecker interface {
	InFlight(id model.FileID) bool
}

// Options configures a Reconciler.
type Options struct {
	// Root is the absolute library root that destinations are derived from.
	Root     string
	Retry    retry.Config
	Limiter  *ratelimit.Limiter
	Events   *events.Broadcaster
	InFlight InFlightChecker
	MaxPages int
}

// AssetFailure records an asset whose files could not be listed.
type AssetFailure struct {
	Asset model.AssetID
	Err   error
}

// Result summarizes one reconciliation of one provider.
type Result struct {
	Provider string
	Pages    int
	// AssetsUpserted counts every asset refreshed from the remote, wanted or not.
	AssetsUpserted int
	// AssetsSkipped counts assets that are not wanted.
	AssetsSkipped int
	// Intents are the transfers to run, in remote order.
	Intents []*transfer.Intent
	// Unchanged counts files whose local copy is current.
	Unchanged int
	// Removed counts files skipped because the user removed them.
	Removed int
	// InFlight counts files skipped because a transfer is already running.
	InFlight int
	Failures []AssetFailure
}

// Reconciler derives transfer intents from a provider's remote state.
type Reconciler struct {
	catalog Catalog
	opts    Options
}

// New creates a Reconciler writing to cat.
func New(cat Catalog, opts Options) (*Reconciler, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("%w: library root is required", errors.ErrInvalidPath)
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	return &Reconciler{catalog: cat, opts: opts}, nil
}

// Reconcile pages through p's library, upserting every asset, and emits an
// intent for each file of a wanted asset that is missing, incomplete or stale.
// Files marked removed are never emitted. On error the returned Result holds
// what was reconciled before the failure.
func (r *Reconciler) Reconcile(ctx context.Context, p provider.Provider) (*Result, error) {
	id := p.Identifier()
	res := &Result{Provider: id}
	c := &caller{provider: p, opts: r.opts}
	seen := make(map[model.FileID]struct{})
	fields := logger.Fields{"provider": id}

	for page := 0; ; page++ {
		if page >= r.opts.MaxPages {
			return res, fmt.Errorf("enumerate %s: no empty page after %d pages", id, page)
		}

		var remote []model.RemoteAsset
		err := c.do(ctx, func(ctx context.Context) error {
			var err error
			remote, err = p.EnumeratePage(ctx, page)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("enumerate %s page %d: %w", id, page, err)
		}
		if len(remote) == 0 {
			break
		}
		res.Pages++

		assets := make([]*model.Asset, 0, len(remote))
		for _, ra := range remote {
			stored, err := r.catalog.UpsertAsset(ctx, ra.ToAsset(id))
			if err != nil {
				return res, fmt.Errorf("upsert asset %s/%s: %w", id, ra.ID, err)
			}
			res.AssetsUpserted++
			metrics.RecordAssetUpserted(id)
			r.opts.Events.Publish(events.Event{Type: events.AssetUpserted, Provider: id, Asset: ra.ID})
			assets = append(assets, stored)
		}

		for _, asset := range assets {
			if !asset.Wanted {
				res.AssetsSkipped++
				continue
			}
			if err := r.reconcileAsset(ctx, c, asset, res, seen); err != nil {
				return res, err
			}
		}
		logger.Debug("Reconciled page", fields, logger.Fields{"page": page, "assets": len(remote)})
	}

	logger.Info("Reconciled provider", fields, logger.Fields{
		"pages":     res.Pages,
		"assets":    res.AssetsUpserted,
		"intents":   len(res.Intents),
		"unchanged": res.Unchanged,
	})
	return res, nil
}

// reconcileAsset diffs the files of one wanted asset. Only authentication,
// catalog and cancellation errors are returned; other failures to list the
// files are recorded on res.
func (r *Reconciler) reconcileAsset(ctx context.Context, c *caller, asset *model.Asset, res *Result, seen map[model.FileID]struct{}) error {
	var descs []model.FileDescriptor
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		descs, err = c.provider.ResolveFileMetadata(ctx, asset.ID)
		return err
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.IsAuth(err):
		return fmt.Errorf("list files of %s: %w", asset.ID, err)
	default:
		logger.Warn("Failed to list asset files", logger.Fields{"provider": res.Provider, "asset": asset.ID.Remote, "error": err.Error()})
		res.Failures = append(res.Failures, AssetFailure{Asset: asset.ID, Err: err})
		return nil
	}

	for _, d := range descs {
		id := model.FileID{Provider: asset.ID.Provider, Remote: d.ID}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		stored, created, err := r.catalog.UpsertFile(ctx, model.File{
			ID:       id,
			Asset:    asset.ID,
			Filename: d.Filename,
			Size:     d.Size,
		})
		if err != nil {
			return fmt.Errorf("upsert file %s: %w", id, err)
		}

		indicator := model.Indicator(d, asset.RemoteModified)
		switch {
		case stored.Removed:
			res.Removed++
			continue
		case !created && indicator.Matches(stored):
			res.Unchanged++
			continue
		case r.opts.InFlight != nil && r.opts.InFlight.InFlight(id):
			res.InFlight++
			continue
		}

		it, err := transfer.NewIntent(r.opts.Root, asset, d, indicator)
		if err != nil {
			return fmt.Errorf("derive destination of %s: %w", id, err)
		}
		res.Intents = append(res.Intents, it)
		metrics.RecordIntent(id.Provider)
		r.opts.Events.Publish(events.Event{
			Type: events.FileEnqueued, Provider: id.Provider,
			Asset: asset.ID.Remote, File: d.ID, Total: d.Size,
		})
	}
	return nil
}

// caller runs provider calls under the retry policy, honouring the provider's
// request interval, and re-authenticates once per reconciliation on ErrAuth.
type caller struct {
	provider provider.Provider
	opts     Options
	reauthed bool
}

func (c *caller) do(ctx context.Context, fn func(ctx context.Context) error) error {
	id := c.provider.Identifier()
	minInterval := provider.MinIntervalOf(c.provider)
	c.opts.Limiter.Set(id, minInterval)
	policy := c.opts.Retry
	if minInterval > policy.MinInterval {
		policy.MinInterval = minInterval
	}
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		reason := "network"
		if errors.Is(err, errors.ErrRateLimited) {
			reason = "rate_limited"
			c.opts.Limiter.Hold(id, wait)
		}
		metrics.RecordRetry(id, reason)
		logger.Warn("Provider call failed, retrying", logger.Fields{
			"provider": id, "attempt": attempt, "wait": wait.String(), "error": err.Error(),
		})
	}

	for {
		err := retry.Do(ctx, policy, func(ctx context.Context) error {
			if err := c.opts.Limiter.Wait(ctx, id); err != nil {
				return err
			}
			return fn(ctx)
		})
		if err == nil || !errors.IsAuth(err) || c.reauthed {
			return err
		}
		c.reauthed = true
		logger.Info("Re-authenticating provider", logger.Fields{"provider": id})
		metrics.RecordRetry(id, "auth")
		if aerr := c.provider.Authenticate(ctx); aerr != nil {
			return fmt.Errorf("re-authenticate %s: %w", id, aerr)
		}
	}
}

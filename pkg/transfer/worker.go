package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/digest"
	pkgerrors "github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/events"
	"github.com/glorpus-work/hoard/pkg/fsutil"
	"github.com/glorpus-work/hoard/pkg/metrics"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/retry"
)

// process runs one intent to a terminal status, or back to pending when the
// engine is paused or ctx is cancelled. It returns the bytes written.
func (e *Engine) process(ctx context.Context, it *Intent) int64 {
	start := e.now()
	providerID := it.File.Provider
	fields := logger.Fields{"provider": providerID, "asset": it.Asset.Remote, "file": it.File.Remote}

	metrics.IncInFlight()
	defer metrics.DecInFlight()

	p, err := e.providers.Lookup(providerID)
	if err != nil {
		e.fail(it, err, fields)
		return 0
	}

	minInterval := provider.MinIntervalOf(p)
	e.opts.Limiter.Set(providerID, minInterval)
	policy := e.opts.Retry
	if minInterval > policy.MinInterval {
		policy.MinInterval = minInterval
	}

	var (
		written        int64
		reauthed       bool
		rateLimitWaits int
	)
	for {
		it.Status = StatusInFlight
		n, err := e.attempt(ctx, p, it)
		written += n

		if err == nil {
			it.Attempts++
			it.Status = StatusDone
			it.Err = nil
			metrics.RecordTransfer(providerID, metrics.OutcomeDone, e.now().Sub(start))
			e.opts.Events.Publish(events.Event{
				Type: events.FileCompleted, Provider: providerID,
				Asset: it.Asset.Remote, File: it.File.Remote, Bytes: it.Size, Total: it.Size,
			})
			logger.Debug("Transfer completed", fields, logger.Fields{"attempt": it.Attempts, "path": it.Destination})
			return written
		}

		if ctx.Err() != nil || pkgerrors.Is(err, pkgerrors.ErrTransferPaused) {
			it.Status = StatusPending
			it.Err = err
			metrics.RecordTransfer(providerID, metrics.OutcomePaused, 0)
			logger.Debug("Transfer checkpointed", fields, logger.Fields{"offset": it.Offset})
			return written
		}

		switch {
		case pkgerrors.Is(err, pkgerrors.ErrRateLimited):
			rateLimitWaits++
			if rateLimitWaits > policy.MaxRateLimitWaits {
				e.fail(it, err, fields)
				return written
			}
			wait := policy.RateLimitWait(err, rateLimitWaits)
			e.opts.Limiter.Hold(providerID, wait)
			metrics.RecordRetry(providerID, "rate_limited")
			logger.Warn("Provider rate limited transfer", fields, logger.Fields{"wait": wait.String()})

		case pkgerrors.IsAuth(err) && !reauthed:
			reauthed = true
			metrics.RecordRetry(providerID, "auth")
			logger.Info("Re-authenticating provider", fields)
			if aerr := p.Authenticate(ctx); aerr != nil {
				e.fail(it, fmt.Errorf("re-authenticate: %w", aerr), fields)
				return written
			}

		case pkgerrors.IsRetryable(err):
			it.Attempts++
			if it.Attempts >= policy.MaxAttempts {
				e.fail(it, err, fields)
				return written
			}
			wait := policy.Backoff(it.Attempts)
			metrics.RecordRetry(providerID, retryReason(err))
			logger.Warn("Transfer attempt failed, retrying", fields, logger.Fields{
				"attempt": it.Attempts, "wait": wait.String(), "error": err.Error(),
			})
			if serr := retry.Sleep(ctx, wait); serr != nil {
				it.Status = StatusPending
				it.Err = serr
				return written
			}

		default:
			it.Attempts++
			e.fail(it, err, fields)
			return written
		}
	}
}

func retryReason(err error) string {
	if pkgerrors.Is(err, pkgerrors.ErrIntegrity) {
		return "integrity"
	}
	return "network"
}

func (e *Engine) fail(it *Intent, err error, fields logger.Fields) {
	it.Status = StatusFailed
	it.Err = err
	metrics.RecordTransfer(it.File.Provider, metrics.OutcomeFailed, 0)
	e.opts.Events.Publish(events.Event{
		Type: events.FileFailed, Provider: it.File.Provider,
		Asset: it.Asset.Remote, File: it.File.Remote, Reason: err.Error(),
	})
	logger.Warn("Transfer failed", fields, logger.Fields{"attempts": it.Attempts, "error": err.Error()})
}

// attempt performs one locator resolution, fetch, verification and placement.
func (e *Engine) attempt(ctx context.Context, p provider.Provider, it *Intent) (int64, error) {
	if e.paused.Load() {
		return 0, pkgerrors.ErrTransferPaused
	}
	if err := e.opts.Limiter.Wait(ctx, it.File.Provider); err != nil {
		return 0, err
	}

	loc, err := p.ResolveFetchLocator(ctx, it.File)
	if err != nil {
		return 0, fmt.Errorf("resolve locator for %s: %w", it.File, err)
	}
	if loc == nil || loc.URL == "" {
		return 0, fmt.Errorf("empty locator for %s: %w", it.File, pkgerrors.ErrNotFound)
	}
	if loc.Expired(e.now()) {
		return 0, fmt.Errorf("locator for %s already expired: %w", it.File, pkgerrors.ErrNetwork)
	}

	if err := os.MkdirAll(filepath.Dir(it.Destination), fsutil.DirModeDefault); err != nil {
		return 0, fmt.Errorf("create destination directory: %w", err)
	}

	part := it.PartialPath()
	written, err := e.fetch(ctx, loc, it, part)
	if err != nil {
		return written, err
	}

	it.Status = StatusVerifying
	if it.Size > 0 {
		size, err := fsutil.FileSize(part)
		if err != nil {
			return written, fmt.Errorf("stat partial file: %w", err)
		}
		if size < it.Size {
			return written, fmt.Errorf("%w: short transfer, got %d of %d bytes", pkgerrors.ErrNetwork, size, it.Size)
		}
		if size > it.Size {
			_ = os.Remove(part)
			_ = os.Remove(it.TokenPath())
			it.Offset = 0
			return written, fmt.Errorf("%w: transfer produced %d bytes, expected %d", pkgerrors.ErrIntegrity, size, it.Size)
		}
	}

	sum, err := digest.Verify(part, it.ExpectedDigest)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrIntegrity) {
			_ = os.Remove(part)
			_ = os.Remove(it.TokenPath())
			it.Offset = 0
		}
		return written, err
	}

	if err := fsutil.Move(part, it.Destination); err != nil {
		return written, fmt.Errorf("place file: %w", err)
	}
	_ = os.Remove(it.TokenPath())
	if err := os.Chmod(it.Destination, fsutil.FileModeDefault); err != nil {
		return written, fmt.Errorf("set file permissions: %w", err)
	}
	if err := e.catalog.UpdateFileOnSuccess(ctx, it.File, it.Destination, sum, it.ChangeToken, e.now()); err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrFileRemoved) {
			_ = os.Remove(it.Destination)
		}
		return written, fmt.Errorf("record download: %w", err)
	}
	it.Digest = sum
	return written, nil
}


// Package orchestrator runs a sync: it authenticates and reconciles every
// active provider and drains the resulting intents through the transfer engine.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/events"
	"github.com/glorpus-work/hoard/pkg/metrics"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/transfer"
)

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// Sync runs one sync. Per-provider failures are recorded in the summary and
// never abort the run; only an unknown requested provider or a missing
// collaborator is returned as an error.
func (o *Orchestrator) Sync(ctx context.Context, opts SyncOptions) (*Summary, error) {
	if o.Providers == nil || o.Reconciler == nil {
		return nil, fmt.Errorf("orchestrator is not configured")
	}
	if o.Transfer == nil && !opts.DryRun {
		return nil, fmt.Errorf("transfer engine is not configured")
	}

	providers, err := o.selectProviders(opts.Provider)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: newRunID(), StartedAt: time.Now(), DryRun: opts.DryRun}
	fields := logger.Fields{"run": summary.RunID}
	logger.Info("Starting sync", fields, logger.Fields{"providers": len(providers), "dry_run": opts.DryRun})

	var intents []*transfer.Intent
	index := make(map[string]int, len(providers))
	for _, p := range providers {
		if ctx.Err() != nil {
			break
		}
		ps, found := o.reconcileProvider(ctx, p, summary.RunID)
		index[ps.ID] = len(summary.Providers)
		summary.Providers = append(summary.Providers, ps)
		intents = append(intents, found...)
	}
	summary.Enqueued = len(intents)

	if opts.DryRun {
		for _, it := range intents {
			summary.Planned = append(summary.Planned, PlannedTransfer{
				Provider: it.File.Provider, File: it.File.Remote, Destination: it.Destination, Size: it.Size,
			})
		}
	} else if len(intents) > 0 {
		emit(o.Hooks, Event{Phase: "transferring", Msg: fmt.Sprintf("%d files", len(intents))})
		report := o.Transfer.Run(ctx, intents)
		summary.Completed = len(report.Done)
		summary.Paused = len(report.Pending)
		summary.Bytes = report.Bytes
		for _, it := range report.Done {
			summary.Providers[index[it.File.Provider]].Completed++
		}
		for _, it := range report.Failed {
			summary.Providers[index[it.File.Provider]].Failed++
			reason := ""
			if it.Err != nil {
				reason = it.Err.Error()
			}
			summary.Failed = append(summary.Failed, FailedTransfer{
				Provider: it.File.Provider, Asset: it.Asset.Remote, File: it.File.Remote,
				Attempts: it.Attempts, Reason: reason,
			})
		}
	}

	for _, ps := range summary.Providers {
		metrics.RecordSync(ps.ID, ps.Error == "" && ps.Failed == 0)
	}
	summary.FinishedAt = time.Now()

	o.Events.Publish(events.Event{
		Type:  events.SyncFinished,
		RunID: summary.RunID,
		Counts: &events.Counts{
			AssetsUpserted: summary.assetsUpserted(),
			Enqueued:       summary.Enqueued,
			Completed:      summary.Completed,
			Failed:         len(summary.Failed),
		},
	})
	emit(o.Hooks, Event{Phase: "done", Msg: summary.RunID})
	logger.Info("Sync finished", fields, logger.Fields{
		"enqueued":  summary.Enqueued,
		"completed": summary.Completed,
		"failed":    len(summary.Failed),
		"paused":    summary.Paused,
	})
	return summary, nil
}

func (o *Orchestrator) selectProviders(id string) ([]provider.Provider, error) {
	if id == "" {
		return o.Providers.ListActive(), nil
	}
	p, err := o.Providers.Lookup(id)
	if err != nil {
		return nil, err
	}
	return []provider.Provider{p}, nil
}

// reconcileProvider authenticates and reconciles p. A provider whose
// reconciliation stopped early still contributes the intents found so far.
func (o *Orchestrator) reconcileProvider(ctx context.Context, p provider.Provider, runID string) (ProviderSummary, []*transfer.Intent) {
	id := p.Identifier()
	ps := ProviderSummary{ID: id}
	fields := logger.Fields{"run": runID, "provider": id}

	emit(o.Hooks, Event{Phase: "authenticating", Provider: id})
	if err := p.Authenticate(ctx); err != nil {
		ps.Error = fmt.Sprintf("authenticate: %v", err)
		emit(o.Hooks, Event{Phase: "error", Provider: id, Msg: ps.Error})
		logger.Warn("Provider excluded from sync", fields, logger.Fields{"error": err.Error()})
		return ps, nil
	}

	emit(o.Hooks, Event{Phase: "reconciling", Provider: id})
	res, err := o.Reconciler.Reconcile(ctx, p)
	if err != nil {
		ps.Error = err.Error()
		emit(o.Hooks, Event{Phase: "error", Provider: id, Msg: ps.Error})
		logger.Warn("Reconciliation stopped early", fields, logger.Fields{"error": err.Error()})
	}
	if res == nil {
		return ps, nil
	}
	ps.AssetsUpserted = res.AssetsUpserted
	ps.Enqueued = len(res.Intents)
	return ps, res.Intents
}

func (s *Summary) assetsUpserted() int {
	n := 0
	for _, p := range s.Providers {
		n += p.AssetsUpserted
	}
	return n
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

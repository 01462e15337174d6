//go:generate mockgen -destination=./mocks/orchestrator.go -package=mock_orchestrator . ProviderSource,Reconciler,Transferer

package orchestrator

import (
	"context"
	"time"

	"github.com/glorpus-work/hoard/pkg/events"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/reconcile"
	"github.com/glorpus-work/hoard/pkg/transfer"
)

// ProviderSource is the subset of the provider registry used by the orchestrator.
type ProviderSource interface {
	Lookup(id string) (provider.Provider, error)
	ListActive() []provider.Provider
}

// Reconciler derives transfer intents for one provider.
type Reconciler interface {
	Reconcile(ctx context.Context, p provider.Provider) (*reconcile.Result, error)
}

// Transferer drains transfer intents.
type Transferer interface {
	Run(ctx context.Context, intents []*transfer.Intent) transfer.Report
}

// Orchestrator ties the Registry, the Reconciler and the Transfer Engine together for a sync.
type Orchestrator struct {
	Providers  ProviderSource
	Reconciler Reconciler
	Transfer   Transferer
	Events     *events.Broadcaster
	Hooks      Hooks // Hooks for progress and event notifications
}

// Event represents a simple progress notification.
type Event struct {
	Phase    string // authenticating|reconciling|transferring|done|error
	Provider string
	Msg      string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// SyncOptions control a sync run.
type SyncOptions struct {
	// Provider restricts the run to one provider id. Empty means every active provider.
	Provider string
	// DryRun reconciles the catalog but transfers nothing.
	DryRun bool
}

// Summary is the outcome of one sync run.
type Summary struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	DryRun     bool              `json:"dry_run,omitempty"`
	Providers  []ProviderSummary `json:"providers"`
	Enqueued   int               `json:"enqueued"`
	Completed  int               `json:"completed"`
	Paused     int               `json:"paused"`
	Bytes      int64             `json:"bytes"`
	Failed     []FailedTransfer  `json:"failed,omitempty"`
	Planned    []PlannedTransfer `json:"planned,omitempty"`
}

// ProviderSummary is the per-provider part of a Summary.
type ProviderSummary struct {
	ID             string `json:"id"`
	AssetsUpserted int    `json:"assets_upserted"`
	Enqueued       int    `json:"enqueued"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	// Error is set when the provider was excluded from the run or reconciliation stopped early.
	Error string `json:"error,omitempty"`
}

// FailedTransfer is a file that reached the failed status.
type FailedTransfer struct {
	Provider string `json:"provider"`
	Asset    string `json:"asset"`
	File     string `json:"file"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// PlannedTransfer is a file a dry run would download.
type PlannedTransfer struct {
	Provider    string `json:"provider"`
	File        string `json:"file"`
	Destination string `json:"destination"`
	Size        int64  `json:"size,omitempty"`
}

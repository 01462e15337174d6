package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/hoard/internal/logger"
	"github.com/glorpus-work/hoard/pkg/config"
	"github.com/glorpus-work/hoard/pkg/events"
	"github.com/glorpus-work/hoard/pkg/fsutil"
	"github.com/glorpus-work/hoard/pkg/metrics"
	"github.com/glorpus-work/hoard/pkg/orchestrator"
	"github.com/glorpus-work/hoard/pkg/ratelimit"
	"github.com/glorpus-work/hoard/pkg/reconcile"
	"github.com/glorpus-work/hoard/pkg/transfer"
)

var errSyncIncomplete = fmt.Errorf("sync finished with failures")

type syncFlags struct {
	provider    string
	dryRun      bool
	metricsAddr string
}

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the remote libraries",
		Long: `Reconcile the remote library of every enabled provider with the local
catalog and download new and changed files into the library root.

Interrupted downloads are resumed on the next sync.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.provider, "provider", "p", "", "Only sync this provider")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Reconcile and list the planned downloads without transferring")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the sync")

	return cmd
}

func runSync(ctx context.Context, out io.Writer, flags syncFlags) error {
	ctx = ctxOrBackground(ctx)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	root, err := filepath.Abs(cfg.Settings.RootDir)
	if err != nil {
		return fmt.Errorf("invalid root_dir: %w", err)
	}
	if err := os.MkdirAll(root, fsutil.DirModeDefault); err != nil {
		return fmt.Errorf("failed to create library root: %w", err)
	}

	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

	reg, _, err := newRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	if flags.metricsAddr != "" {
		stop := serveMetrics(flags.metricsAddr)
		defer stop()
	}

	bus := events.NewBroadcaster()
	done := logProgress(bus)
	defer done()

	limiter := ratelimit.New()
	engine := transfer.NewEngine(cat, reg, transfer.Options{
		Concurrency: cfg.Settings.Concurrency,
		ChunkSize:   cfg.Settings.ChunkSize,
		HTTPTimeout: cfg.Settings.HTTPTimeout,
		UserAgent:   cfg.Settings.UserAgent,
		Retry:       cfg.RetryConfig(),
		Limiter:     limiter,
		Events:      bus,
	})
	rec, err := reconcile.New(cat, reconcile.Options{
		Root:     root,
		Retry:    cfg.RetryConfig(),
		Limiter:  limiter,
		Events:   bus,
		InFlight: engine,
	})
	if err != nil {
		return err
	}

	orch := &orchestrator.Orchestrator{
		Providers:  reg,
		Reconciler: rec,
		Transfer:   engine,
		Events:     bus,
		Hooks: orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
			logger.Debug("Sync phase", logger.Fields{"phase": e.Phase, "provider": e.Provider, "msg": e.Msg})
		}},
	}

	summary, err := orch.Sync(ctx, orchestrator.SyncOptions{Provider: flags.provider, DryRun: flags.dryRun})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if err := renderSummary(out, summary, cfg.Settings.OutputFormat); err != nil {
		return err
	}
	if len(summary.Failed) > 0 || summary.Paused > 0 || hasProviderErrors(summary) {
		return errSyncIncomplete
	}
	return nil
}

func hasProviderErrors(s *orchestrator.Summary) bool {
	for _, p := range s.Providers {
		if p.Error != "" {
			return true
		}
	}
	return false
}

// serveMetrics exposes the Prometheus handler until the returned func is called.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: config.DefaultHTTPTimeout}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", logger.Fields{"addr": addr, "error": err.Error()})
		}
	}()
	logger.Info("Serving metrics", logger.Fields{"addr": addr})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// logProgress logs completed and failed transfers until the returned func is called.
func logProgress(bus *events.Broadcaster) func() {
	ch := bus.Subscribe()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for ev := range ch {
			fields := logger.Fields{"provider": ev.Provider, "file": ev.File}
			switch ev.Type {
			case events.FileCompleted:
				logger.Info("Downloaded", fields, logger.Fields{"bytes": ev.Bytes})
			case events.FileFailed:
				logger.Warn("Download failed", fields, logger.Fields{"reason": ev.Reason})
			}
		}
	}()
	return func() {
		bus.Unsubscribe(ch)
		<-finished
	}
}

// renderSummary writes a sync summary as a table or as JSON.
func renderSummary(w io.Writer, s *orchestrator.Summary, format string) error {
	if format == FormatJSON {
		return writeJSON(w, s)
	}

	title := "Sync run"
	if s.DryRun {
		title = "Dry run"
	}
	_, _ = fmt.Fprintf(w, "%s %s finished in %s\n\n", title, s.RunID, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROVIDER\tASSETS\tENQUEUED\tCOMPLETED\tFAILED\tSTATUS")
	for _, p := range s.Providers {
		status := "ok"
		if p.Error != "" {
			status = p.Error
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", p.ID, p.AssetsUpserted, p.Enqueued, p.Completed, p.Failed, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\nEnqueued: %d, completed: %d, failed: %d, paused: %d, downloaded: %s\n",
		s.Enqueued, s.Completed, len(s.Failed), s.Paused, formatBytes(s.Bytes))

	if len(s.Failed) > 0 {
		_, _ = fmt.Fprintln(w, "\nFailed transfers:")
		for _, f := range s.Failed {
			_, _ = fmt.Fprintf(w, "  %s/%s (asset %s) after %d attempts: %s\n", f.Provider, f.File, f.Asset, f.Attempts, f.Reason)
		}
	}
	if len(s.Planned) > 0 {
		_, _ = fmt.Fprintln(w, "\nPlanned transfers:")
		for _, p := range s.Planned {
			_, _ = fmt.Fprintf(w, "  %s/%s -> %s (%s)\n", p.Provider, p.File, p.Destination, formatBytes(p.Size))
		}
	}
	return nil
}

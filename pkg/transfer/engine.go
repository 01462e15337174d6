// Package transfer downloads the files the reconciler decided are needed.
//
// Intents are admitted into a bounded set of slots shared by every Run on the
// same Engine. Each intent is streamed in chunks into a partial file next to
// its destination, verified, moved into place and recorded in the catalog.
// Interrupted transfers leave the partial file behind so a later attempt or a
// later run resumes with a byte range request.
package transfer

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glorpus-work/hoard/pkg/events"
	"github.com/glorpus-work/hoard/pkg/model"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/ratelimit"
	"github.com/glorpus-work/hoard/pkg/retry"
)

// Defaults.
const (
	DefaultConcurrency = 3
	DefaultChunkSize   = 4 << 20
	DefaultHTTPTimeout = 30 * time.Second
	DefaultUserAgent   = "hoard/1.0"
)

// Catalog is the catalog write the engine performs after a verified download.
type Catalog interface {
	UpdateFileOnSuccess(ctx context.Context, id model.FileID, path, digest, changeToken string, at time.Time) error
}

// Providers resolves the provider that owns an intent.
type Providers interface {
	Lookup(id string) (provider.Provider, error)
}

// Options configures an Engine.
type Options struct {
	Concurrency int
	ChunkSize   int64
	// HTTPTimeout bounds every single HTTP exchange: the probe and each chunk.
	HTTPTimeout time.Duration
	UserAgent   string
	Retry       retry.Config
	HTTPClient  *http.Client
	Limiter     *ratelimit.Limiter
	Events      *events.Broadcaster
}

func (o *Options) applyDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = DefaultHTTPTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = retry.DefaultConfig()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Limiter == nil {
		o.Limiter = ratelimit.New()
	}
}

// Report is the outcome of one Run. Each list is ordered by file identity.
type Report struct {
	Done   []*Intent
	Failed []*Intent
	// Pending intents were not finished because of a pause or cancellation.
	Pending []*Intent
	// Skipped intents duplicated another intent or were already in flight.
	Skipped []*Intent
	Bytes   int64
}

// Engine executes transfer intents.
type Engine struct {
	catalog   Catalog
	providers Providers
	opts      Options
	now       func() time.Time

	slots  chan struct{}
	paused atomic.Bool

	mu       sync.Mutex
	inFlight map[model.FileID]struct{}
}

// NewEngine creates an Engine writing to cat and resolving providers through providers.
func NewEngine(cat Catalog, providers Providers, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		catalog:   cat,
		providers: providers,
		opts:      opts,
		now:       time.Now,
		slots:     make(chan struct{}, opts.Concurrency),
		inFlight:  make(map[model.FileID]struct{}),
	}
}

// Concurrency returns the number of transfers that may run at once.
func (e *Engine) Concurrency() int {
	return e.opts.Concurrency
}

// Pause stops admission of new intents. Transfers in flight stop after their
// current chunk and keep their partial file. Pending intents are returned in
// the Report of the running Run.
func (e *Engine) Pause() {
	e.paused.Store(true)
}

// Resume allows admission again.
func (e *Engine) Resume() {
	e.paused.Store(false)
}

// Paused reports whether the engine is paused.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// InFlight reports whether a transfer for id currently holds a slot.
func (e *Engine) InFlight(id model.FileID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inFlight[id]
	return ok
}

func (e *Engine) claim(id model.FileID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[id]; ok {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Engine) release(id model.FileID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}

// Run drains intents and blocks until every admitted transfer has finished.
// Failures of single intents are reported, never returned. Cancelling ctx
// stops admission and aborts transfers in flight, keeping their partial files.
func (e *Engine) Run(ctx context.Context, intents []*Intent) Report {
	var (
		report Report
		mu     sync.Mutex
		wg     sync.WaitGroup
		seen   = make(map[model.FileID]struct{}, len(intents))
	)

	for _, it := range intents {
		if _, dup := seen[it.File]; dup {
			report.Skipped = append(report.Skipped, it)
			continue
		}
		seen[it.File] = struct{}{}
		it.Status = StatusPending

		if !e.admit(ctx) {
			report.Pending = append(report.Pending, it)
			continue
		}
		if !e.claim(it.File) {
			<-e.slots
			report.Skipped = append(report.Skipped, it)
			continue
		}

		wg.Add(1)
		go func(it *Intent) {
			defer wg.Done()
			defer func() {
				e.release(it.File)
				<-e.slots
			}()

			written := e.process(ctx, it)

			mu.Lock()
			defer mu.Unlock()
			report.Bytes += written
			switch it.Status {
			case StatusDone:
				report.Done = append(report.Done, it)
			case StatusFailed:
				report.Failed = append(report.Failed, it)
			default:
				report.Pending = append(report.Pending, it)
			}
		}(it)
	}
	wg.Wait()

	for _, list := range [][]*Intent{report.Done, report.Failed, report.Pending, report.Skipped} {
		sortIntents(list)
	}
	return report
}

// admit blocks until a slot is free. It returns false without holding a slot
// when the engine is paused or ctx is done.
func (e *Engine) admit(ctx context.Context) bool {
	if e.paused.Load() || ctx.Err() != nil {
		return false
	}
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	if e.paused.Load() {
		<-e.slots
		return false
	}
	return true
}

func sortIntents(list []*Intent) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].File.Provider != list[j].File.Provider {
			return list[i].File.Provider < list[j].File.Provider
		}
		return list[i].File.Remote < list[j].File.Remote
	})
}

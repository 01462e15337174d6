package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/events"
	"github.com/glorpus-work/hoard/pkg/fsutil"
	"github.com/glorpus-work/hoard/pkg/metrics"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/ratelimit"
)

var (
	errRangeIgnored        = fmt.Errorf("server ignored range request")
	errRangeNotSatisfiable = fmt.Errorf("requested range not satisfiable")
)

// probeResult is what a HEAD request tells about the remote file.
type probeResult struct {
	size   int64 // -1 when unknown
	ranges bool

	// validator is a strong ETag or a Last-Modified date, sent as If-Range.
	validator string
}

// fetch streams the file behind loc into part, resuming from the bytes part
// already holds when the server supports ranges.
func (e *Engine) fetch(ctx context.Context, loc *provider.Locator, it *Intent, part string) (int64, error) {
	offset, err := fsutil.FileSize(part)
	if err != nil {
		return 0, fmt.Errorf("stat partial file: %w", err)
	}

	info, err := e.probe(ctx, loc)
	if err != nil {
		return 0, err
	}
	if info.size >= 0 {
		it.Size = info.size
	}

	if offset > 0 && (!info.ranges || (info.size >= 0 && offset > info.size) || !partialMatches(it)) {
		offset = 0
	}
	it.Offset = offset
	if offset == 0 {
		if err := os.WriteFile(it.TokenPath(), []byte(it.ChangeToken), fsutil.FileModeSecure); err != nil {
			return 0, fmt.Errorf("write partial token: %w", err)
		}
	}

	if info.ranges && info.size > 0 {
		return e.fetchRanged(ctx, loc, it, part, info)
	}
	return e.fetchStream(ctx, loc, it, part)
}

// partialMatches reports whether the bytes already in the partial file were
// downloaded for the version the intent asks for.
func partialMatches(it *Intent) bool {
	if it.ChangeToken == "" {
		return false
	}
	token, err := os.ReadFile(it.TokenPath())
	return err == nil && string(token) == it.ChangeToken
}

// probe issues a HEAD request. Servers that refuse HEAD are treated as
// having unknown size and no range support.
func (e *Engine) probe(ctx context.Context, loc *provider.Locator) (probeResult, error) {
	unknown := probeResult{size: -1}

	reqCtx, cancel := context.WithTimeout(ctx, e.opts.HTTPTimeout)
	defer cancel()

	req, err := e.newRequest(reqCtx, http.MethodHead, loc)
	if err != nil {
		return unknown, err
	}
	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return unknown, e.transportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return unknown, e.statusError(resp)
	case resp.StatusCode != http.StatusOK:
		return unknown, nil
	}

	res := probeResult{
		size:      resp.ContentLength,
		ranges:    strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes"),
		validator: resp.Header.Get("Last-Modified"),
	}
	if etag := resp.Header.Get("ETag"); etag != "" && !strings.HasPrefix(etag, "W/") {
		res.validator = etag
	}
	if res.size < 0 {
		res.ranges = false
	}
	return res, nil
}

// fetchRanged downloads [it.Offset, size) in chunks, one request per chunk.
// Chunks are conditional on the probed validator, so a remote change turns the
// next chunk into a full response and the download restarts.
func (e *Engine) fetchRanged(ctx context.Context, loc *provider.Locator, it *Intent, part string, info probeResult) (int64, error) {
	size := info.size
	f, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE, fsutil.FileModeSecure)
	if err != nil {
		return 0, fmt.Errorf("open partial file: %w", err)
	}
	if err := f.Truncate(it.Offset); err != nil {
		f.Close()
		return 0, fmt.Errorf("truncate partial file: %w", err)
	}

	var written int64
	for it.Offset < size {
		if e.paused.Load() {
			return written, closeWith(f, pkgerrors.ErrTransferPaused)
		}

		end := it.Offset + e.opts.ChunkSize
		if end > size {
			end = size
		}
		n, err := e.fetchChunk(ctx, loc, f, it.Offset, end-1, info.validator)
		written += n
		it.Offset += n
		e.progress(it, n)

		switch {
		case err == nil:
		case err == errRangeIgnored:
			if cerr := f.Close(); cerr != nil {
				return written, fmt.Errorf("close partial file: %w", cerr)
			}
			n, err := e.fetchStream(ctx, loc, it, part)
			return written + n, err
		case err == errRangeNotSatisfiable && it.Offset >= size:
			return written, closeWith(f, nil)
		case err == errRangeNotSatisfiable:
			_ = f.Truncate(0)
			it.Offset = 0
			return written, closeWith(f, fmt.Errorf("%w: %v", pkgerrors.ErrNetwork, err))
		default:
			return written, closeWith(f, err)
		}
	}
	return written, closeWith(f, nil)
}

// fetchChunk writes bytes [from, to] of the remote file at the same offset of f.
func (e *Engine) fetchChunk(ctx context.Context, loc *provider.Locator, f *os.File, from, to int64, validator string) (int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.opts.HTTPTimeout)
	defer cancel()

	req, err := e.newRequest(reqCtx, http.MethodGet, loc)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", from, to))
	if validator != "" {
		req.Header.Set("If-Range", validator)
	}

	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, e.transportError(ctx, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		return 0, errRangeIgnored
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, errRangeNotSatisfiable
	default:
		return 0, e.statusError(resp)
	}

	n, err := io.CopyN(io.NewOffsetWriter(f, from), resp.Body, to-from+1)
	if err != nil {
		return n, e.transportError(ctx, err)
	}
	return n, nil
}

// fetchStream downloads the whole file in one request, restarting part from
// zero. The exchange is aborted when no chunk arrives within HTTPTimeout.
func (e *Engine) fetchStream(ctx context.Context, loc *provider.Locator, it *Intent, part string) (int64, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchdog := time.AfterFunc(e.opts.HTTPTimeout, cancel)
	defer watchdog.Stop()

	req, err := e.newRequest(reqCtx, http.MethodGet, loc)
	if err != nil {
		return 0, err
	}
	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, e.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, e.statusError(resp)
	}
	if resp.ContentLength > 0 {
		it.Size = resp.ContentLength
	}

	f, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeSecure)
	if err != nil {
		return 0, fmt.Errorf("open partial file: %w", err)
	}
	it.Offset = 0

	var written int64
	for {
		if e.paused.Load() {
			return written, closeWith(f, pkgerrors.ErrTransferPaused)
		}
		watchdog.Reset(e.opts.HTTPTimeout)
		n, err := io.CopyN(f, resp.Body, e.opts.ChunkSize)
		written += n
		it.Offset += n
		e.progress(it, n)
		if err == io.EOF {
			return written, closeWith(f, nil)
		}
		if err != nil {
			return written, closeWith(f, e.transportError(ctx, err))
		}
	}
}

func (e *Engine) newRequest(ctx context.Context, method string, loc *provider.Locator) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, loc.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range loc.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)
	return req, nil
}

// transportError classifies a failed exchange. Cancellation of the run is
// returned as is; anything else, including an exchange timeout, is a network error.
func (e *Engine) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", pkgerrors.ErrNetwork, err)
}

// statusError maps a fetch response to an error category. A vanished fetch
// location usually means the locator expired, so it is retried with a fresh one.
func (e *Engine) statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &pkgerrors.RateLimitedError{
			RetryAfter: ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), e.now()),
			Err:        pkgerrors.NewStatusError(resp.StatusCode, resp.Request.URL.String()),
		}
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: fetch location returned %d", pkgerrors.ErrNetwork, resp.StatusCode)
	default:
		return pkgerrors.NewStatusError(resp.StatusCode, resp.Request.URL.String())
	}
}

func (e *Engine) progress(it *Intent, n int64) {
	if n <= 0 {
		return
	}
	metrics.RecordBytes(it.File.Provider, n)
	e.opts.Events.Publish(events.Event{
		Type: events.FileProgress, Provider: it.File.Provider,
		Asset: it.Asset.Remote, File: it.File.Remote, Bytes: it.Offset, Total: it.Size,
	})
}

// closeWith syncs and closes f, returning err or the first close failure.
func closeWith(f *os.File, err error) error {
	serr := f.Sync()
	cerr := f.Close()
	if err != nil {
		return err
	}
	if serr != nil {
		return fmt.Errorf("sync partial file: %w", serr)
	}
	if cerr != nil {
		return fmt.Errorf("close partial file: %w", cerr)
	}
	return nil
}

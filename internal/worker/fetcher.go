package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tracktide/tracktide/internal/catalog"
	"github.com/tracktide/tracktide/internal/crypto"
	errpkg "github.com/tracktide/tracktide/internal/errors"
	"github.com/tracktide/tracktide/internal/storage"
	"github.com/tracktide/tracktide/internal/stream"
	"github.com/tracktide/tracktide/internal/tag"
)

// Fetcher executes one complete download attempt for one track: resolve,
// fetch, decrypt, reassemble, tag. Each attempt owns its file handle and
// cipher context exclusively; nothing here is shared across workers.
type Fetcher struct {
	catalog      catalog.Resolver
	files        *storage.FileStorage
	tagger       *tag.Tagger
	httpClient   *http.Client
	streamSecret []byte
	inactivity   time.Duration
	logger       *slog.Logger
}

// NewFetcher creates a Fetcher. The HTTP client must not carry an overall
// timeout; the inactivity duration bounds each individual read instead.
func NewFetcher(
	cat catalog.Resolver,
	files *storage.FileStorage,
	tagger *tag.Tagger,
	httpClient *http.Client,
	streamSecret []byte,
	inactivity time.Duration,
	logger *slog.Logger,
) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Fetcher{
		catalog:      cat,
		files:        files,
		tagger:       tagger,
		httpClient:   httpClient,
		streamSecret: streamSecret,
		inactivity:   inactivity,
		logger:       logger,
	}
}

// Fetch runs one attempt. onResolved fires once track metadata is known;
// onProgress fires per chunk. Returns the final file path on success.
func (f *Fetcher) Fetch(
	ctx context.Context,
	trackID, quality string,
	attempt int,
	onResolved func(*catalog.TrackInfo),
	onProgress stream.ProgressFunc,
) (string, error) {
	info, err := f.catalog.ResolveTrack(ctx, trackID, catalog.Quality(quality))
	if err != nil {
		return "", err
	}
	if onResolved != nil {
		onResolved(info)
	}

	cipher, err := crypto.NewTrackCipher(trackID, f.streamSecret)
	if err != nil {
		return "", err
	}

	// Cover art rides alongside the stream download; losing it degrades
	// tagging only.
	var cover []byte
	g, gctx := errgroup.WithContext(ctx)

	if info.CoverURL != "" {
		g.Go(func() error {
			data, coverErr := f.catalog.FetchCover(gctx, info.CoverURL)
			if coverErr != nil {
				f.logger.Warn("cover art fetch failed", "track_id", trackID, "error", coverErr)
				return nil
			}
			cover = data
			return nil
		})
	}

	var tmpPath string
	g.Go(func() error {
		path, streamErr := f.downloadStream(gctx, info, cipher, attempt, onProgress)
		tmpPath = path
		return streamErr
	})

	if err := g.Wait(); err != nil {
		if tmpPath != "" {
			f.files.RemoveTemp(tmpPath)
		}
		return "", err
	}

	finalPath, err := f.tagger.Finalize(tmpPath, tag.Metadata{
		Title:       info.Title,
		Artist:      info.Artist,
		Album:       info.Album,
		TrackNumber: info.TrackNumber,
		Format:      info.Format,
		Cover:       cover,
		Lyrics:      info.Lyrics,
	})
	if err != nil {
		f.files.RemoveTemp(tmpPath)
		return "", err
	}
	return finalPath, nil
}

func (f *Fetcher) downloadStream(
	ctx context.Context,
	info *catalog.TrackInfo,
	cipher *crypto.TrackCipher,
	attempt int,
	onProgress stream.ProgressFunc,
) (string, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, info.StreamURL, nil)
	if err != nil {
		return "", fmt.Errorf("create stream request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("open stream: %w", errpkg.ErrAuth)
	default:
		return "", fmt.Errorf("open stream: %w", &errpkg.StatusError{Code: resp.StatusCode})
	}

	total := info.TotalBytes
	if total == 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	tmpFile, err := f.files.CreateTemp(info.TrackID, attempt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errpkg.ErrStorage, err)
	}
	tmpPath := tmpFile.Name()

	body, stop := newInactivityReader(resp.Body, f.inactivity, cancel)
	defer stop()

	reassembler := stream.NewReassembler(cipher)
	written, err := reassembler.Copy(ctx, tmpFile, body, total, onProgress)

	if closeErr := tmpFile.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("%w: %v", errpkg.ErrStorage, closeErr)
	}

	if err != nil {
		if body.timedOut() {
			err = fmt.Errorf("%w after %d bytes", errpkg.ErrInactivity, written)
		}
		f.files.RemoveTemp(tmpPath)
		return "", err
	}

	f.logger.Debug("stream downloaded",
		"track_id", info.TrackID,
		"bytes", written,
		"path", tmpPath,
	)
	return tmpPath, nil
}

// inactivityReader cancels the in-flight request when no bytes arrive for
// the configured duration, so a stalled connection surfaces as a transient
// failure instead of hanging a worker forever.
type inactivityReader struct {
	r     io.Reader
	timer *time.Timer
	d     time.Duration
	fired atomic.Bool
}

func newInactivityReader(r io.Reader, d time.Duration, cancel context.CancelFunc) (*inactivityReader, func()) {
	ir := &inactivityReader{r: r, d: d}
	if d > 0 {
		ir.timer = time.AfterFunc(d, func() {
			ir.fired.Store(true)
			cancel()
		})
	}
	stop := func() {
		if ir.timer != nil {
			ir.timer.Stop()
		}
	}
	return ir, stop
}

func (ir *inactivityReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 && ir.timer != nil {
		ir.timer.Reset(ir.d)
	}
	return n, err
}

func (ir *inactivityReader) timedOut() bool {
	return ir.fired.Load()
}

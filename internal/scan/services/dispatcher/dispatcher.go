// Package dispatcher splits a dictionary into top-level chunks and runs the
// bisector over each one concurrently, bounded by a worker count, mirroring
// the original implementation's buffer_unordered(concurrency) batch runner.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/paramhunt/paramhunt/internal/scan/common/log"
	"github.com/paramhunt/paramhunt/internal/scan/domain"
)

// Bisector is the subset of bisector.Bisector the dispatcher drives.
type Bisector interface {
	Bisect(ctx context.Context, chunk domain.Chunk, depth int) error
}

// Checkpoint lets the dispatcher skip chunks a prior run of the same scan
// already cleared, and mark newly cleared chunks as it goes.
type Checkpoint interface {
	IsCleared(key string) (bool, error)
	MarkCleared(key string) error
}

// Progress reports per-chunk completion.
type Progress interface {
	Inc()
}

type noopProgress struct{}

func (noopProgress) Inc() {}

// noopCheckpoint disables resume support.
type noopCheckpoint struct{}

func (noopCheckpoint) IsCleared(string) (bool, error) { return false, nil }
func (noopCheckpoint) MarkCleared(string) error       { return nil }

// Options configures a Dispatcher.
type Options struct {
	Bisector    Bisector
	Checkpoint  Checkpoint
	Progress    Progress
	Logger      log.Logger
	Concurrency int
	MaxChunk    int
	ScanID      string
	// ChunkKey fingerprints a chunk for checkpoint lookups. Required only
	// when Checkpoint is set.
	ChunkKey func(scanID string, chunk domain.Chunk) string
}

// Dispatcher fans a dictionary out across a bounded worker pool, one
// goroutine per top-level chunk, cancelling every in-flight chunk as soon as
// one reports a fatal error.
type Dispatcher struct {
	bisector    Bisector
	checkpoint  Checkpoint
	progress    Progress
	logger      log.Logger
	concurrency int
	maxChunk    int
	scanID      string
	chunkKey    func(scanID string, chunk domain.Chunk) string
}

// New constructs a Dispatcher from opts, defaulting Progress to a no-op,
// Checkpoint to a no-op (resume disabled), Logger to a no-op, Concurrency to
// 1 and MaxChunk to 64 when unset.
func New(opts Options) *Dispatcher {
	if opts.Progress == nil {
		opts.Progress = noopProgress{}
	}
	if opts.Checkpoint == nil {
		opts.Checkpoint = noopCheckpoint{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxChunk <= 0 {
		opts.MaxChunk = 64
	}
	if opts.ChunkKey == nil {
		opts.ChunkKey = func(scanID string, chunk domain.Chunk) string {
			return scanID + ":" + fmt.Sprint(chunk.Names())
		}
	}
	return &Dispatcher{
		bisector:    opts.Bisector,
		checkpoint:  opts.Checkpoint,
		progress:    opts.Progress,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
		maxChunk:    opts.MaxChunk,
		scanID:      opts.ScanID,
		chunkKey:    opts.ChunkKey,
	}
}

// Run splits dictionary into chunks of at most maxChunk names and bisects
// each one, at most concurrency chunks in flight at a time. It returns the
// first fatal error encountered (after which every other in-flight chunk is
// cancelled) alongside a multierr aggregate of any additional errors that
// arrived before cancellation took effect.
func (d *Dispatcher) Run(ctx context.Context, dictionary domain.Chunk) error {
	chunks := split(dictionary, d.maxChunk)
	if len(chunks) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal error
	var aggregate error

	for _, chunk := range chunks {
		key := d.chunkKey(d.scanID, chunk)
		cleared, err := d.checkpoint.IsCleared(key)
		if err != nil {
			d.logger.Warn(map[string]any{"error": err.Error()}, "checkpoint lookup failed, probing chunk anyway")
		}
		if cleared {
			d.progress.Inc()
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return firstOrAggregate(fatal, aggregate)
		}

		wg.Add(1)
		go func(chunk domain.Chunk, key string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer d.progress.Inc()

			err := d.bisector.Bisect(ctx, chunk, 0)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fatal == nil {
					fatal = err
					cancel()
				} else {
					aggregate = multierr.Append(aggregate, err)
				}
				return
			}
			if mErr := d.checkpoint.MarkCleared(key); mErr != nil {
				d.logger.Warn(map[string]any{"error": mErr.Error()}, "failed to persist chunk checkpoint")
			}
		}(chunk, key)
	}

	wg.Wait()
	return firstOrAggregate(fatal, aggregate)
}

func firstOrAggregate(fatal, aggregate error) error {
	if fatal != nil {
		return multierr.Append(fatal, aggregate)
	}
	return aggregate
}

// split divides dictionary into consecutive chunks of at most size names
// each, matching the original runner's chunk_size = min(max, len(params)).
func split(dictionary domain.Chunk, size int) []domain.Chunk {
	if size <= 0 || len(dictionary) == 0 {
		return nil
	}
	var chunks []domain.Chunk
	for start := 0; start < len(dictionary); start += size {
		end := start + size
		if end > len(dictionary) {
			end = len(dictionary)
		}
		chunks = append(chunks, dictionary[start:end])
	}
	return chunks
}

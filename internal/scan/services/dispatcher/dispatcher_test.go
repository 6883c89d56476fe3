package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paramhunt/paramhunt/internal/scan/domain"
)

type stubBisector struct {
	mu       sync.Mutex
	seen     []domain.Chunk
	failFor  domain.Candidate
	failWith error
}

func (b *stubBisector) Bisect(_ context.Context, chunk domain.Chunk, _ int) error {
	b.mu.Lock()
	b.seen = append(b.seen, chunk)
	b.mu.Unlock()
	for _, c := range chunk {
		if c == b.failFor {
			return b.failWith
		}
	}
	return nil
}

type stubProgress struct {
	count atomic.Int32
}

func (p *stubProgress) Inc() { p.count.Add(1) }

type stubCheckpoint struct {
	mu      sync.Mutex
	cleared map[string]bool
}

func newStubCheckpoint() *stubCheckpoint { return &stubCheckpoint{cleared: map[string]bool{}} }

func (c *stubCheckpoint) IsCleared(key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared[key], nil
}

func (c *stubCheckpoint) MarkCleared(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared[key] = true
	return nil
}

func TestRun_SplitsDictionaryIntoChunksOfMaxSize(t *testing.T) {
	b := &stubBisector{}
	d := New(Options{Bisector: b, Concurrency: 2, MaxChunk: 2})

	dict := domain.Chunk{"a", "b", "c", "d", "e"}
	err := d.Run(context.Background(), dict)
	assert.NoError(t, err)
	assert.Len(t, b.seen, 3) // 2, 2, 1
}

func TestRun_EmptyDictionary_NoOp(t *testing.T) {
	b := &stubBisector{}
	d := New(Options{Bisector: b, Concurrency: 2, MaxChunk: 4})
	err := d.Run(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, b.seen)
}

func TestRun_ReportsProgressPerChunk(t *testing.T) {
	b := &stubBisector{}
	p := &stubProgress{}
	d := New(Options{Bisector: b, Progress: p, Concurrency: 2, MaxChunk: 2})

	err := d.Run(context.Background(), domain.Chunk{"a", "b", "c", "d"})
	assert.NoError(t, err)
	assert.Equal(t, int32(2), p.count.Load())
}

func TestRun_FirstFatalErrorCancelsRemainingChunks(t *testing.T) {
	b := &stubBisector{failFor: "bad", failWith: domain.ErrUnreachableServer}
	d := New(Options{Bisector: b, Concurrency: 1, MaxChunk: 1})

	dict := domain.Chunk{"a", "bad", "c"}
	err := d.Run(context.Background(), dict)
	assert.ErrorIs(t, err, domain.ErrUnreachableServer)
}

func TestRun_SkipsChunksAlreadyClearedInCheckpoint(t *testing.T) {
	b := &stubBisector{}
	cp := newStubCheckpoint()
	d := New(Options{
		Bisector:    b,
		Checkpoint:  cp,
		ChunkKey:    func(_ string, chunk domain.Chunk) string { return chunk.Names()[0] },
		Concurrency: 1,
		MaxChunk:    1,
	})

	// Pre-clear the chunk for "a".
	assert.NoError(t, cp.MarkCleared("a"))

	err := d.Run(context.Background(), domain.Chunk{"a", "b"})
	assert.NoError(t, err)
	assert.Len(t, b.seen, 1)
	assert.Equal(t, domain.Chunk{"b"}, b.seen[0])
}

func TestRun_MarksChunkClearedOnSuccess(t *testing.T) {
	b := &stubBisector{}
	cp := newStubCheckpoint()
	d := New(Options{
		Bisector:    b,
		Checkpoint:  cp,
		ChunkKey:    func(_ string, chunk domain.Chunk) string { return chunk.Names()[0] },
		Concurrency: 1,
		MaxChunk:    1,
	})

	err := d.Run(context.Background(), domain.Chunk{"a"})
	assert.NoError(t, err)
	cleared, err := cp.IsCleared("a")
	assert.NoError(t, err)
	assert.True(t, cleared)
}

func TestRun_RespectsConcurrencyBound(t *testing.T) {
	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	b := &recordingBisector{
		fn: func() {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
		},
	}
	d := New(Options{Bisector: b, Concurrency: 2, MaxChunk: 1})

	dict := make(domain.Chunk, 20)
	for i := range dict {
		dict[i] = domain.Candidate(string(rune('a' + i)))
	}
	err := d.Run(context.Background(), dict)
	assert.NoError(t, err)
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

type recordingBisector struct {
	fn func()
}

func (b *recordingBisector) Bisect(context.Context, domain.Chunk, int) error {
	b.fn()
	return nil
}

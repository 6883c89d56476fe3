// Package ledger implements the process-wide shared scan state: the set of
// diffs known to be baseline-stable noise, per-status-code consecutive
// counters, and the append-only list of found parameters. All three are
// guarded by a single mutex; callers must never suspend (issue network I/O)
// while holding the lock.
package ledger

import (
	"strconv"
	"sync"
	"sync/atomic"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/paramhunt/paramhunt/internal/scan/domain"
)

// Ledger is the shared mutable state a scan's bisectors read and write.
// The zero value is not usable; construct with New.
type Ledger struct {
	mu sync.Mutex

	diffs      domain.Diffs
	diffsBloom *bitsbloom.BloomFilter
	codeCounts map[string]int
	found      []domain.FoundParameter
	sigCache   *lru.Cache[string, struct{}]

	requestsSent        atomic.Uint64
	controlRequestsSent atomic.Uint64
	noiseDiffsAbsorbed  atomic.Uint64
}

// Stats summarizes noise absorbed and requests issued over the lifetime of a
// scan. It answers the open question in the spec about surfacing noise-diff
// pollution as a per-scan statistic.
type Stats struct {
	RequestsSent        int
	ControlRequestsSent int
	NoiseDiffsAbsorbed  int
}

// New constructs a Ledger seeded with the given starting diffs and sized for
// roughly capacity distinct diffs.
func New(seed domain.Diffs, capacity uint64) *Ledger {
	if capacity == 0 {
		capacity = 1024
	}
	l := &Ledger{
		diffs:      append(domain.Diffs{}, seed...),
		diffsBloom: bitsbloom.NewWithEstimates(capacity, 0.01),
		codeCounts: make(map[string]int),
	}
	for _, d := range seed {
		l.diffsBloom.AddString(string(d))
	}
	// strict-mode signature cache; sized generously, eviction is harmless
	// since a cache miss just falls back to the authoritative scan.
	cache, _ := lru.New[string, struct{}](4096)
	l.sigCache = cache
	return l
}

// WithDiffs grants exclusive access to the diffs slice. f must not suspend.
func (l *Ledger) WithDiffs(f func(diffs domain.Diffs) domain.Diffs) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.diffs = f(l.diffs)
	for _, d := range l.diffs {
		l.diffsBloom.AddString(string(d))
	}
}

// Diffs returns a snapshot copy of the current diffs.
func (l *Ledger) Diffs() domain.Diffs {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(domain.Diffs, len(l.diffs))
	copy(out, l.diffs)
	return out
}

// KnownDiff reports whether d is already recorded as baseline-stable noise.
// The bloom filter is consulted first as an advisory fast-reject: a negative
// test is authoritative (the filter never forgets an Add), a positive test
// still falls through to the linear scan since bloom filters admit false
// positives.
func (l *Ledger) KnownDiff(d domain.Diff) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.diffsBloom.TestString(string(d)) {
		return false
	}
	return l.diffs.Contains(d)
}

// AddDiffs appends diffs to the known-noise set, deduplicating against what
// is already present.
func (l *Ledger) AddDiffs(diffs domain.Diffs) {
	if len(diffs) == 0 {
		return
	}
	added := 0
	l.mu.Lock()
	for _, d := range diffs {
		if l.diffs.Contains(d) {
			continue
		}
		l.diffs = append(l.diffs, d)
		l.diffsBloom.AddString(string(d))
		added++
	}
	l.mu.Unlock()
	l.IncNoiseAbsorbed(added)
}

// BumpCode increments the consecutive-observation counter for code and
// returns the new value.
func (l *Ledger) BumpCode(code string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codeCounts[code]++
	return l.codeCounts[code]
}

// ResetCode zeroes the consecutive-observation counter for code.
func (l *Ledger) ResetCode(code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codeCounts[code] = 0
}

// CodeCount returns the current consecutive-observation counter for the
// given integer status code.
func (l *Ledger) CodeCount(code int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codeCounts[strconv.Itoa(code)]
}

// Found returns a snapshot copy of the findings recorded so far.
func (l *Ledger) Found() []domain.FoundParameter {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.FoundParameter, len(l.found))
	copy(out, l.found)
	return out
}

// HasFound reports whether name is already present in found. Duplicate-name
// prevention is the bisector's responsibility at the check-and-push
// boundary; the ledger only grants exclusive access.
func (l *Ledger) HasFound(name domain.Candidate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.found {
		if f.Name == name {
			return true
		}
	}
	return false
}

// HasSignature reports whether any existing finding has sig as its joined
// diff signature, used for --strict dedup. The LRU cache is a
// performance-only layer over the same authoritative scan; a cache miss
// falls through to it.
func (l *Ledger) HasSignature(sig string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sigCache.Get(sig); ok {
		return true
	}
	for _, f := range l.found {
		if f.Diffs.Join() == sig {
			l.sigCache.Add(sig, struct{}{})
			return true
		}
	}
	return false
}

// Append records a new finding. Callers must have already checked HasFound
// (and, under --strict, HasSignature) inside the same critical section as
// this call to avoid a duplicate slipping in from a concurrent bisector;
// AppendIfAbsent does exactly that atomically.
func (l *Ledger) Append(f domain.FoundParameter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.found = append(l.found, f)
	if f.Diffs.Join() != "" {
		l.sigCache.Add(f.Diffs.Join(), struct{}{})
	}
}

// IncRequests increments the real-probe counter. Safe to call without
// holding any lock.
func (l *Ledger) IncRequests() { l.requestsSent.Add(1) }

// IncControlRequests increments the control/random-probe counter.
func (l *Ledger) IncControlRequests() { l.controlRequestsSent.Add(1) }

// IncNoiseAbsorbed increments the count of diffs absorbed into the known-noise
// set by a control probe, by n.
func (l *Ledger) IncNoiseAbsorbed(n int) { l.noiseDiffsAbsorbed.Add(uint64(n)) }

// Stats returns a snapshot of the scan's request and noise counters.
func (l *Ledger) Stats() Stats {
	return Stats{
		RequestsSent:        int(l.requestsSent.Load()),
		ControlRequestsSent: int(l.controlRequestsSent.Load()),
		NoiseDiffsAbsorbed:  int(l.noiseDiffsAbsorbed.Load()),
	}
}

// AppendIfAbsent records f unless a finding for the same name already
// exists, or (when strict is true) a finding with the same diff signature
// already exists. It returns true if the finding was recorded.
func (l *Ledger) AppendIfAbsent(f domain.FoundParameter, strict bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.found {
		if existing.Name == f.Name {
			return false
		}
		if strict && existing.Diffs.Join() == f.Diffs.Join() && f.Diffs.Join() != "" {
			return false
		}
	}
	l.found = append(l.found, f)
	if f.Diffs.Join() != "" {
		l.sigCache.Add(f.Diffs.Join(), struct{}{})
	}
	return true
}

// Package bisector implements the recursive binary-search engine that
// narrows a chunk of candidate parameter names down to the one (or few)
// responsible for a response diverging from the baseline. It is the core of
// the scanner: everything else exists to feed it probes and collect its
// findings.
package bisector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/paramhunt/paramhunt/internal/scan/common/log"
	"github.com/paramhunt/paramhunt/internal/scan/domain"
	"github.com/paramhunt/paramhunt/internal/scan/services/ledger"
)

// maxDepth bounds bisection recursion. A chunk that never converges to a
// singleton (because, say, the page is flapping) stops contributing further
// splits once its branch crosses this depth, rather than growing the call
// stack without bound.
const maxDepth = 50

// codeFlapThreshold is the number of consecutive divergent-code
// observations tolerated before a confirming control probe is issued.
const codeFlapThreshold = 50

// Bisector narrows one chunk at a time to the candidate(s) responsible for a
// response that differs from the baseline. A Bisector is built once per scan
// and shared (safely - all mutable state lives in the Ledger) across every
// chunk goroutine the dispatcher spawns.
type Bisector struct {
	builder ProbeBuilder
	differ  Differ
	writer  Writer
	ledger  *ledger.Ledger
	logger  log.Logger

	baseline  domain.Response
	stable    domain.StableFlags
	flags     domain.ScanFlags
	scanID    string
	targetURL string
}

// Options bundles the collaborators and per-scan configuration needed to
// construct a Bisector.
type Options struct {
	Builder   ProbeBuilder
	Differ    Differ
	Writer    Writer
	Ledger    *ledger.Ledger
	Logger    log.Logger
	Baseline  domain.Response
	Stable    domain.StableFlags
	Flags     domain.ScanFlags
	ScanID    string
	TargetURL string
}

// New constructs a Bisector from opts, defaulting Logger to a no-op when not
// supplied so callers in tests need not wire every collaborator. Per-chunk
// progress and concurrency are the dispatcher's responsibility, not the
// bisector's.
func New(opts Options) *Bisector {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Bisector{
		builder:   opts.Builder,
		differ:    opts.Differ,
		writer:    opts.Writer,
		ledger:    opts.Ledger,
		logger:    opts.Logger,
		baseline:  opts.Baseline,
		stable:    opts.Stable,
		flags:     opts.Flags,
		scanID:    opts.ScanID,
		targetURL: opts.TargetURL,
	}
}

// Bisect narrows chunk to the candidate(s) responsible for any response
// divergence, recording findings in the ledger as it goes. It returns a
// fatal error (domain.ErrUnreachableServer or domain.ErrPageUnstableCode)
// when the target can no longer be probed meaningfully; every other
// condition - recovered transport flakes, reflection/signature duplicates -
// is handled silently, matching the spec's error taxonomy.
func (b *Bisector) Bisect(ctx context.Context, chunk domain.Chunk, depth int) error {
	// Termination guard 1: nothing left to check.
	if len(chunk) == 0 {
		return nil
	}
	// Termination guard 2: runaway recursion, treat as uninformative.
	if depth > maxDepth {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := b.probe(ctx, chunk)
	if err != nil {
		return err
	}

	if b.stable.Reflections {
		done, err := b.reflectionPhase(ctx, &chunk, &resp, depth)
		if done || err != nil {
			return err
		}
	}

	if b.baseline.Code != resp.Code {
		return b.codePhase(ctx, chunk, resp, depth)
	}
	if b.stable.Body {
		return b.bodyPhase(ctx, chunk, resp, depth)
	}
	return nil
}

// probe issues the real request for chunk, recovering a single-probe
// transport failure by substituting an empty synthetic response when a
// random-name control probe of equal arity still succeeds.
func (b *Bisector) probe(ctx context.Context, chunk domain.Chunk) (domain.Response, error) {
	req := b.builder.New(chunk)
	b.ledger.IncRequests()
	resp, err := req.WrappedSend(ctx)
	if err == nil {
		return resp, nil
	}

	b.logger.Debug(map[string]any{"error": err.Error(), "chunk_size": len(chunk)}, "probe failed, issuing control probe")
	b.ledger.IncControlRequests()
	if _, cErr := b.builder.NewRandom(len(chunk)).Send(ctx); cErr != nil {
		return domain.Response{}, domain.NewUnreachableServerError(err)
	}
	return req.EmptyResponse(), nil
}

// reflectionPhase runs the reflection sub-phase. The bool return reports
// whether the caller should stop processing this bisection branch entirely
// (either because reflection recursed and handled the rest, or because
// reflected_only cuts the branch short).
func (b *Bisector) reflectionPhase(ctx context.Context, chunk *domain.Chunk, resp *domain.Response, depth int) (done bool, err error) {
	b.differ.FillReflectedParameters(resp, b.baseline, *chunk)
	name, repeat := b.differ.ProceedReflectedParameters(resp)

	if name != nil && !b.ledger.HasFound(*name) {
		kind := domain.ReasonReflected
		// A singleton chunk is really two parameters on the wire once the
		// cache-buster is added, so reflection there cannot be attributed
		// unambiguously to the candidate; demote the classification.
		if len(*chunk) == 1 {
			kind = domain.ReasonNotReflected
		}
		finding := domain.NewFoundParameter(*name, nil, resp.Code, resp.BodyLength(), kind)
		if b.ledger.AppendIfAbsent(finding, false) {
			if werr := b.writer.WriteAndSave(ctx, b.scanID, b.baseline, finding); werr != nil {
				return true, werr
			}
		}
		*chunk = chunk.Without(*name)
	}

	if repeat {
		return true, b.repeat(ctx, *chunk, depth)
	}
	if b.flags.ReflectedOnly {
		return true, nil
	}
	return false, nil
}

// codePhase runs the code-difference sub-phase, invoked when resp's status
// code diverges from the baseline.
func (b *Bisector) codePhase(ctx context.Context, chunk domain.Chunk, resp domain.Response, depth int) error {
	codeKey := strconv.Itoa(resp.Code)
	if count := b.ledger.BumpCode(codeKey); count > codeFlapThreshold {
		b.ledger.IncControlRequests()
		ctrlResp, cErr := b.builder.NewRandom(len(chunk)).WrappedSend(ctx)
		// A failed confirmation probe is treated the same as a code
		// mismatch: the page's stability cannot be confirmed, so it is not
		// safe to reset the flap counter.
		if cErr != nil || ctrlResp.Code != b.baseline.Code {
			return domain.NewPageUnstableCodeError(b.targetURL)
		}
		b.ledger.ResetCode(codeKey)
	}

	if len(chunk) == 1 {
		diff := domain.Diff(fmt.Sprintf("%d -> %d", b.baseline.Code, resp.Code))
		finding := domain.NewFoundParameter(chunk[0], domain.Diffs{diff}, resp.Code, resp.BodyLength(), domain.ReasonCode)
		if b.ledger.AppendIfAbsent(finding, b.flags.Strict) {
			return b.writer.WriteAndSave(ctx, b.scanID, b.baseline, finding)
		}
		return nil
	}
	return b.repeat(ctx, chunk, depth)
}

// bodyPhase runs the body-difference sub-phase, invoked when resp's status
// code matches the baseline and body analysis is enabled.
func (b *Bisector) bodyPhase(ctx context.Context, chunk domain.Chunk, resp domain.Response, depth int) error {
	observed, err := b.differ.Compare(resp, b.baseline)
	if err != nil {
		return fmt.Errorf("compare response: %w", err)
	}
	newDiffs := b.unknownDiffs(observed)
	if len(newDiffs) == 0 {
		return nil
	}
	if b.flags.Strict && b.ledger.HasSignature(newDiffs.Join()) {
		return nil
	}

	// Issue a random-control probe of the same arity to learn which of the
	// novel diffs are actually page noise rather than candidate-driven.
	b.ledger.IncControlRequests()
	ctrlResp, err := b.builder.NewRandom(len(chunk)).Send(ctx)
	if err != nil {
		return fmt.Errorf("control probe: %w", err)
	}
	tmpDiffs, err := b.differ.Compare(ctrlResp, b.baseline)
	if err != nil {
		return fmt.Errorf("compare control response: %w", err)
	}
	b.ledger.AddDiffs(tmpDiffs)

	for _, d := range newDiffs {
		// Re-query the bloom-backed known set now that the control probe's
		// diffs have just been absorbed into it.
		if b.ledger.KnownDiff(d) {
			continue
		}
		if len(chunk) == 1 && !b.ledger.HasFound(chunk[0]) {
			// Re-check strict dedup: another worker may have pushed a
			// matching signature while this branch was probing.
			if b.flags.Strict && b.ledger.HasSignature(newDiffs.Join()) {
				return nil
			}
			finding := domain.NewFoundParameter(chunk[0], newDiffs, resp.Code, resp.BodyLength(), domain.ReasonText)
			if b.ledger.AppendIfAbsent(finding, b.flags.Strict) {
				return b.writer.WriteAndSave(ctx, b.scanID, b.baseline, finding)
			}
			return nil
		}
		return b.repeat(ctx, chunk, depth)
	}
	return nil
}

// unknownDiffs filters observed down to the diffs not already recorded as
// baseline-stable noise, consulting the ledger's bloom-backed known set
// instead of scanning a local snapshot.
func (b *Bisector) unknownDiffs(observed domain.Diffs) domain.Diffs {
	var out domain.Diffs
	for _, d := range observed {
		if !b.ledger.KnownDiff(d) {
			out = append(out, d)
		}
	}
	return out
}

// repeat either recurses directly (a chunk of zero or one names needs no
// further narrowing) or splits chunk in half and bisects each half in turn,
// left before right, both at depth+1. Both halves must complete; either
// error aborts the branch. This is the helper both the reflection, code, and
// body sub-phases call when a multi-name chunk still needs narrowing.
func (b *Bisector) repeat(ctx context.Context, chunk domain.Chunk, depth int) error {
	if len(chunk) <= 1 {
		return b.Bisect(ctx, chunk, depth+1)
	}
	left, right := chunk.Split()
	if err := b.Bisect(ctx, left, depth+1); err != nil {
		return err
	}
	return b.Bisect(ctx, right, depth+1)
}

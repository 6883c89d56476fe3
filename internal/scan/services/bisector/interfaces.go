package bisector

import (
	"context"

	"github.com/paramhunt/paramhunt/internal/scan/domain"
)

// Request is a single outbound probe built from the scan's template plus a
// chunk (or random set) of candidate names.
type Request interface {
	// Send issues the request once, with no retry envelope.
	Send(ctx context.Context) (domain.Response, error)
	// WrappedSend issues the request with the transport's retry envelope.
	WrappedSend(ctx context.Context) (domain.Response, error)
	// EmptyResponse returns a synthetic response whose differ-relevant
	// fields equal the baseline, used to substitute "no signal" when a
	// probe fails but a control probe on random names succeeds.
	EmptyResponse() domain.Response
}

// ProbeBuilder constructs requests for a scan's template.
type ProbeBuilder interface {
	// New builds a request carrying the given chunk of real candidate
	// names plus a cache-buster.
	New(chunk domain.Chunk) Request
	// NewRandom builds a control request of the given arity using freshly
	// generated random names, never candidates from the dictionary.
	NewRandom(arity int) Request
}

// Differ compares responses to the baseline and annotates reflection.
type Differ interface {
	// Compare returns every structural diff observed between resp and
	// baseline. Classifying which of those are already known noise is the
	// ledger's job (see Ledger.KnownDiff), not the differ's.
	Compare(resp, baseline domain.Response) (diffs domain.Diffs, err error)
	// FillReflectedParameters annotates resp.Reflected in place with any
	// name from chunk that appears echoed in resp's body but not in
	// baseline's.
	FillReflectedParameters(resp *domain.Response, baseline domain.Response, chunk domain.Chunk)
	// ProceedReflectedParameters consumes resp's reflection annotation,
	// returning the reflected name (if any) and whether further reflection
	// passes over the remaining chunk are warranted.
	ProceedReflectedParameters(resp *domain.Response) (name *domain.Candidate, repeat bool)
}

// Writer persists a finding as it is recorded, outside of any ledger lock.
// found is the same record the ledger just accepted; scanID and baseline are
// passed alongside for output namespacing and context.
type Writer interface {
	WriteAndSave(ctx context.Context, scanID string, baseline domain.Response, found domain.FoundParameter) error
}

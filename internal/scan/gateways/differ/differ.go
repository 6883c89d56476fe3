// Package differ implements the response-comparison contract the bisector
// consumes: structural body diffing against a baseline, and reflection
// detection of candidate names echoed back in a response body.
package differ

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/paramhunt/paramhunt/internal/scan/domain"
	"github.com/paramhunt/paramhunt/internal/scan/services/bisector"
)

// TextDiffer compares response bodies line by line, identifying each
// changed region by its tag and position in the baseline's line space
// rather than by its literal content. Two probes that both perturb the same
// region of the page (a timestamp, a nonce) produce the same Diff identity
// even though the literal text differs between calls, which is what lets
// the bisector's noise-absorption step recognize a random-control probe's
// diffs as the same instability the real probe saw.
type TextDiffer struct{}

// New returns a TextDiffer.
func New() *TextDiffer { return &TextDiffer{} }

// Compare returns every structural diff observed between resp and baseline.
// Classifying which are already known noise is the caller's job.
func (TextDiffer) Compare(resp, baseline domain.Response) (domain.Diffs, error) {
	return bodyDiffs(baseline.Body, resp.Body), nil
}

// bodyDiffs runs a line-level diff of baseline against candidate and returns
// one Diff per non-equal opcode, identified by tag and baseline line range.
func bodyDiffs(baseline, candidate string) domain.Diffs {
	matcher := difflib.NewMatcher(difflib.SplitLines(baseline), difflib.SplitLines(candidate))
	var diffs domain.Diffs
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		diffs = append(diffs, domain.Diff(fmt.Sprintf("%c@%d:%d", op.Tag, op.I1, op.I2)))
	}
	return diffs
}

// FillReflectedParameters annotates resp in place with the first candidate
// from chunk whose name appears in resp's body but not in baseline's, and
// flags ReflectedRepeat when a second candidate also appears, so the
// bisector knows another reflection pass over the remainder is worthwhile.
func (TextDiffer) FillReflectedParameters(resp *domain.Response, baseline domain.Response, chunk domain.Chunk) {
	var first *domain.Candidate
	seenSecond := false
	for _, name := range chunk {
		marker := string(name)
		if !containsMarker(resp.Body, marker) {
			continue
		}
		if containsMarker(baseline.Body, marker) {
			// Already present in the baseline; not a reflection of this
			// probe, just a name that happens to occur on the page.
			continue
		}
		if first == nil {
			n := name
			first = &n
			continue
		}
		seenSecond = true
		break
	}
	resp.Reflected = first
	resp.ReflectedRepeat = seenSecond
}

// ProceedReflectedParameters consumes resp's reflection annotation.
func (TextDiffer) ProceedReflectedParameters(resp *domain.Response) (*domain.Candidate, bool) {
	name := resp.Reflected
	repeat := resp.ReflectedRepeat
	resp.Reflected = nil
	resp.ReflectedRepeat = false
	return name, repeat
}

func containsMarker(body, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(body, marker)
}

var _ bisector.Differ = (*TextDiffer)(nil)

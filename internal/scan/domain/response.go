package domain

// Diff is an opaque identifier for one structural difference between two
// responses. Diffs carry set semantics: membership is what matters, never
// order.
type Diff string

// Diffs is a list of Diff with convenience membership testing.
type Diffs []Diff

// Contains reports whether d appears in the list.
func (ds Diffs) Contains(d Diff) bool {
	for _, existing := range ds {
		if existing == d {
			return true
		}
	}
	return false
}

// Join concatenates the diffs with "|", used as a dedup signature under
// --strict.
func (ds Diffs) Join() string {
	out := ""
	for i, d := range ds {
		if i > 0 {
			out += "|"
		}
		out += string(d)
	}
	return out
}

// Response is a single HTTP response as seen by the probing core. It carries
// just enough structure for the differ and the bisector; the HTTP transport
// collaborator is responsible for populating it.
type Response struct {
	// Code is the HTTP status code.
	Code int
	// Body is the raw response text.
	Body string
	// Headers are the response headers, lowercased by key.
	Headers map[string][]string
	// Reflected is populated by the differ's reflection pass: the candidate
	// name it found echoed in Body, if any.
	Reflected *Candidate
	// ReflectedRepeat signals that more than one candidate from the probed
	// chunk appeared echoed, so another reflection pass over the remaining
	// chunk is worth running before falling through to code/body analysis.
	ReflectedRepeat bool
}

// BodyLength returns the byte length of the response body.
func (r Response) BodyLength() int {
	return len(r.Body)
}

// Empty reports whether r is the zero Response: no status code, body,
// headers, or reflection annotation. The "no signal" substitute used when a
// probe fails but its control probe succeeds is a copy of the baseline
// (Request.EmptyResponse), not a zero Response, so Empty does not detect it.
func (r Response) Empty() bool {
	return r.Code == 0 && r.Body == "" && r.Headers == nil && r.Reflected == nil
}

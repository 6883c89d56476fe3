package domain

// Reason classifies why a candidate was recorded as a finding.
type Reason string

const (
	// ReasonReflected means the candidate's name was echoed in the response
	// body and the chunk held more than one name at the time of detection.
	ReasonReflected Reason = "Reflected"
	// ReasonNotReflected is the demoted classification used when a chunk of
	// exactly one name produced an echo: the differ cannot distinguish
	// reflection-of-this-name from a general echo once the cache-buster is
	// the only other value on the wire.
	ReasonNotReflected Reason = "NotReflected"
	// ReasonCode means the candidate changed the response status code.
	ReasonCode Reason = "Code"
	// ReasonText means the candidate changed the response body in a way not
	// explained by baseline noise.
	ReasonText Reason = "Text"
)

// FoundParameter is a recorded candidate with its supporting evidence.
type FoundParameter struct {
	Name       Candidate `json:"name"`
	Diffs      Diffs     `json:"diffs"`
	StatusCode int       `json:"status_code"`
	BodyLength int       `json:"body_length"`
	Reason     Reason    `json:"reason"`
}

// NewFoundParameter constructs a finding record.
func NewFoundParameter(name Candidate, diffs Diffs, statusCode, bodyLength int, reason Reason) FoundParameter {
	return FoundParameter{
		Name:       name,
		Diffs:      diffs,
		StatusCode: statusCode,
		BodyLength: bodyLength,
		Reason:     reason,
	}
}

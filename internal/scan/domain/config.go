package domain

// StableFlags are immutable per-scan toggles controlling which analysis
// passes the bisector runs.
type StableFlags struct {
	// Reflections enables the reflection sub-phase.
	Reflections bool
	// Body enables the body-difference sub-phase.
	Body bool
}

// ScanFlags are the per-scan configuration knobs the bisector consumes.
// Concurrency and chunk sizing belong to the dispatcher, not here.
type ScanFlags struct {
	// ReflectedOnly, when set, stops a bisection branch after the
	// reflection sub-phase, skipping code/body analysis entirely.
	ReflectedOnly bool
	// Strict deduplicates findings that share an identical diff signature.
	Strict bool
}

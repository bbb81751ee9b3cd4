package types

// RawResult is what the analysis engine exposes after a completed run
type RawResult struct {
	Findings string
	Errors   []RawError
	Stats    Statistics
}

// RawError is one violation reported by the analysis engine, together with
// the thread states at the moment it was detected
type RawError struct {
	ID          int
	Description string
	Details     string
	Snapshot    []ThreadState
}

// Equivalent reports whether two errors describe the same violation
func (e RawError) Equivalent(other RawError) bool {
	return e.Description == other.Description && e.Details == other.Details
}

// ThreadState captures a single thread in an error snapshot
type ThreadState struct {
	ID            int
	Name          string
	Status        string
	OwnedLocks    []string
	RequestedLock string // empty when the thread is not blocked on a lock
	Frames        []StackFrame
}

// HasRequestedLock reports whether the thread is waiting on a lock
func (t ThreadState) HasRequestedLock() bool {
	return t.RequestedLock != ""
}

// StackFrame is one entry of a thread's call stack, innermost first
type StackFrame struct {
	Line  int
	Trace string
	// DirectCall marks synthetic frames the engine pushes for its own calls
	DirectCall bool
}

// Statistics are the search counters reported by the engine.
// MaxUsed is in bytes.
type Statistics struct {
	ElapsedTime   string
	NewStates     int64
	VisitedStates int64
	Backtracked   int64
	EndStates     int64
	MaxUsed       int64
}

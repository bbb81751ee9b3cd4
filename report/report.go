// Package report turns the engine's raw error and statistics feed into the
// structured document handed back to the orchestrator.
//
// Two errors are equivalent when their descriptions and details are equal.
// Of each group of equivalent errors only the last occurrence is kept, at
// the position of that occurrence. Errors.Total always counts the errors
// the engine reported, so it may exceed the length of the kept list.
package report

import (
	"encoding/xml"
	"fmt"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// MemoryUnit is the unit peak memory is reported in
const MemoryUnit = "MB"

// Report is the structured analysis report
type Report struct {
	XMLName  xml.Name   `xml:"report" json:"-"`
	Findings string     `xml:"findings,attr,omitempty" json:"findings,omitempty"`
	Stats    Statistics `xml:"statistics" json:"statistics"`
	Errors   Errors     `xml:"errors" json:"errors"`
}

// Statistics is the search statistics block
type Statistics struct {
	ElapsedTime   string `xml:"elapsed-time" json:"elapsedTime"`
	NewStates     int64  `xml:"new-states" json:"newStates"`
	VisitedStates int64  `xml:"visited-states" json:"visitedStates"`
	Backtracked   int64  `xml:"backtracked-states" json:"backtrackedStates"`
	EndStates     int64  `xml:"end-states" json:"endStates"`
	MaxMemory     Memory `xml:"max-memory" json:"maxMemory"`
}

// Memory is a quantity with its unit
type Memory struct {
	Unit  string `xml:"unit,attr" json:"unit"`
	Value int64  `xml:",chardata" json:"value"`
}

// Errors is the errors block: the number of errors the engine reported and
// the deduplicated list
type Errors struct {
	Total int     `xml:"total,attr" json:"total"`
	List  []Error `xml:"error" json:"list"`
}

// Error is one unique violation with the threads at the time it was found
type Error struct {
	ID          int      `xml:"id,attr" json:"id"`
	Description string   `xml:"description" json:"description"`
	Details     string   `xml:"details" json:"details"`
	Threads     []Thread `xml:"threads>thread" json:"threads"`
}

// Thread is a thread's state in an error snapshot
type Thread struct {
	ID            int     `xml:"id,attr" json:"id"`
	Name          string  `xml:"name,attr" json:"name"`
	Status        string  `xml:"status,attr" json:"status"`
	OwnedLocks    []Lock  `xml:"lock-owned" json:"ownedLocks"`
	RequestedLock *Lock   `xml:"lock-request,omitempty" json:"requestedLock,omitempty"`
	Frames        []Frame `xml:"frame" json:"frames"`
}

type Lock struct {
	Object string `xml:"object,attr" json:"object"`
}

type Frame struct {
	Line  int    `xml:"line,attr" json:"line"`
	Trace string `xml:",chardata" json:"trace"`
}

// Build creates a report from the engine's raw errors and statistics. It
// copies what it needs and never fails.
func Build(raw []types.RawError, stats types.Statistics) *Report {
	r := &Report{
		Stats: convertStats(stats),
		Errors: Errors{
			Total: len(raw),
			List:  make([]Error, 0, len(raw)),
		},
	}
	for i, e := range raw {
		if supersededLater(raw, i) {
			continue
		}
		r.Errors.List = append(r.Errors.List, convertError(e))
	}
	return r
}

// FromResult builds a report from a complete engine result
func FromResult(res *types.RawResult) *Report {
	if res == nil {
		return Build(nil, types.Statistics{})
	}
	r := Build(res.Errors, res.Stats)
	r.Findings = res.Findings
	return r
}

// supersededLater reports whether an error after raw[i] is equivalent to it
func supersededLater(raw []types.RawError, i int) bool {
	for _, later := range raw[i+1:] {
		if raw[i].Equivalent(later) {
			return true
		}
	}
	return false
}

func convertStats(s types.Statistics) Statistics {
	return Statistics{
		ElapsedTime:   s.ElapsedTime,
		NewStates:     s.NewStates,
		VisitedStates: s.VisitedStates,
		Backtracked:   s.Backtracked,
		EndStates:     s.EndStates,
		MaxMemory:     Memory{Unit: MemoryUnit, Value: s.MaxUsed >> 20},
	}
}

func convertError(e types.RawError) Error {
	out := Error{
		ID:          e.ID,
		Description: e.Description,
		Details:     e.Details,
		Threads:     make([]Thread, 0, len(e.Snapshot)),
	}
	for _, ts := range e.Snapshot {
		out.Threads = append(out.Threads, convertThread(ts))
	}
	return out
}

func convertThread(ts types.ThreadState) Thread {
	t := Thread{
		ID:         ts.ID,
		Name:       ts.Name,
		Status:     ts.Status,
		OwnedLocks: make([]Lock, 0, len(ts.OwnedLocks)),
		Frames:     make([]Frame, 0, len(ts.Frames)),
	}
	for _, l := range ts.OwnedLocks {
		t.OwnedLocks = append(t.OwnedLocks, Lock{Object: l})
	}
	if ts.HasRequestedLock() {
		t.RequestedLock = &Lock{Object: ts.RequestedLock}
	}
	for _, f := range ts.Frames {
		if f.DirectCall {
			continue
		}
		t.Frames = append(t.Frames, Frame{Line: f.Line, Trace: f.Trace})
	}
	return t
}

// Success reports whether the engine found no errors
func (r *Report) Success() bool {
	return r.Errors.Total == 0
}

// Unique returns the number of errors left after deduplication
func (r *Report) Unique() int {
	return len(r.Errors.List)
}

// Summary is a one-line description of the report
func (r *Report) Summary() string {
	if r.Success() {
		return fmt.Sprintf("no errors; %d states visited, %d %s peak memory, elapsed %s",
			r.Stats.VisitedStates, r.Stats.MaxMemory.Value, r.Stats.MaxMemory.Unit, r.Stats.ElapsedTime)
	}
	return fmt.Sprintf("%d unique errors (%d reported); %d states visited, %d %s peak memory, elapsed %s",
		r.Unique(), r.Errors.Total, r.Stats.VisitedStates, r.Stats.MaxMemory.Value, r.Stats.MaxMemory.Unit, r.Stats.ElapsedTime)
}

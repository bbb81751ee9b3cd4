package engine

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// xmlFeed is the report the engine's XML publisher writes. Errors may carry
// their own thread snapshot; errors without one get the live threads.
type xmlFeed struct {
	XMLName     xml.Name      `xml:"jpfreport"`
	LiveThreads []xmlThread   `xml:"live-threads>thread"`
	Result      xmlResult     `xml:"result"`
	Stats       xmlStatistics `xml:"statistics"`
}

type xmlResult struct {
	Findings string     `xml:"findings,attr"`
	Errors   []xmlError `xml:"error"`
}

type xmlError struct {
	ID          int         `xml:"id,attr"`
	Property    string      `xml:"property"`
	Description string      `xml:"description"`
	Details     string      `xml:"details"`
	Snapshot    []xmlThread `xml:"snapshot>thread"`
}

type xmlThread struct {
	ID           int        `xml:"id,attr"`
	Name         string     `xml:"name,attr"`
	Status       string     `xml:"status,attr"`
	OwnedLocks   []xmlLock  `xml:"lock-owned"`
	RequestLocks []xmlLock  `xml:"lock-request"`
	Frames       []xmlFrame `xml:"frame"`
}

type xmlLock struct {
	Object string `xml:"object,attr"`
}

type xmlFrame struct {
	Line       string `xml:"line,attr"`
	DirectCall bool   `xml:"direct-call,attr"`
	Trace      string `xml:",chardata"`
}

type xmlStatistics struct {
	ElapsedTime   string    `xml:"elapsed-time"`
	NewStates     int64     `xml:"new-states"`
	VisitedStates int64     `xml:"visited-states"`
	Backtracked   int64     `xml:"backtracked-states"`
	EndStates     int64     `xml:"end-states"`
	MaxMemory     xmlMemory `xml:"max-memory"`
}

type xmlMemory struct {
	Unit  string `xml:"unit,attr"`
	Value string `xml:",chardata"`
}

// frameLine matches the "(File.java:42)" suffix of a stack trace element
var frameLine = regexp.MustCompile(`:(\d+)\)\s*$`)

// ParseFeed reads the engine's XML report into a RawResult
func ParseFeed(r io.Reader) (*types.RawResult, error) {
	var feed xmlFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing engine report: %w", err)
	}

	maxUsed, err := feed.Stats.MaxMemory.bytes()
	if err != nil {
		return nil, err
	}

	live := convertThreads(feed.LiveThreads)
	res := &types.RawResult{
		Findings: strings.TrimSpace(feed.Result.Findings),
		Errors:   make([]types.RawError, 0, len(feed.Result.Errors)),
		Stats: types.Statistics{
			ElapsedTime:   strings.TrimSpace(feed.Stats.ElapsedTime),
			NewStates:     feed.Stats.NewStates,
			VisitedStates: feed.Stats.VisitedStates,
			Backtracked:   feed.Stats.Backtracked,
			EndStates:     feed.Stats.EndStates,
			MaxUsed:       maxUsed,
		},
	}

	for _, e := range feed.Result.Errors {
		description := strings.TrimSpace(e.Description)
		if description == "" {
			description = strings.TrimSpace(e.Property)
		}
		snapshot := live
		if len(e.Snapshot) > 0 {
			snapshot = convertThreads(e.Snapshot)
		}
		res.Errors = append(res.Errors, types.RawError{
			ID:          e.ID,
			Description: description,
			Details:     strings.TrimSpace(e.Details),
			Snapshot:    snapshot,
		})
	}
	return res, nil
}

func convertThreads(threads []xmlThread) []types.ThreadState {
	out := make([]types.ThreadState, 0, len(threads))
	for _, t := range threads {
		ts := types.ThreadState{
			ID:         t.ID,
			Name:       t.Name,
			Status:     t.Status,
			OwnedLocks: make([]string, 0, len(t.OwnedLocks)),
			Frames:     make([]types.StackFrame, 0, len(t.Frames)),
		}
		for _, l := range t.OwnedLocks {
			ts.OwnedLocks = append(ts.OwnedLocks, l.Object)
		}
		if len(t.RequestLocks) > 0 {
			ts.RequestedLock = t.RequestLocks[0].Object
		}
		for _, f := range t.Frames {
			ts.Frames = append(ts.Frames, f.convert())
		}
		out = append(out, ts)
	}
	return out
}

func (f xmlFrame) convert() types.StackFrame {
	trace := strings.TrimSpace(f.Trace)
	frame := types.StackFrame{Trace: trace, DirectCall: f.DirectCall}
	if n, err := strconv.Atoi(strings.TrimSpace(f.Line)); err == nil {
		frame.Line = n
	} else if m := frameLine.FindStringSubmatch(trace); m != nil {
		frame.Line, _ = strconv.Atoi(m[1])
	}
	return frame
}

// bytes converts the reported maximum memory to bytes. Values without a
// unit are bytes.
func (m xmlMemory) bytes() (int64, error) {
	v := strings.TrimSpace(m.Value)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing engine report: max-memory %q: %w", v, err)
	}
	switch strings.ToUpper(strings.TrimSpace(m.Unit)) {
	case "", "B":
		return n, nil
	case "KB":
		return n << 10, nil
	case "MB":
		return n << 20, nil
	default:
		return 0, fmt.Errorf("parsing engine report: unknown max-memory unit %q", m.Unit)
	}
}

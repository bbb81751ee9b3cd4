package report

import (
	"testing"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawError(id int, description, details string) types.RawError {
	return types.RawError{ID: id, Description: description, Details: details}
}

func TestBuild_Deduplication(t *testing.T) {
	tests := []struct {
		name    string
		raw     []types.RawError
		wantIDs []int
	}{
		{
			name:    "later duplicate wins",
			raw:     []types.RawError{rawError(1, "a", "x"), rawError(2, "b", "y"), rawError(3, "a", "x")},
			wantIDs: []int{2, 3},
		},
		{
			name:    "no duplicates",
			raw:     []types.RawError{rawError(1, "a", "x"), rawError(2, "a", "y"), rawError(3, "b", "x")},
			wantIDs: []int{1, 2, 3},
		},
		{
			name:    "all equivalent",
			raw:     []types.RawError{rawError(1, "a", "x"), rawError(2, "a", "x"), rawError(3, "a", "x")},
			wantIDs: []int{3},
		},
		{
			name:    "interleaved",
			raw:     []types.RawError{rawError(1, "a", "x"), rawError(2, "b", "y"), rawError(3, "b", "y"), rawError(4, "a", "x"), rawError(5, "c", "z")},
			wantIDs: []int{3, 4, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Build(tt.raw, types.Statistics{})

			assert.Equal(t, len(tt.raw), r.Errors.Total)
			ids := make([]int, 0, len(r.Errors.List))
			for _, e := range r.Errors.List {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)

			// no two kept errors are equivalent
			for i := range r.Errors.List {
				for j := i + 1; j < len(r.Errors.List); j++ {
					a, b := r.Errors.List[i], r.Errors.List[j]
					assert.False(t, a.Description == b.Description && a.Details == b.Details)
				}
			}
		})
	}
}

func TestBuild_TotalCountsOriginalErrors(t *testing.T) {
	r := Build([]types.RawError{rawError(1, "a", "x"), rawError(2, "b", "y"), rawError(3, "a", "x")}, types.Statistics{})
	assert.Len(t, r.Errors.List, 2)
	assert.Equal(t, 3, r.Errors.Total)
	assert.False(t, r.Success())
	assert.Equal(t, 2, r.Unique())
}

func TestBuild_Statistics(t *testing.T) {
	stats := types.Statistics{
		ElapsedTime:   "00:00:03",
		NewStates:     10,
		VisitedStates: 20,
		Backtracked:   30,
		EndStates:     4,
		MaxUsed:       2097152,
	}

	r := Build(nil, stats)

	assert.Equal(t, Statistics{
		ElapsedTime:   "00:00:03",
		NewStates:     10,
		VisitedStates: 20,
		Backtracked:   30,
		EndStates:     4,
		MaxMemory:     Memory{Unit: "MB", Value: 2},
	}, r.Stats)
}

func TestBuild_MemoryTruncates(t *testing.T) {
	assert.Equal(t, int64(0), Build(nil, types.Statistics{MaxUsed: 1<<20 - 1}).Stats.MaxMemory.Value)
	assert.Equal(t, int64(1), Build(nil, types.Statistics{MaxUsed: 1<<21 - 1}).Stats.MaxMemory.Value)
}

func TestBuild_ThreadSnapshot(t *testing.T) {
	raw := []types.RawError{{
		ID:          1,
		Description: "deadlock",
		Details:     "details",
		Snapshot: []types.ThreadState{
			{
				ID:            1,
				Name:          "Thread-1",
				Status:        "BLOCKED",
				OwnedLocks:    []string{"Object@1", "Object@2"},
				RequestedLock: "Object@3",
				Frames: []types.StackFrame{
					{Trace: "[synthetic] [run]", DirectCall: true},
					{Line: 12, Trace: "at racer.Racer.run(Racer.java:12)"},
					{Line: 40, Trace: "at java.lang.Thread.run(Thread.java:40)"},
				},
			},
			{ID: 0, Name: "main", Status: "WAITING"},
		},
	}}

	r := Build(raw, types.Statistics{})

	require.Len(t, r.Errors.List, 1)
	threads := r.Errors.List[0].Threads
	require.Len(t, threads, 2)

	assert.Equal(t, Thread{
		ID:            1,
		Name:          "Thread-1",
		Status:        "BLOCKED",
		OwnedLocks:    []Lock{{Object: "Object@1"}, {Object: "Object@2"}},
		RequestedLock: &Lock{Object: "Object@3"},
		Frames: []Frame{
			{Line: 12, Trace: "at racer.Racer.run(Racer.java:12)"},
			{Line: 40, Trace: "at java.lang.Thread.run(Thread.java:40)"},
		},
	}, threads[0])

	assert.Nil(t, threads[1].RequestedLock)
	assert.Empty(t, threads[1].OwnedLocks)
	assert.Empty(t, threads[1].Frames)
}

func TestBuild_CopiesInput(t *testing.T) {
	raw := []types.RawError{{
		Description: "race",
		Snapshot:    []types.ThreadState{{Name: "t", OwnedLocks: []string{"L"}}},
	}}

	r := Build(raw, types.Statistics{})
	raw[0].Description = "changed"
	raw[0].Snapshot[0].OwnedLocks[0] = "changed"

	assert.Equal(t, "race", r.Errors.List[0].Description)
	assert.Equal(t, "L", r.Errors.List[0].Threads[0].OwnedLocks[0].Object)
}

func TestBuild_Empty(t *testing.T) {
	for _, stats := range []types.Statistics{{}, {NewStates: 99, MaxUsed: 1 << 30, ElapsedTime: "01:00:00"}} {
		r := Build(nil, stats)
		assert.Equal(t, 0, r.Errors.Total)
		assert.NotNil(t, r.Errors.List)
		assert.Empty(t, r.Errors.List)
		assert.True(t, r.Success())

		again := Build([]types.RawError{}, stats)
		assert.Equal(t, r, again)
	}
}

func TestFromResult(t *testing.T) {
	r := FromResult(&types.RawResult{
		Findings: "errors",
		Errors:   []types.RawError{rawError(1, "a", "x")},
		Stats:    types.Statistics{MaxUsed: 3 << 20},
	})
	assert.Equal(t, "errors", r.Findings)
	assert.Equal(t, 1, r.Errors.Total)
	assert.Equal(t, int64(3), r.Stats.MaxMemory.Value)

	empty := FromResult(nil)
	assert.True(t, empty.Success())
}

func TestSummary(t *testing.T) {
	r := Build([]types.RawError{rawError(1, "a", "x"), rawError(2, "a", "x")}, types.Statistics{VisitedStates: 5, MaxUsed: 4 << 20, ElapsedTime: "00:00:01"})
	assert.Equal(t, "1 unique errors (2 reported); 5 states visited, 4 MB peak memory, elapsed 00:00:01", r.Summary())

	ok := Build(nil, types.Statistics{VisitedStates: 5, ElapsedTime: "00:00:01"})
	assert.Equal(t, "no errors; 5 states visited, 0 MB peak memory, elapsed 00:00:01", ok.Summary())
}

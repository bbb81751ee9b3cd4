package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum-optimism/infra/op-harness/capture"
	"github.com/ethereum-optimism/infra/op-harness/options"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *options.Configuration {
	return options.Build(options.Defaults(), nil, options.Runtime{Target: "racer.Racer", ReportFile: "/tmp/feed"})
}

func newTestInvoker(t *testing.T, e Engine, mode capture.Mode) (*Invoker, *capture.Channels, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	channels := &capture.Channels{Out: &out, Err: &out}
	inv, err := NewInvoker(Config{Engine: e, Channels: channels, Mode: mode, Log: log.New()})
	require.NoError(t, err)
	inv.newRunID = func() string { return "run-1" }
	return inv, channels, &out
}

func TestInvoker_Outcomes(t *testing.T) {
	raw := &types.RawResult{Errors: []types.RawError{{ID: 1, Description: "race"}}}

	tests := []struct {
		name       string
		engine     Func
		wantStatus Status
		wantReason string
		wantResult bool
	}{
		{
			name: "success",
			engine: func(ctx context.Context, req Request) (*types.RawResult, error) {
				return raw, nil
			},
			wantStatus: StatusSuccess,
			wantResult: true,
		},
		{
			name: "config failure",
			engine: func(ctx context.Context, req Request) (*types.RawResult, error) {
				return nil, ConfigFailure("unknown class %s", "x.Y")
			},
			wantStatus: StatusConfigFailure,
			wantReason: "unknown class x.Y",
		},
		{
			name: "runtime failure",
			engine: func(ctx context.Context, req Request) (*types.RawResult, error) {
				return nil, fmt.Errorf("wrapped: %w", RuntimeFailure("out of memory"))
			},
			wantStatus: StatusEngineFailure,
			wantReason: "out of memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, _, _ := newTestInvoker(t, tt.engine, capture.Discard)

			outcome, err := inv.Run(context.Background(), testConfig())
			require.NoError(t, err)
			require.NotNil(t, outcome)
			assert.Equal(t, tt.wantStatus, outcome.Status)
			assert.Equal(t, tt.wantReason, outcome.Reason)
			assert.Equal(t, "run-1", outcome.RunID)
			assert.NotNil(t, outcome.Transcript)
			assert.Equal(t, tt.wantStatus == StatusSuccess, outcome.Succeeded())
			if tt.wantResult {
				assert.Same(t, raw, outcome.Result)
			} else {
				assert.Nil(t, outcome.Result)
			}
		})
	}
}

func TestInvoker_DefectsAreErrors(t *testing.T) {
	boom := errors.New("boom")
	inv, _, _ := newTestInvoker(t, Func(func(ctx context.Context, req Request) (*types.RawResult, error) {
		return nil, boom
	}), capture.Discard)

	outcome, err := inv.Run(context.Background(), testConfig())
	require.ErrorIs(t, err, boom)
	assert.Nil(t, outcome)
	assert.False(t, IsFailure(err))
}

func TestInvoker_NilResultIsDefect(t *testing.T) {
	inv, _, _ := newTestInvoker(t, Func(func(ctx context.Context, req Request) (*types.RawResult, error) {
		return nil, nil
	}), capture.Discard)

	_, err := inv.Run(context.Background(), testConfig())
	require.Error(t, err)
}

func TestInvoker_PassesRequest(t *testing.T) {
	cfg := testConfig()
	var got Request
	inv, _, _ := newTestInvoker(t, Func(func(ctx context.Context, req Request) (*types.RawResult, error) {
		got = req
		return &types.RawResult{}, nil
	}), capture.Discard)

	_, err := inv.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Same(t, cfg, got.Config)
}

func TestInvoker_CapturesOutput(t *testing.T) {
	inv, channels, out := newTestInvoker(t, Func(func(ctx context.Context, req Request) (*types.RawResult, error) {
		fmt.Fprintln(req.Stdout, "Java Pathfinder core system")
		fmt.Fprintln(req.Stderr, "warning: no listeners")
		return &types.RawResult{}, nil
	}), capture.Buffer)
	saved := channels.Out

	outcome, err := inv.Run(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, "Java Pathfinder core system\n", string(outcome.Transcript.Stdout))
	assert.Equal(t, "warning: no listeners\n", string(outcome.Transcript.Stderr))
	assert.Empty(t, out.String())
	assert.Same(t, saved, channels.Out)
}

func TestInvoker_PanicRestoresChannels(t *testing.T) {
	inv, channels, out := newTestInvoker(t, Func(func(ctx context.Context, req Request) (*types.RawResult, error) {
		panic("engine bug")
	}), capture.Discard)

	assert.Panics(t, func() {
		_, _ = inv.Run(context.Background(), testConfig())
	})
	fmt.Fprint(channels.Out, "after")
	assert.Equal(t, "after", out.String())
}

func TestNewInvoker_Validation(t *testing.T) {
	noop := Func(func(context.Context, Request) (*types.RawResult, error) { return &types.RawResult{}, nil })

	_, err := NewInvoker(Config{})
	require.Error(t, err)

	_, err = NewInvoker(Config{Engine: noop, Mode: "loud", Log: log.New()})
	require.Error(t, err)

	inv, err := NewInvoker(Config{Engine: noop, Log: log.New()})
	require.NoError(t, err)
	assert.Equal(t, capture.Discard, inv.mode)
	assert.NotNil(t, inv.channels)

	_, err = inv.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestFailure_Error(t *testing.T) {
	assert.Equal(t, "engine config failure: bad key", ConfigFailure("bad key").Error())
	assert.True(t, IsFailure(fmt.Errorf("x: %w", RuntimeFailure("y"))))
	assert.False(t, IsFailure(nil))
}

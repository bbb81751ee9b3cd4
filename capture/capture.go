// Package capture scopes the harness's output channels around a body of
// work: while the body runs its output is discarded, buffered or passed
// through, and the channels are restored afterwards however the body exits.
//
// Capture scopes on one Channels value must not be nested or run
// concurrently; callers serialise them.
package capture

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/acarl005/stripansi"
)

// Mode selects what happens to output written inside a scope
type Mode string

const (
	// Discard drops all output
	Discard Mode = "discard"
	// Buffer keeps the tail of each stream and returns it in the Transcript
	Buffer Mode = "buffer"
	// Passthrough writes to the channels that were active before the scope
	Passthrough Mode = "passthrough"
)

// Modes lists the valid capture modes
var Modes = []Mode{Discard, Buffer, Passthrough}

func (m Mode) String() string {
	return string(m)
}

// ParseMode resolves a mode name, case-insensitively
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range Modes {
		if m == valid {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid capture mode %q (want one of %v)", s, Modes)
}

// Channels is the pair of default output channels. Components write to
// Out and Err rather than to the process streams.
type Channels struct {
	Out io.Writer
	Err io.Writer
}

// Std returns channels bound to the process's stdout and stderr
func Std() *Channels {
	return &Channels{Out: os.Stdout, Err: os.Stderr}
}

func (c *Channels) stdout() io.Writer {
	if c.Out == nil {
		return io.Discard
	}
	return c.Out
}

func (c *Channels) stderr() io.Writer {
	if c.Err == nil {
		return io.Discard
	}
	return c.Err
}

// Transcript is the output captured by a Buffer scope. Other modes return
// an empty transcript.
type Transcript struct {
	Stdout    []byte
	Stderr    []byte
	Truncated bool
}

// String renders the transcript for diagnostics
func (t *Transcript) String() string {
	if t == nil {
		return ""
	}
	var sb strings.Builder
	sb.Write(t.Stdout)
	if len(t.Stdout) > 0 && len(t.Stderr) > 0 && t.Stdout[len(t.Stdout)-1] != '\n' {
		sb.WriteByte('\n')
	}
	sb.Write(t.Stderr)
	return sb.String()
}

// Run executes body with c redirected according to mode. The body receives
// the active sinks, which are also installed in c for its duration. The
// previous channels are restored when body returns or panics; a panic is
// re-raised after restoration. The transcript is returned on both success
// and error.
func Run[T any](c *Channels, mode Mode, body func(out, errw io.Writer) (T, error)) (T, *Transcript, error) {
	return RunWithLimit(c, mode, DefaultTailBytes, body)
}

// RunWithLimit is Run with an explicit per-stream buffer limit
func RunWithLimit[T any](c *Channels, mode Mode, limit int, body func(out, errw io.Writer) (T, error)) (T, *Transcript, error) {
	var zero T

	saved := *c
	var out, errw io.Writer
	var outTail, errTail *Tail
	switch mode {
	case Discard:
		out, errw = io.Discard, io.Discard
	case Buffer:
		outTail, errTail = NewTail(limit), NewTail(limit)
		out, errw = outTail, errTail
	case Passthrough:
		out, errw = saved.stdout(), saved.stderr()
	default:
		return zero, &Transcript{}, fmt.Errorf("invalid capture mode %q", mode)
	}

	c.Out, c.Err = out, errw
	defer func() {
		*c = saved
	}()

	v, err := body(out, errw)

	transcript := &Transcript{}
	if mode == Buffer {
		transcript.Stdout = clean(outTail.Bytes())
		transcript.Stderr = clean(errTail.Bytes())
		transcript.Truncated = outTail.Truncated() || errTail.Truncated()
	}
	return v, transcript, err
}

func clean(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return []byte(stripansi.Strip(string(b)))
}

package capture

import (
	"sync"

	"github.com/acarl005/stripansi"
)

// DefaultTailBytes is how much of each stream a capture scope keeps
const DefaultTailBytes = 1024 * 1024

// Tail keeps only the last N bytes written to it, so a chatty engine run
// cannot grow the transcript without bound
type Tail struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

// NewTail returns a tail of maxBytes; non-positive means DefaultTailBytes
func NewTail(maxBytes int) *Tail {
	if maxBytes <= 0 {
		maxBytes = DefaultTailBytes
	}
	return &Tail{maxBytes: maxBytes}
}

func (b *Tail) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	if len(p) >= b.maxBytes {
		b.contents = append(b.contents[:0], p[len(p)-b.maxBytes:]...)
		return len(p), nil
	}

	// Append then trim front to keep the most recent bytes
	b.contents = append(b.contents, p...)
	if over := len(b.contents) - b.maxBytes; over > 0 {
		b.contents = append(b.contents[:0], b.contents[over:]...)
	}
	return len(p), nil
}

// Bytes returns a copy of the retained bytes
func (b *Tail) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(b.contents))
	copy(cp, b.contents)
	return cp
}

// String returns the retained bytes with ANSI escapes removed
func (b *Tail) String() string {
	return stripansi.Strip(string(b.Bytes()))
}

func (b *Tail) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Truncated reports whether bytes were dropped from the front
func (b *Tail) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}

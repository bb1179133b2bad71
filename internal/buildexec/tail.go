package buildexec

import (
	"strings"
	"sync"
)

// tailBuffer keeps the last n lines written to it. stdout and stderr are
// copied by separate goroutines, so writes are serialized.
type tailBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial strings.Builder
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{max: n}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rest := string(p)
	for {
		idx := strings.IndexByte(rest, '\n')
		if idx < 0 {
			b.partial.WriteString(rest)
			break
		}
		b.partial.WriteString(rest[:idx])
		b.push(strings.TrimSuffix(b.partial.String(), "\r"))
		b.partial.Reset()
		rest = rest[idx+1:]
	}
	return len(p), nil
}

func (b *tailBuffer) push(line string) {
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
}

// String returns the retained lines, including an unterminated last line.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.lines
	if b.partial.Len() > 0 {
		lines = append(lines[:len(lines):len(lines)], b.partial.String())
		if len(lines) > b.max {
			lines = lines[len(lines)-b.max:]
		}
	}
	return strings.Join(lines, "\n")
}

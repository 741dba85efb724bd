package encoder

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const stderrTailBytes = 8 << 10

var durationPattern = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// tailBuffer keeps the last stderrTailBytes of the encoder's diagnostic
// output and picks the input duration out of it on the way through.
type tailBuffer struct {
	mu       sync.Mutex
	buf      []byte
	duration time.Duration
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if b.duration == 0 {
		b.duration = parseDuration(b.buf)
	}
	if over := len(b.buf) - stderrTailBytes; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration
}

// Tail returns the last n non-empty lines.
func (b *tailBuffer) Tail(n int) string {
	b.mu.Lock()
	text := string(b.buf)
	b.mu.Unlock()

	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func parseDuration(b []byte) time.Duration {
	m := durationPattern.FindSubmatch(b)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(string(m[1]))
	mins, _ := strconv.Atoi(string(m[2]))
	sec, _ := strconv.ParseFloat(string(m[3]), 64)
	return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(sec*float64(time.Second))
}

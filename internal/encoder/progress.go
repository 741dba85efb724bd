package encoder

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Progress is one sample of the encoder's -progress output.
type Progress struct {
	Fraction float64
	OutTime  time.Duration
	Frame    int64
	FPS      float64
	Speed    float64
	End      bool
}

// ParseProgress reads ffmpeg's key=value progress stream from r and calls
// emit once per block. duration is consulted on every block because the input
// duration may only become known from stderr after the stream starts.
// Fraction stays at zero while the duration is unknown.
func ParseProgress(r io.Reader, duration func() time.Duration, emit func(Progress)) error {
	var cur Progress
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.Frame = n
			}
		case "fps":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				cur.FPS = f
			}
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				cur.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				cur.Speed = f
			}
		case "progress":
			cur.End = value == "end"
			cur.Fraction = fraction(cur.OutTime, duration())
			if cur.End {
				cur.Fraction = 1
			}
			emit(cur)
		}
	}
	return scanner.Err()
}

func fraction(out, total time.Duration) float64 {
	if total <= 0 || out <= 0 {
		return 0
	}
	f := float64(out) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}

package encoder

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Prober reads the container duration of a source before encoding so
// progress can be reported as a fraction from the first sample.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

type FFprobe struct {
	path string
}

func NewFFprobe(path string) *FFprobe {
	return &FFprobe{path: path}
}

func (p *FFprobe) Duration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.path, "-v", "error", "-show_entries",
		"format=duration", "-of", "csv=p=0", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, errors.Wrapf(err, "ffprobe duration: %s", strings.TrimSpace(string(output)))
	}
	return parseProbeDuration(string(output))
}

func parseProbeDuration(output string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return 0, errors.Wrap(err, "invalid duration")
	}
	if seconds < 0 {
		return 0, errors.Errorf("invalid duration %f", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

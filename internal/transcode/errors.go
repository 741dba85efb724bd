package transcode

import (
	"errors"
	"fmt"
)

var (
	ErrSpawnFailure      = errors.New("encoder could not be started")
	ErrProcessFailure    = errors.New("encoder exited with failure")
	ErrDuplicateArtifact = errors.New("media version already exists")
	ErrNotFound          = errors.New("cannot find job")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrInvalidLabel      = errors.New("invalid version label")
	ErrPathOutsideMedia  = errors.New("output path outside media directory")
)

// SpawnError is returned by Initiate when the encoder could not be started.
// No job is registered in that case.
type SpawnError struct {
	OutputPath string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn encoder for %s: %v", e.OutputPath, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawnFailure, e.Err}
}

// ProcessError records a non-zero encoder exit on a failed job.
type ProcessError struct {
	Code   int
	Stderr string
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("encoder exited with code %d", e.Code)
	}
	return fmt.Sprintf("encoder exited with code %d: %s", e.Code, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return ErrProcessFailure
}

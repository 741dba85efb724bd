package transcode

import (
	"path/filepath"
	"strings"
)

type selectorKind int

const (
	selectSession selectorKind = iota
	selectMedia
	selectPathPrefix
	selectAll
)

// Selector picks jobs for bulk cancellation.
type Selector struct {
	kind  selectorKind
	value string
}

func BySession(sessionID string) Selector {
	return Selector{kind: selectSession, value: sessionID}
}

func ByMedia(mediaID string) Selector {
	return Selector{kind: selectMedia, value: mediaID}
}

// ByPathPrefix matches jobs whose output is the given path or lies below it.
func ByPathPrefix(prefix string) Selector {
	if prefix != "" {
		prefix = filepath.Clean(prefix)
	}
	return Selector{kind: selectPathPrefix, value: prefix}
}

func All() Selector {
	return Selector{kind: selectAll}
}

func (s Selector) Match(j *Job) bool {
	switch s.kind {
	case selectSession:
		return j.SessionID == s.value
	case selectMedia:
		return s.value != "" && j.MediaID == s.value
	case selectPathPrefix:
		return underPath(j.OutputPath, s.value)
	case selectAll:
		return true
	}
	return false
}

func (s Selector) String() string {
	switch s.kind {
	case selectSession:
		return "session=" + s.value
	case selectMedia:
		return "media=" + s.value
	case selectPathPrefix:
		return "prefix=" + s.value
	}
	return "all"
}

func underPath(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

package transcode

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	versionSeparator = " - "
	outputExt        = ".mp4"
	labelSafePunct   = " ._()[]+,-"
)

// SanitizeLabel reduces a caller supplied version label to a safe filename
// fragment. Each run of characters outside letters, digits and
// labelSafePunct becomes a single underscore; leading and trailing dots,
// underscores and spaces are trimmed.
func SanitizeLabel(label string) (string, error) {
	var b strings.Builder
	replaced := false
	for _, r := range label {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(labelSafePunct, r) {
			b.WriteRune(r)
			replaced = false
			continue
		}
		if !replaced {
			b.WriteRune('_')
			replaced = true
		}
	}
	clean := strings.Trim(b.String(), "._ ")
	if clean == "" {
		return "", fmt.Errorf("%q: %w", label, ErrInvalidLabel)
	}
	return clean, nil
}

// ConversionPath names a kept version next to its source:
// "<dir>/<stem> - <label>.mp4". The label is appended to the whole stem, so a
// stem that already contains " - " is never split.
func ConversionPath(sourcePath, label string) (string, error) {
	if !filepath.IsAbs(sourcePath) {
		return "", fmt.Errorf("source %q is not absolute: %w", sourcePath, ErrPathOutsideMedia)
	}
	clean, err := SanitizeLabel(label)
	if err != nil {
		return "", err
	}

	source := filepath.Clean(sourcePath)
	dir := filepath.Dir(source)
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := stem + versionSeparator + clean + outputExt

	out := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, out)
	if err != nil || rel != name || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("%q: %w", out, ErrPathOutsideMedia)
	}
	return out, nil
}

// ResolveSource follows symlinks in sourcePath and returns the resolved path
// if it lies strictly under one of roots. Roots are resolved the same way.
func ResolveSource(sourcePath string, roots []string) (string, error) {
	if !filepath.IsAbs(sourcePath) {
		return "", fmt.Errorf("source %q is not absolute: %w", sourcePath, ErrPathOutsideMedia)
	}
	resolved, err := filepath.EvalSymlinks(sourcePath)
	if err != nil {
		return "", fmt.Errorf("resolve source %q: %w", sourcePath, err)
	}
	for _, root := range roots {
		if !filepath.IsAbs(root) {
			continue
		}
		r, err := filepath.EvalSymlinks(root)
		if err != nil {
			continue
		}
		if within(r, resolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("source %q: %w", sourcePath, ErrPathOutsideMedia)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// DownloadPath is the transient output for a download encode. Identical
// source and arguments give the same path so concurrent requests join.
func DownloadPath(dir, sourcePath string, args []string) string {
	h := sha1.New()
	h.Write([]byte(sourcePath))
	for _, a := range args {
		h.Write([]byte{0})
		h.Write([]byte(a))
	}
	return filepath.Join(dir, hex.EncodeToString(h.Sum(nil))+outputExt)
}

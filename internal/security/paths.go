// Package security keeps names taken from requests and log files inside the
// directories they are meant to address.
package security

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kartbox/telemetry/internal/errs"
)

// ErrPathEscape is returned when a name resolves outside its base directory.
const ErrPathEscape = errs.Error("path escapes base directory")

// canonical resolves symlinks in abs. When abs does not exist yet the deepest
// existing ancestor is resolved instead, so /base/link/new.csv with
// link -> /etc still resolves under /etc.
func canonical(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	for check := abs; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return abs
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, abs)
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}

// ResolveWithin joins the slash-separated name onto root and returns the
// joined path if it still lies inside root once symlinks are followed. root
// must exist.
func ResolveWithin(root, name string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory symlinks: %w", err)
	}

	target := filepath.Join(absRoot, filepath.FromSlash(name))
	rel, err := filepath.Rel(canonRoot, canonical(target))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	return target, nil
}

// SafeName makes a single path component from an arbitrary identifier such
// as a session id. Characters other than ASCII letters, digits, dot,
// underscore and dash become one underscore per run, and the result is at
// most 128 bytes.
func SafeName(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// Package storage manages the lifecycle of downloaded files inside a single
// managed directory: authorizing reads, deleting after serving, and expiring
// files by age.
package storage

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Rejection reasons surfaced by Authorize. Callers map these to HTTP statuses
// without echoing the requested filename back to the client.
var (
	ErrTraversal      = errors.New("path escapes storage directory")
	ErrDisallowedType = errors.New("file type not permitted")
	ErrNotFound       = errors.New("file not found")
)

// Guard validates caller-supplied filenames against the storage directory
// before permitting a read.
type Guard struct {
	dir     string
	allowed func(ext string) bool
}

// NewGuard returns a guard rooted at dir. allowed decides whether a file
// extension (lowercased, with leading dot) may be served.
func NewGuard(dir string, allowed func(ext string) bool) *Guard {
	return &Guard{dir: dir, allowed: allowed}
}

// Authorize resolves name inside the storage directory and returns the
// absolute path if every check passes: no traversal, allow-listed extension,
// and an existing regular file. The returned error is one of ErrTraversal,
// ErrDisallowedType or ErrNotFound.
func (g *Guard) Authorize(name string) (string, error) {
	if hasTraversal(name) {
		return "", ErrTraversal
	}

	clean := filepath.Clean(name)
	if clean != filepath.Base(clean) || clean == "." || clean == string(filepath.Separator) {
		// Generated filenames are flat; any remaining separator or dot
		// segment is an escape attempt.
		return "", ErrTraversal
	}

	if !g.allowed(filepath.Ext(clean)) {
		return "", ErrDisallowedType
	}

	resolved, err := g.confine(clean)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return resolved, nil
}

// confine joins name to the storage root and verifies that the resolved path,
// symlinks included, is still a descendant of the resolved root.
func (g *Guard) confine(name string) (string, error) {
	absRoot, err := filepath.Abs(g.dir)
	if err != nil {
		return "", ErrTraversal
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		realRoot = absRoot
	}

	fullPath := filepath.Join(realRoot, name)
	realPath, err := filepath.EvalSymlinks(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		// Fail closed on unresolvable paths.
		return "", ErrTraversal
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrTraversal
	}
	return realPath, nil
}

// hasTraversal screens the raw input for traversal sequences before any
// filesystem access: parent references, absolute paths, backslashes, NUL
// bytes, and percent-encoded variants surviving in the decoded form.
func hasTraversal(name string) bool {
	if name == "" {
		return true
	}
	if strings.Contains(name, "\\") || strings.ContainsRune(name, 0) {
		return true
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return true
	}

	decoded := name
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		}
		if decoded == prev {
			break
		}
	}
	if strings.ContainsRune(decoded, 0) || strings.Contains(decoded, "\\") || strings.HasPrefix(decoded, "/") {
		return true
	}

	// Only a whole ".." segment is a parent reference. Generated names may
	// legitimately contain consecutive dots ("Episode..1-abc.mp4").
	normalized := norm.NFC.String(decoded)
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

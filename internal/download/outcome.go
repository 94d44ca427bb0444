// Package download orchestrates the external media fetch tool: command
// resolution, bounded execution, output-path validation, and diagnostic
// sanitization. The tool is treated as an untrusted collaborator; nothing it
// prints is served or surfaced without validation.
package download

import "fmt"

// Kind categorizes invocation failures. Each kind maps to exactly one HTTP
// status at the API boundary.
type Kind int

const (
	// KindUnavailable means the external tool could not be located or
	// launched at all.
	KindUnavailable Kind = iota
	// KindFailed means the tool ran and exited non-zero.
	KindFailed
	// KindTimeout means the tool exceeded its wall-clock budget and the
	// process group was killed.
	KindTimeout
	// KindInternal means the tool reported success but the output file
	// could not be located inside the storage directory. This is a
	// contract violation by the tool, not a user error.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindFailed:
		return "failed"
	case KindTimeout:
		return "timeout"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a categorized invocation failure. Detail is already sanitized and
// safe to return to an untrusted caller.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s: %s", e.Kind, e.Detail)
}

// Result is a successful download outcome. Filename is the bare name inside
// the storage directory, never an absolute path.
type Result struct {
	Message  string
	Filename string
}

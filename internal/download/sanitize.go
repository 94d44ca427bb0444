package download

import (
	"regexp"
	"strings"
)

// pathPattern matches filesystem-path-like substrings: absolute POSIX paths
// and Windows drive-letter paths. Tool diagnostics routinely embed full local
// paths; those must never reach a caller verbatim.
var pathPattern = regexp.MustCompile(`([A-Za-z]:\\|/)[^\s"']+`)

const redactionToken = "<redacted>"

// Sanitize reduces raw diagnostic text to a short excerpt safe for an
// untrusted caller: at most the last two non-empty lines, joined with " | ",
// with path-like substrings redacted.
func Sanitize(raw string) string {
	var lines []string
	for _, ln := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(ln); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return "Unknown error."
	}
	if len(lines) > 2 {
		lines = lines[len(lines)-2:]
	}
	return pathPattern.ReplaceAllString(strings.Join(lines, " | "), redactionToken)
}

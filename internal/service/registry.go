// Package service classifies media URLs by source platform. The classification
// is a label only; it does not change how the external tool is invoked.
package service

import "regexp"

// Extension is a named platform whose URLs match a compiled pattern.
type Extension struct {
	Name    string
	Pattern *regexp.Regexp
}

// Matches reports whether the extension's pattern matches anywhere in url.
func (e Extension) Matches(url string) bool {
	return e.Pattern.MatchString(url)
}

// Registry maps a URL to the first matching Extension. Registration order is
// significant; the registry is populated once at startup and read-only
// afterwards.
type Registry struct {
	extensions []Extension
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an extension to the ordered list.
func (r *Registry) Register(ext Extension) {
	r.extensions = append(r.extensions, ext)
}

// Resolve returns the first registered extension matching url, or false if no
// rule matches.
func (r *Registry) Resolve(url string) (Extension, bool) {
	for _, ext := range r.extensions {
		if ext.Matches(url) {
			return ext, true
		}
	}
	return Extension{}, false
}

// Default returns the registry with the built-in platform rules. The trailing
// catch-all resolves any syntactically valid HTTP(S) URL to "Generic", so a
// miss is effectively reserved for non-HTTP input.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Extension{Name: "YouTube", Pattern: regexp.MustCompile(`(?i)(youtube\.com|youtu\.be)`)})
	r.Register(Extension{Name: "Instagram", Pattern: regexp.MustCompile(`(?i)instagram\.com`)})
	r.Register(Extension{Name: "Facebook", Pattern: regexp.MustCompile(`(?i)facebook\.com|fb\.watch`)})
	r.Register(Extension{Name: "TikTok", Pattern: regexp.MustCompile(`(?i)tiktok\.com`)})
	r.Register(Extension{Name: "Generic", Pattern: regexp.MustCompile(`(?i)https?://`)})
	return r
}

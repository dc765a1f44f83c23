package relay

import (
	"sort"
	"strings"
)

// Whitelist is an immutable set of control paths allowed through the relay.
// The zero value allows every path.
type Whitelist struct {
	paths map[string]struct{}
}

// NewWhitelist builds a whitelist. Entries are trimmed and blanks are dropped.
func NewWhitelist(paths ...string) Whitelist {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return Whitelist{paths: set}
}

// Allows reports whether a control path may be forwarded.
// Matching is exact: "/a/b" does not match an entry "/a".
func (w Whitelist) Allows(path string) bool {
	if len(w.paths) == 0 {
		return true
	}
	_, ok := w.paths[path]
	return ok
}

// Len returns the number of whitelisted paths
func (w Whitelist) Len() int {
	return len(w.paths)
}

// Paths returns the whitelisted paths in sorted order
func (w Whitelist) Paths() []string {
	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// ExpandPatterns rewrites bare names so that they match at any depth:
// "node_modules" becomes "**/node_modules" and "**/node_modules/**".
// Patterns containing '*', '/' or '.' are kept as they are.
func ExpandPatterns(patterns []string) []string {
	expanded := make([]string, 0, len(patterns)*2)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.ContainsAny(p, "*/."):
			expanded = append(expanded, p)
		default:
			expanded = append(expanded, "**/"+p, "**/"+p+"/**")
		}
	}
	return expanded
}

type compiled struct {
	pattern  string
	g        glob.Glob
	absolute bool
	baseOnly bool
	anyDepth bool
}

// Exclusion is a compiled set of exclude patterns for one scan root.
type Exclusion struct {
	root     string
	patterns []string
	globs    []compiled
}

// CompileExclude expands and compiles patterns. Absolute patterns are
// matched against absolute paths; all others against the slash-separated
// path relative to root. A pattern without a slash also matches the base
// name, so "*.log" excludes log files anywhere.
func CompileExclude(root string, patterns []string) (*Exclusion, error) {
	x := &Exclusion{root: filepath.Clean(root), patterns: patterns}
	for _, p := range ExpandPatterns(patterns) {
		norm := filepath.ToSlash(strings.TrimSuffix(p, "/"))
		if norm == "" {
			continue
		}
		g, err := glob.Compile(norm, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
		}
		x.globs = append(x.globs, compiled{
			pattern:  p,
			g:        g,
			absolute: strings.HasPrefix(norm, "/"),
			baseOnly: !strings.Contains(norm, "/"),
			anyDepth: strings.HasPrefix(norm, "**/"),
		})
	}
	return x, nil
}

// Match reports whether path is excluded. It has the signature of
// walk.ExcludeFunc.
func (x *Exclusion) Match(path string, _ bool) bool {
	if x == nil || len(x.globs) == 0 {
		return false
	}
	abs := filepath.ToSlash(path)
	rel := abs
	if r, err := filepath.Rel(x.root, path); err == nil {
		rel = filepath.ToSlash(r)
	}
	base := filepath.Base(path)

	for _, c := range x.globs {
		switch {
		case c.absolute:
			if c.g.Match(abs) {
				return true
			}
		case c.baseOnly:
			if c.g.Match(base) || c.g.Match(rel) {
				return true
			}
		case c.anyDepth:
			// "**/" also matches zero leading directories.
			if c.g.Match(rel) || c.g.Match("/"+rel) {
				return true
			}
		default:
			if c.g.Match(rel) {
				return true
			}
		}
	}
	return false
}

// Patterns returns the patterns as given, before expansion.
func (x *Exclusion) Patterns() []string {
	return x.patterns
}

// Key identifies the pattern set. Scans with different keys never share
// cached results.
func (x *Exclusion) Key() string {
	if x == nil {
		return ""
	}
	return strings.Join(x.patterns, "\x00")
}

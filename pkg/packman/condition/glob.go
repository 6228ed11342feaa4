package condition

import (
	"strings"

	"github.com/gobwas/glob"
)

// Glob matches slash-separated paths relative to a package. "*" stays
// within one segment, and a "**/" segment spans zero or more directories,
// so "**/GameData" also matches a top-level GameData.
type Glob struct {
	variants []glob.Glob
}

// CompileGlob compiles pattern. Trailing slashes are ignored.
func CompileGlob(pattern string) (*Glob, error) {
	pattern = strings.TrimSuffix(pattern, "/")
	g := &Glob{}
	for _, p := range expandRecursive(pattern) {
		compiled, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		g.variants = append(g.variants, compiled)
	}
	return g, nil
}

// Match reports whether path matches.
func (g *Glob) Match(path string) bool {
	for _, v := range g.variants {
		if v.Match(path) {
			return true
		}
	}
	return false
}

// expandRecursive returns pattern once with each "**/" segment kept and
// once with it dropped. gobwas requires "**/" to consume a separator.
func expandRecursive(pattern string) []string {
	for from := 0; ; {
		i := strings.Index(pattern[from:], "**/")
		if i == -1 {
			return []string{pattern}
		}
		idx := from + i
		if idx > 0 && pattern[idx-1] != '/' {
			from = idx + 3
			continue
		}
		head, tail := pattern[:idx], pattern[idx+3:]
		var out []string
		for _, rest := range expandRecursive(tail) {
			out = append(out, head+"**/"+rest, head+rest)
		}
		return out
	}
}

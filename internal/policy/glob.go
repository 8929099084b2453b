package policy

import (
	"regexp"
	"strings"
)

type glob struct {
	pattern string
	re      *regexp.Regexp
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func compileGlob(pattern string) glob {
	parts := strings.Split(strings.ToLower(normalizePath(pattern)), "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return glob{pattern: pattern, re: regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")}
}

func compileGlobs(patterns []string) []glob {
	out := make([]glob, 0, len(patterns))
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		out = append(out, compileGlob(pattern))
	}
	return out
}

// MatchGlob matches a path against a protected-path glob. Separators are
// unified to "/", matching is case-insensitive and "*" spans any run of
// characters including separators.
func MatchGlob(path, pattern string) bool {
	return compileGlob(pattern).match(path)
}

func (g glob) match(path string) bool {
	return g.re.MatchString(strings.ToLower(normalizePath(path)))
}

func anyGlob(refs []string, globs []glob) bool {
	for _, ref := range refs {
		for _, g := range globs {
			if g.match(ref) {
				return true
			}
		}
	}
	return false
}

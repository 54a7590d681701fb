package resolve

import (
	"regexp"

	"github.com/gobwas/glob"

	"github.com/pathwatch/pathwatch/internal/errors"
)

// Filter is an exclusion predicate: it returns true when path must be
// excluded from watching.
type Filter func(path string) bool

// NoExclude excludes nothing.
func NoExclude(string) bool { return false }

// NewGlobFilter builds a filter from glob patterns matched against the
// full path, with '/' as the separator so '*' never crosses a path
// boundary ('**' does).
func NewGlobFilter(patterns []string) (Filter, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.InvalidArgumentf("bad exclude pattern %q: %v", p, err)
		}
		matchers = append(matchers, g)
	}

	return func(path string) bool {
		for _, g := range matchers {
			if g.Match(path) {
				return true
			}
		}
		return false
	}, nil
}

// NewRegexpFilter builds a filter from regular expressions matched against
// the full path.
func NewRegexpFilter(patterns []string) (Filter, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.InvalidArgumentf("bad exclude regexp %q: %v", p, err)
		}
		res = append(res, re)
	}

	return func(path string) bool {
		for _, re := range res {
			if re.MatchString(path) {
				return true
			}
		}
		return false
	}, nil
}

// Any combines filters; a path is excluded if any filter excludes it.
func Any(filters ...Filter) Filter {
	return func(path string) bool {
		for _, f := range filters {
			if f != nil && f(path) {
				return true
			}
		}
		return false
	}
}

// Package pattern matches cell identities, metric names and string values
// against the patterns written in rule documents.
//
// A pattern written as /expr/flags is always a regular expression (flags:
// i, m, s; g is accepted and ignored). Any other pattern is a regular
// expression anchored on both ends when regex matching is enabled, and a
// literal otherwise.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/vanderheijden86/flowstate/pkg/debug"
)

// ErrInvalidPattern is returned by Compile and Validate for a bad expression.
var ErrInvalidPattern = errors.New("invalid pattern")

var cache sync.Map // string -> *regexp.Regexp

// IsDelimited reports whether p uses the /expr/flags form.
func IsDelimited(p string) bool {
	if len(p) < 2 || p[0] != '/' {
		return false
	}
	return strings.LastIndexByte(p, '/') > 0
}

// Compile returns the regular expression for p. Results are cached.
func Compile(p string) (*regexp.Regexp, error) {
	if re, ok := cache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	expr := "^(?:" + p + ")$"
	if IsDelimited(p) {
		end := strings.LastIndexByte(p, '/')
		body, flags := p[1:end], p[end+1:]
		var goFlags strings.Builder
		for _, f := range flags {
			switch f {
			case 'i', 'm', 's':
				goFlags.WriteRune(f)
			case 'g', 'u', 'y':
			default:
				return nil, fmt.Errorf("%w: %q: unknown flag %q", ErrInvalidPattern, p, f)
			}
		}
		expr = body
		if goFlags.Len() > 0 {
			expr = "(?" + goFlags.String() + ")" + body
		}
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
	}
	cache.Store(p, re)
	return re, nil
}

// Validate checks that p compiles when it will be used as an expression.
func Validate(p string, regex bool) error {
	if !regex && !IsDelimited(p) {
		return nil
	}
	_, err := Compile(p)
	return err
}

// Match reports whether value matches p. An empty pattern never matches
// and identical strings always do. An empty value only matches an
// expression that accepts it, such as /^$/ or /.*/.
func Match(value, p string, regex bool) bool {
	if p == "" {
		return false
	}
	if value == p {
		return true
	}
	if !regex && !IsDelimited(p) {
		return false
	}
	re, err := Compile(p)
	if err != nil {
		debug.Log("pattern: %v", err)
		return false
	}
	return re.MatchString(value)
}

// MatchAny reports whether any of values matches p. Empty values are
// skipped: an unlabeled cell has no identity by label.
func MatchAny(values []string, p string, regex bool) bool {
	for _, v := range values {
		if v != "" && Match(v, p, regex) {
			return true
		}
	}
	return false
}

// Replace substitutes every match of p in s with repl. Without regex the
// pattern is replaced literally.
func Replace(s, p, repl string, regex bool) string {
	if p == "" {
		return s
	}
	if !regex && !IsDelimited(p) {
		return strings.ReplaceAll(s, p, repl)
	}
	var re *regexp.Regexp
	var err error
	if IsDelimited(p) {
		re, err = Compile(p)
	} else {
		// unanchored: the anchored form would only ever replace the whole string
		re, err = regexp.Compile(p)
	}
	if err != nil {
		debug.Log("pattern: %v", err)
		return s
	}
	return re.ReplaceAllLiteralString(s, repl)
}

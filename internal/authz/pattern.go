// Tenantguard - Multi-Tenant Authorization Decision Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tenantguard

package authz

import (
	"regexp"
	"strings"
	"sync"
)

// patternCache holds compiled Ant patterns. Rules are re-read on every
// request, so each distinct pattern is compiled once per process.
type patternCache struct {
	compiled sync.Map // pattern string -> *regexp.Regexp
}

// compileAntPattern translates an Ant-style path pattern into an anchored
// regular expression: "**" matches anything, "*" matches within one path
// segment, everything else is literal.
func compileAntPattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.Grow(len(pattern) + 8)
	b.WriteByte('^')

	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			b.WriteString("[^/]*")
			i++
		default:
			next := strings.IndexByte(pattern[i:], '*')
			if next < 0 {
				next = len(pattern) - i
			}
			b.WriteString(regexp.QuoteMeta(pattern[i : i+next]))
			i += next
		}
	}

	b.WriteByte('$')
	return regexp.Compile(b.String())
}

func (c *patternCache) get(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.compiled.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := compileAntPattern(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := c.compiled.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// matches reports whether path matches pattern. An exact string match
// always succeeds, even for patterns that fail to compile.
func (c *patternCache) matches(pattern, path string) bool {
	if pattern == path {
		return true
	}
	re, err := c.get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

// Package route compiles route patterns such as "/users/:id" into matchers
// bound to one filesystem operation.
package route

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/types"
)

const defaultSegment = `[^/]+?`

// Key describes one parameter declared by a route.
type Key struct {
	Name     string
	Prefix   string
	Pattern  string
	Optional bool
	Repeat   bool

	group string
}

// Matcher matches paths against a compiled route for a single operation.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	route string
	op    types.Operation
	re    *regexp.Regexp
	keys  []Key
}

// token is either a literal run or a parameter.
type token struct {
	literal string
	param   *Key
}

// Compile compiles route for op. Invalid route syntax is reported here so
// that registration fails before any request is served.
func Compile(route string, op types.Operation) (*Matcher, error) {
	if !op.Valid() {
		return nil, invalid(route, fmt.Sprintf("unknown operation %q", op))
	}

	tokens, err := parse(route)
	if err != nil {
		return nil, err
	}

	source, keys := build(tokens)
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, invalid(route, "pattern does not compile").WithCause(err)
	}

	return &Matcher{
		route: route,
		op:    op,
		re:    re,
		keys:  keys,
	}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(route string, op types.Operation) *Matcher {
	m, err := Compile(route, op)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports the parameters captured from path. It never matches an
// operation other than the one the route was compiled for, and the whole
// path must match.
func (m *Matcher) Match(path string, op types.Operation) (types.Params, bool) {
	if op != m.op {
		return nil, false
	}

	idx := m.re.FindStringSubmatchIndex(path)
	if idx == nil {
		return nil, false
	}

	params := make(types.Params, len(m.keys))
	for _, key := range m.keys {
		g := m.re.SubexpIndex(key.group)
		if g < 0 || idx[2*g] < 0 {
			continue
		}
		params[key.Name] = path[idx[2*g]:idx[2*g+1]]
	}
	return params, true
}

// Route returns the pattern the matcher was compiled from.
func (m *Matcher) Route() string { return m.route }

// Operation returns the operation the matcher accepts.
func (m *Matcher) Operation() types.Operation { return m.op }

// Keys returns the declared parameters in declaration order.
func (m *Matcher) Keys() []Key {
	keys := make([]Key, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// String returns the expression the route compiled to.
func (m *Matcher) String() string { return m.re.String() }

func parse(route string) ([]token, error) {
	var (
		tokens  []token
		lit     strings.Builder
		escaped bool // last literal byte came from an escape
		index   int
		seen    = make(map[string]bool)
	)

	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{literal: lit.String()})
			lit.Reset()
		}
		escaped = false
	}

	for i := 0; i < len(route); {
		c := route[i]

		if c == '\\' {
			if i+1 >= len(route) {
				return nil, invalid(route, "trailing escape character")
			}
			lit.WriteByte(route[i+1])
			escaped = true
			i += 2
			continue
		}

		if c != ':' && c != '(' && c != '*' {
			lit.WriteByte(c)
			escaped = false
			i++
			continue
		}

		key := &Key{Pattern: defaultSegment}

		// A delimiter right before the parameter belongs to it, so an
		// optional parameter makes the delimiter optional too.
		if s := lit.String(); !escaped && s != "" && (s[len(s)-1] == '/' || s[len(s)-1] == '.') {
			key.Prefix = s[len(s)-1:]
			lit.Reset()
			lit.WriteString(s[:len(s)-1])
		}
		flush()

		switch c {
		case ':':
			j := i + 1
			for j < len(route) && isNameByte(route[j]) {
				j++
			}
			if j == i+1 {
				return nil, invalid(route, fmt.Sprintf("missing parameter name at offset %d", i))
			}
			key.Name = route[i+1 : j]
			i = j
			if i < len(route) && route[i] == '(' {
				pattern, next, err := group(route, i)
				if err != nil {
					return nil, err
				}
				key.Pattern = pattern
				i = next
			}
		case '(':
			pattern, next, err := group(route, i)
			if err != nil {
				return nil, err
			}
			key.Name = strconv.Itoa(index)
			index++
			key.Pattern = pattern
			i = next
		case '*':
			key.Name = strconv.Itoa(index)
			index++
			key.Pattern = ".*"
			i++
		}

		if c != '*' && i < len(route) {
			switch route[i] {
			case '?':
				key.Optional = true
				i++
			case '*':
				key.Optional = true
				key.Repeat = true
				i++
			case '+':
				key.Repeat = true
				i++
			}
		}

		if seen[key.Name] {
			return nil, invalid(route, fmt.Sprintf("duplicate parameter name %q", key.Name))
		}
		seen[key.Name] = true
		key.group = "p" + strconv.Itoa(len(seen)-1)
		tokens = append(tokens, token{param: key})
	}
	flush()

	return tokens, nil
}

// group reads a balanced parenthesised pattern starting at route[start].
func group(route string, start int) (string, int, error) {
	depth := 0
	for i := start; i < len(route); i++ {
		switch route[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				pattern := route[start+1 : i]
				if pattern == "" {
					return "", 0, invalid(route, fmt.Sprintf("empty group at offset %d", start))
				}
				return pattern, i + 1, nil
			}
		}
	}
	return "", 0, invalid(route, fmt.Sprintf("unbalanced parenthesis at offset %d", start))
}

func build(tokens []token) (string, []Key) {
	var (
		b    strings.Builder
		keys []Key
	)
	b.WriteString("(?i)^")

	// Non-strict matching: a trailing delimiter is always optional.
	if n := len(tokens); n > 0 && tokens[n-1].param == nil {
		tokens[n-1].literal = strings.TrimSuffix(tokens[n-1].literal, "/")
	}

	for _, tok := range tokens {
		if tok.param == nil {
			b.WriteString(regexp.QuoteMeta(tok.literal))
			continue
		}

		key := *tok.param
		keys = append(keys, key)

		prefix := regexp.QuoteMeta(key.Prefix)
		capture := key.Pattern
		if key.Repeat {
			capture = fmt.Sprintf("(?:%s)(?:%s(?:%s))*", capture, prefix, capture)
		}
		capture = fmt.Sprintf("(?P<%s>%s)", key.group, capture)

		switch {
		case key.Optional && prefix != "":
			b.WriteString("(?:" + prefix + capture + ")?")
		case key.Optional:
			b.WriteString(capture + "?")
		default:
			b.WriteString(prefix + capture)
		}
	}

	b.WriteString("/?$")
	return b.String(), keys
}

func isNameByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func invalid(route, reason string) *errors.Error {
	return errors.NewError(errors.ErrCodeRouteInvalid, reason).
		WithComponent("route").
		WithContext("route", route)
}

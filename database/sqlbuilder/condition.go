package sqlbuilder

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dropbox/sqlfluent/errors"
)

// Grammar of free-form conditions:
//
//	condition  := comparison ( ws ("AND" | "OR") ws comparison )*
//	comparison := field ws? op ws? value
//	op         := "<=" | ">=" | "<>" | "!=" | "<" | ">" | "="
//	value      := quoted-string | number | "true" | "false"
//
// Connectives and operators inside quotes or parentheses are ignored.

var (
	comparisonOperators = map[string]bool{
		"<=": true,
		">=": true,
		"<>": true,
		"!=": true,
		"<":  true,
		">":  true,
		"=":  true,
	}

	numberLiteral = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// A single comparison produced by parseCondition.  field carries the
// operator, e.g. "diameter <".
type atom struct {
	field string
	value interface{}
	or    bool
}

func parseCondition(s string) ([]atom, error) {
	parts, ors, err := splitConnectives(s)
	if err != nil {
		return nil, err
	}

	atoms := make([]atom, 0, len(parts))
	for i, part := range parts {
		left, op, right, found, err := splitComparison(part)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.Parsef(
				"Condition %q has no comparison operator", part)
		}
		if left == "" || right == "" {
			return nil, errors.Parsef("Incomplete comparison %q", part)
		}
		value, err := parseLiteral(right)
		if err != nil {
			return nil, errors.Wrapf(err, "Cannot parse condition %q", part)
		}
		atoms = append(atoms, atom{
			field: left + " " + op,
			value: value,
			or:    ors[i],
		})
	}
	return atoms, nil
}

// splitConnectives splits s on top level, whitespace delimited AND / OR
// keywords.  ors[i] is true when parts[i] was preceded by OR; ors[0] is
// always false.
func splitConnectives(s string) (parts []string, ors []bool, err error) {
	var (
		depth int
		quote byte
		start int
		or    bool
	)

	cut := func(end int) error {
		part := strings.TrimSpace(s[start:end])
		if part == "" {
			return errors.Parsef("Empty comparison in condition %q", s)
		}
		parts = append(parts, part)
		ors = append(ors, or)
		return nil
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case c == '\\':
				i++
			case c == quote && i+1 < len(s) && s[i+1] == quote:
				i++
			case c == quote:
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, nil, errors.Parsef(
					"Unbalanced parenthesis in condition %q", s)
			}
		case depth == 0 && isSpace(c):
			j := i
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isLetter(s[k]) {
				k++
			}
			word := strings.ToUpper(s[j:k])
			if (word == "AND" || word == "OR") &&
				k < len(s) && isSpace(s[k]) {

				if err := cut(i); err != nil {
					return nil, nil, err
				}
				or = word == "OR"
				start = k
				i = k - 1
			}
		}
	}

	if quote != 0 {
		return nil, nil, errors.Parsef("Unterminated quote in condition %q", s)
	}
	if depth != 0 {
		return nil, nil, errors.Parsef(
			"Unbalanced parenthesis in condition %q", s)
	}
	if err := cut(len(s)); err != nil {
		return nil, nil, err
	}
	return parts, ors, nil
}

// Byte tests for the scanner.  Only ASCII qualifies, so the bytes of a
// multi-byte identifier never look like separators.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// splitComparison finds the first operator outside quotes and parentheses.
// found is false when s has no operator at all; an operator run that is not
// a recognized comparison is a parse error.
func splitComparison(s string) (
	left string,
	op string,
	right string,
	found bool,
	err error) {

	var (
		depth int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
		case '<', '>', '!', '=':
			if depth != 0 {
				continue
			}
			j := i
			for j < len(s) && strings.IndexByte("<>!=", s[j]) >= 0 {
				j++
			}
			op = s[i:j]
			if !comparisonOperators[op] {
				return "", "", "", false, errors.Parsef(
					"Unsupported operator %q in %q", op, s)
			}
			return strings.TrimSpace(s[:i]), op, strings.TrimSpace(s[j:]), true, nil
		}
	}
	return strings.TrimSpace(s), "", "", false, nil
}

// parseLiteral turns the right hand side of a comparison into a Go value.
func parseLiteral(s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Parsef("Missing value")
	}

	switch s[0] {
	case '\'', '"':
		return unquoteLiteral(s)
	}

	if numberLiteral.MatchString(s) {
		if !strings.Contains(s, ".") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid number %q", s)
		}
		return f, nil
	}

	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	return nil, errors.Parsef(
		"Value %q is not a quoted string, a number, true or false", s)
}

func unquoteLiteral(s string) (string, error) {
	quote := s[0]
	if len(s) < 2 || s[len(s)-1] != quote {
		return "", errors.Parsef("Unterminated string %s", s)
	}

	body := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\':
			if i+1 >= len(body) {
				return "", errors.Parsef("Dangling escape in %s", s)
			}
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '0':
				b.WriteByte(0)
			default:
				b.WriteByte(body[i])
			}
		case c == quote:
			if i+1 < len(body) && body[i+1] == quote {
				b.WriteByte(quote)
				i++
				continue
			}
			return "", errors.Parsef("Unescaped quote in %s", s)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

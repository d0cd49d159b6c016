package sqlbuilder

import (
	"regexp"
	"strings"
)

var (
	// Matches the AS keyword between an expression and its alias.
	asKeyword = regexp.MustCompile(`(?i)\s+AS\s+`)

	// A trailing "AS alias" on a function call, subquery or literal.
	trailingAsAlias = regexp.MustCompile(
		"(?is)^(.*\\S)\\s+AS\\s+([`\"\\[]?\\w+[`\"\\]]?)$")

	// A bare alias following the closing parenthesis of a function call.
	trailingBareAlias = regexp.MustCompile(
		"(?s)^(.*\\))\\s+([`\"\\[]?\\w+[`\"\\]]?)$")

	operatorPattern = regexp.MustCompile(
		`(?i)[<>!=]|\bIS\s+(NOT\s+)?NULL\b|\bEXISTS\b|\bBETWEEN\b|\bLIKE\b|\bIN\s*\(|\bCASE\b|\bWHEN\b|\bTHEN\b|\s`)

	digitsOnly = regexp.MustCompile(`^\d+$`)
)

// hasOperator reports whether s reads as an operator expression rather than
// a plain identifier or alias.
func hasOperator(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return operatorPattern.MatchString(s)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// literalQuotes returns the characters that start a string literal in the
// current dialect.  Identifier quotes are never literal quotes.
func (q *Query) literalQuotes() string {
	open, close := q.dialect.IdentifierQuotes()
	quotes := ""
	for _, c := range []byte{'\'', '"'} {
		if c != open && c != close {
			quotes += string(c)
		}
	}
	return quotes
}

func (q *Query) isExpression(item string) bool {
	return strings.ContainsAny(item, "()") ||
		strings.ContainsAny(item, q.literalQuotes())
}

// protect escapes the identifiers in item.  Function calls, subqueries and
// literals are left alone except for a trailing alias.  Dotted references
// whose first segment is a tracked alias are escaped without re-applying the
// table prefix.  Single segments only get the table prefix when
// prefixSingle is set.
func (q *Query) protect(item string, prefixSingle bool, escape bool) string {
	item = strings.TrimSpace(item)
	if item == "" || item == "*" {
		return item
	}

	if q.isExpression(item) {
		return q.protectExpression(item, escape)
	}

	item = collapseSpaces(item)

	alias := ""
	if locs := asKeyword.FindAllStringIndex(item, -1); len(locs) > 0 {
		loc := locs[len(locs)-1]
		alias = " AS " + q.maybeEscape(item[loc[1]:], escape)
		item = item[:loc[0]]
	} else if idx := strings.IndexByte(item, ' '); idx > 0 {
		rest := item[idx+1:]
		if hasOperator(rest) {
			// Arithmetic and other operator expressions are emitted as-is.
			return item
		}
		alias = " " + q.maybeEscape(rest, escape)
		item = item[:idx]
	}

	prefix := q.dialect.TablePrefix()

	if strings.Contains(item, ".") {
		parts := strings.Split(item, ".")

		if q.aliases.Contains(q.unquote(parts[0])) {
			if escape {
				for i, p := range parts {
					if p != "*" {
						parts[i] = q.quoteSegment(p)
					}
				}
			}
			return strings.Join(parts, ".") + alias
		}

		if prefix != "" {
			idx := -1
			switch len(parts) {
			case 2:
				idx = 0
			case 3:
				idx = 1
			case 4:
				idx = 2
			}
			if idx >= 0 {
				parts[idx] = q.addPrefix(parts[idx], prefix)
			}
		}
		item = strings.Join(parts, ".")
		return q.maybeEscape(item, escape) + alias
	}

	if prefixSingle && prefix != "" {
		item = q.addPrefix(item, prefix)
	}
	return q.maybeEscape(item, escape) + alias
}

func (q *Query) protectExpression(item string, escape bool) string {
	if m := trailingAsAlias.FindStringSubmatch(item); m != nil {
		return m[1] + " AS " + q.maybeEscape(m[2], escape)
	}
	if m := trailingBareAlias.FindStringSubmatch(item); m != nil {
		return m[1] + " " + q.maybeEscape(m[2], escape)
	}
	return item
}

func (q *Query) addPrefix(segment string, prefix string) string {
	bare := q.unquote(segment)
	if bare == "*" || strings.HasPrefix(bare, prefix) {
		return segment
	}
	return prefix + bare
}

func (q *Query) maybeEscape(s string, escape bool) string {
	s = strings.TrimSpace(s)
	if !escape {
		return s
	}
	return q.EscapeIdentifier(s)
}

// EscapeIdentifier quotes every segment of a (possibly dotted) identifier
// with the dialect's identifier quotes.  Numbers, literals, function calls
// and '*' are returned unchanged.  Quoting an already quoted identifier is a
// no-op.
func (q *Query) EscapeIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" || digitsOnly.MatchString(s) {
		return s
	}
	if strings.Contains(s, "(") ||
		strings.IndexAny(s[:1], q.literalQuotes()) == 0 {

		return s
	}

	parts := strings.Split(s, ".")
	for i, p := range parts {
		if p != "*" {
			parts[i] = q.quoteSegment(p)
		}
	}
	return strings.Join(parts, ".")
}

func (q *Query) quoteSegment(seg string) string {
	seg = strings.TrimSpace(seg)
	if seg == "" || digitsOnly.MatchString(seg) {
		return seg
	}
	open, close := q.dialect.IdentifierQuotes()
	return string(open) + q.unquote(seg) + string(close)
}

// unquote strips one pair of identifier quotes from seg.
func (q *Query) unquote(seg string) string {
	seg = strings.TrimSpace(seg)
	open, close := q.dialect.IdentifierQuotes()
	if len(seg) >= 2 && seg[0] == open && seg[len(seg)-1] == close {
		return seg[1 : len(seg)-1]
	}
	return seg
}

// trackAliases records the aliases introduced by a list of table
// expressions.  Only aliased tables ("universe u", "universe AS u") add an
// entry.
func (q *Query) trackAliases(tables ...string) {
	for _, t := range tables {
		for _, table := range splitList(t) {
			table = asKeyword.ReplaceAllString(collapseSpaces(table), " ")
			fields := strings.Fields(table)
			if len(fields) < 2 {
				continue
			}
			alias := strings.Trim(fields[len(fields)-1], "`\"[]")
			if alias != "" {
				q.aliases.Add(alias)
			}
		}
	}
}

// splitList splits s on commas that are not inside parentheses or quotes.
// Parts are trimmed and empty parts dropped.
func splitList(s string) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
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
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = appendTrimmed(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return appendTrimmed(parts, s[start:])
}

func appendTrimmed(parts []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		parts = append(parts, s)
	}
	return parts
}

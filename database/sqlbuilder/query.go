package sqlbuilder

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/dropbox/sqlfluent/container/linked_hashmap"
	"github.com/dropbox/sqlfluent/container/set"
	"github.com/dropbox/sqlfluent/errors"
)

type queryState int

const (
	stateEmpty queryState = iota
	stateAccumulating
	stateCompiled
)

// Clause names one of the fragment accumulators of a Query.
type Clause int

const (
	ClauseSelect Clause = iota
	ClauseFrom
	ClauseJoin
	ClauseWhere
	ClauseGroupBy
	ClauseHaving
	ClauseOrderBy
)

var joinDirections = map[string]bool{
	"LEFT":        true,
	"RIGHT":       true,
	"OUTER":       true,
	"INNER":       true,
	"LEFT OUTER":  true,
	"RIGHT OUTER": true,
}

var randomOrderSentinels = map[string]bool{
	"RAND":     true,
	"RAND()":   true,
	"RANDOM":   true,
	"RANDOM()": true,
}

// Query accumulates the clauses of a single statement.  Every fragment it
// stores is already escaped.  A Query is not safe for concurrent use; build
// independent queries on independent goroutines.
type Query struct {
	dialect Dialect

	selects []string
	from    []string
	joins   []string
	where   []string
	groupBy []string
	having  []string
	orderBy []string

	// escaped column -> escaped value, in first-set order.
	set *linked_hashmap.LinkedHashmap

	limit    *int64
	offset   *int64
	distinct bool

	aliases set.StringSet

	lastQuery string
	state     queryState
	err       error
}

// New returns an empty query for dialect.  A nil dialect means MySQL.
func New(dialect Dialect) *Query {
	if dialect == nil {
		dialect = NewMySQLDialect()
	}
	q := &Query{dialect: dialect}
	q.clear()
	return q
}

func (q *Query) clear() {
	q.selects = nil
	q.from = nil
	q.joins = nil
	q.where = nil
	q.groupBy = nil
	q.having = nil
	q.orderBy = nil
	q.set = linked_hashmap.NewLinkedHashmap(0)
	q.limit = nil
	q.offset = nil
	q.distinct = false
	q.aliases = set.NewStringSet()
	q.state = stateEmpty
	q.err = nil
}

// Reset clears every clause, alias, limit, offset, the distinct flag and any
// recorded error.  LastQuery is kept.
func (q *Query) Reset() *Query {
	q.clear()
	return q
}

// ResetQuery is Reset followed by seeding LastQuery with last.
func (q *Query) ResetQuery(last string) *Query {
	q.clear()
	q.lastQuery = last
	return q
}

// Copy returns a deep copy of the query.  The two queries share no state.
func (q *Query) Copy() *Query {
	c := &Query{
		dialect:   q.dialect,
		selects:   copyStrings(q.selects),
		from:      copyStrings(q.from),
		joins:     copyStrings(q.joins),
		where:     copyStrings(q.where),
		groupBy:   copyStrings(q.groupBy),
		having:    copyStrings(q.having),
		orderBy:   copyStrings(q.orderBy),
		set:       q.set.Copy(),
		distinct:  q.distinct,
		aliases:   q.aliases.Copy(),
		lastQuery: q.lastQuery,
		state:     q.state,
		err:       q.err,
	}
	if q.limit != nil {
		l := *q.limit
		c.limit = &l
	}
	if q.offset != nil {
		o := *q.offset
		c.offset = &o
	}
	return c
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}

func (q *Query) Dialect() Dialect {
	return q.dialect
}

// Err returns the error recorded by the first failing builder call, if any.
func (q *Query) Err() error {
	return q.err
}

// LastQuery returns the most recently compiled statement, or the empty
// string.  For UpdateBatch it is every statement joined by "; ".
func (q *Query) LastQuery() string {
	return q.lastQuery
}

// Fragments returns a copy of the escaped fragments stored for clause.
func (q *Query) Fragments(clause Clause) []string {
	switch clause {
	case ClauseSelect:
		return copyStrings(q.selects)
	case ClauseFrom:
		return copyStrings(q.from)
	case ClauseJoin:
		return copyStrings(q.joins)
	case ClauseWhere:
		return copyStrings(q.where)
	case ClauseGroupBy:
		return copyStrings(q.groupBy)
	case ClauseHaving:
		return copyStrings(q.having)
	case ClauseOrderBy:
		return copyStrings(q.orderBy)
	}
	return nil
}

// Assignments returns the SET entries as "column = value" fragments.
func (q *Query) Assignments() []string {
	result := make([]string, 0, q.set.Len())
	q.set.Do(func(key string, val interface{}) {
		result = append(result, key+" = "+val.(string))
	})
	return result
}

// Aliases returns the table aliases tracked so far.
func (q *Query) Aliases() []string {
	return q.aliases.Items()
}

func (q *Query) LimitValue() (int64, bool) {
	if q.limit == nil {
		return 0, false
	}
	return *q.limit, true
}

func (q *Query) OffsetValue() (int64, bool) {
	if q.offset == nil {
		return 0, false
	}
	return *q.offset, true
}

// begin reports whether a builder call may proceed.
func (q *Query) begin() bool {
	if q.err != nil {
		return false
	}
	if q.state == stateCompiled {
		q.err = errors.Statef(
			"Query was already compiled; call Reset before building a new one")
		return false
	}
	return true
}

func (q *Query) fail(err error) *Query {
	q.err = err
	return q
}

func (q *Query) touch() *Query {
	q.state = stateAccumulating
	return q
}

// Splits each argument on top level commas.
func splitAll(items []string) []string {
	var result []string
	for _, item := range items {
		result = append(result, splitList(item)...)
	}
	return result
}

// Select adds fields to the select list.  Each argument may itself be a
// comma separated list.
func (q *Query) Select(fields ...string) *Query {
	if !q.begin() {
		return q
	}
	items := splitAll(fields)
	if len(items) == 0 {
		return q.fail(errors.Validationf("Select requires at least one field"))
	}
	for _, item := range items {
		q.selects = append(q.selects, q.protect(item, false, true))
	}
	return q.touch()
}

// SelectRaw adds expressions to the select list without escaping them.
func (q *Query) SelectRaw(exprs ...string) *Query {
	if !q.begin() {
		return q
	}
	var items []string
	for _, e := range exprs {
		if e = strings.TrimSpace(e); e != "" {
			items = append(items, e)
		}
	}
	if len(items) == 0 {
		return q.fail(errors.Validationf("SelectRaw requires at least one expression"))
	}
	q.selects = append(q.selects, items...)
	return q.touch()
}

func (q *Query) SelectMin(field string, alias string) *Query {
	return q.selectAggregate("MIN", field, alias)
}

func (q *Query) SelectMax(field string, alias string) *Query {
	return q.selectAggregate("MAX", field, alias)
}

func (q *Query) SelectAvg(field string, alias string) *Query {
	return q.selectAggregate("AVG", field, alias)
}

func (q *Query) SelectSum(field string, alias string) *Query {
	return q.selectAggregate("SUM", field, alias)
}

// Emits FUNC(field) AS alias.  The alias defaults to the last segment of
// field.
func (q *Query) selectAggregate(fn string, field string, alias string) *Query {
	if !q.begin() {
		return q
	}
	field = strings.TrimSpace(field)
	if field == "" {
		return q.fail(errors.Validationf("Select%s%s requires a field",
			fn[:1], strings.ToLower(fn[1:])))
	}
	alias = strings.TrimSpace(alias)
	if alias == "" {
		segments := strings.Split(field, ".")
		alias = q.unquote(segments[len(segments)-1])
	}
	q.selects = append(q.selects,
		fn+"("+q.protect(field, false, true)+") AS "+q.EscapeIdentifier(alias))
	return q.touch()
}

// Distinct turns the statement into SELECT DISTINCT.
func (q *Query) Distinct() *Query {
	if !q.begin() {
		return q
	}
	q.distinct = true
	return q.touch()
}

// From adds tables to the FROM list.  Aliased tables ("universe u") are
// tracked so that references through the alias are not prefixed.
func (q *Query) From(tables ...string) *Query {
	if !q.begin() {
		return q
	}
	items := splitAll(tables)
	if len(items) == 0 {
		return q.fail(errors.Validationf("From requires at least one table"))
	}
	q.trackAliases(items...)
	for _, item := range items {
		q.from = append(q.from, q.protect(item, true, true))
	}
	return q.touch()
}

// Join adds a JOIN clause.  A condition with a comparison operator becomes
// ON left op right (several comparisons may be joined with AND / OR); a
// bare column becomes USING (column).  direction is one of LEFT, RIGHT,
// OUTER, INNER, LEFT OUTER or RIGHT OUTER, and requires a condition.
func (q *Query) Join(table string, condition string, direction string) *Query {
	if !q.begin() {
		return q
	}

	direction = strings.ToUpper(collapseSpaces(direction))
	if direction != "" && !joinDirections[direction] {
		return q.fail(errors.Validationf(
			"Invalid join direction %q.  Allowed: LEFT, RIGHT, OUTER, INNER, "+
				"LEFT OUTER, RIGHT OUTER", direction))
	}

	table = strings.TrimSpace(table)
	if table == "" {
		return q.fail(errors.Validationf("Join requires a table"))
	}

	condition = strings.TrimSpace(condition)
	if direction != "" && condition == "" {
		return q.fail(errors.Validationf(
			"A %s JOIN requires a join condition", direction))
	}

	saved := q.aliases.Copy()
	q.trackAliases(table)

	relation, err := q.joinRelation(condition)
	if err != nil {
		q.aliases = saved
		return q.fail(err)
	}

	fragment := "JOIN " + q.protect(table, true, true) + relation
	if direction != "" {
		fragment = direction + " " + fragment
	}
	q.joins = append(q.joins, fragment)
	return q.touch()
}

func (q *Query) joinRelation(condition string) (string, error) {
	if condition == "" {
		return "", nil
	}

	parts, ors, err := splitConnectives(condition)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, part := range parts {
		left, op, right, found, err := splitComparison(part)
		if err != nil {
			return "", err
		}
		if !found {
			if len(parts) == 1 && !strings.ContainsAny(left, " \t\n") {
				columns := splitList(left)
				for j, col := range columns {
					columns[j] = q.protect(col, false, true)
				}
				return " USING (" + strings.Join(columns, ", ") + ")", nil
			}
			return "", errors.Parsef(
				"Cannot parse join condition %q near %q", condition, part)
		}
		if left == "" || right == "" {
			return "", errors.Parsef(
				"Incomplete join comparison %q in %q", part, condition)
		}

		if i > 0 {
			if ors[i] {
				b.WriteString(" OR ")
			} else {
				b.WriteString(" AND ")
			}
		}
		b.WriteString(q.protect(left, false, true))
		b.WriteString(" ")
		b.WriteString(op)
		b.WriteString(" ")
		b.WriteString(q.protect(right, false, true))
	}
	return " ON " + b.String(), nil
}

// GroupBy adds fields to the GROUP BY list.
func (q *Query) GroupBy(fields ...string) *Query {
	if !q.begin() {
		return q
	}
	items := splitAll(fields)
	if len(items) == 0 {
		return q.fail(errors.Validationf("GroupBy requires at least one field"))
	}
	for _, item := range items {
		q.groupBy = append(q.groupBy, q.protect(item, false, true))
	}
	return q.touch()
}

// OrderBy is OrderByDirection with the default (ASC) direction.
func (q *Query) OrderBy(fields ...string) *Query {
	return q.OrderByDirection("", fields...)
}

// OrderByDirection adds fields to the ORDER BY list.  An inline ASC / DESC
// suffix on a field overrides direction.  A random sentinel (RAND, RAND(),
// RANDOM, RANDOM()) replaces the whole ORDER BY list with the dialect's
// random order expression.
func (q *Query) OrderByDirection(direction string, fields ...string) *Query {
	if !q.begin() {
		return q
	}

	direction = strings.ToUpper(strings.TrimSpace(direction))
	if randomOrderSentinels[direction] {
		q.orderBy = []string{q.dialect.RandomOrder()}
		return q.touch()
	}
	if direction != "" && direction != "ASC" && direction != "DESC" {
		return q.fail(errors.Validationf(
			"Invalid order direction %q.  Only ASC and DESC are allowed",
			direction))
	}

	items := splitAll(fields)
	if len(items) == 0 {
		return q.fail(errors.Validationf("OrderBy requires at least one field"))
	}

	var fragments []string
	for _, item := range items {
		item = collapseSpaces(item)
		if randomOrderSentinels[strings.ToUpper(item)] {
			q.orderBy = []string{q.dialect.RandomOrder()}
			return q.touch()
		}

		dir := direction
		if idx := strings.LastIndexByte(item, ' '); idx > 0 {
			suffix := strings.ToUpper(item[idx+1:])
			if suffix == "ASC" || suffix == "DESC" {
				dir = suffix
				item = item[:idx]
			}
		}
		if dir == "" {
			dir = "ASC"
		}
		fragments = append(fragments, q.protect(item, false, true)+" "+dir)
	}
	q.orderBy = append(q.orderBy, fragments...)
	return q.touch()
}

// Limit sets the LIMIT, and optionally the OFFSET.  Values must be
// non-negative Go integers or strings of digits.
func (q *Query) Limit(limit interface{}, offset ...interface{}) *Query {
	if !q.begin() {
		return q
	}
	if len(offset) > 1 {
		return q.fail(errors.Validationf(
			"Limit accepts at most one offset, got %d", len(offset)))
	}
	n, err := parseCount("limit", limit)
	if err != nil {
		return q.fail(err)
	}
	var o *int64
	if len(offset) == 1 {
		v, err := parseCount("offset", offset[0])
		if err != nil {
			return q.fail(err)
		}
		o = &v
	}
	q.limit = &n
	if o != nil {
		q.offset = o
	}
	return q.touch()
}

// Offset sets the OFFSET.  It requires a LIMIT at compile time.
func (q *Query) Offset(offset interface{}) *Query {
	if !q.begin() {
		return q
	}
	n, err := parseCount("offset", offset)
	if err != nil {
		return q.fail(err)
	}
	q.offset = &n
	return q.touch()
}

func parseCount(name string, value interface{}) (int64, error) {
	if value == nil {
		return 0, errors.Validationf("The %s must be a non-negative integer, got nil", name)
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Int() < 0 {
			return 0, errors.Validationf(
				"The %s must not be negative, got %d", name, v.Int())
		}
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:

		if v.Uint() > math.MaxInt64 {
			return 0, errors.Validationf("The %s %d is too large", name, v.Uint())
		}
		return int64(v.Uint()), nil
	case reflect.String:
		s := v.String()
		if !digitsOnly.MatchString(s) {
			return 0, errors.Validationf(
				"The %s must be a string of digits, got %q", name, v.String())
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, errors.Validationf("The %s %q is too large", name, s)
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		switch {
		case math.IsNaN(f):
			return 0, errors.Validationf("The %s must be an integer, got NaN", name)
		case math.IsInf(f, 0):
			return 0, errors.Validationf(
				"The %s must be an integer, got infinity", name)
		}
		return 0, errors.Validationf(
			"The %s must be an integer, got float %v", name, f)
	case reflect.Bool:
		return 0, errors.Validationf(
			"The %s must be an integer, got boolean %v", name, v.Bool())
	case reflect.Slice, reflect.Array, reflect.Map:
		return 0, errors.Validationf(
			"The %s must be an integer, got %T", name, value)
	}
	return 0, errors.Validationf(
		"The %s must be a non-negative integer, got %T", name, value)
}

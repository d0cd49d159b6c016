package sqlbuilder

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dropbox/sqlfluent/container/linked_hashmap"
	"github.com/dropbox/sqlfluent/database/sqltypes"
	"github.com/dropbox/sqlfluent/errors"
)

const (
	joinerAnd = "AND "
	joinerOr  = "OR "
)

// Trailing operators recognized on a field name, longest first.
var keywordOperators = []string{
	"IS NOT NULL",
	"IS NULL",
	"NOT LIKE",
	"LIKE",
	"NOT IN",
	"IN",
	"IS NOT",
	"IS",
}

var symbolOperators = []string{"<=", ">=", "<>", "!=", "<", ">", "="}

// splitFieldOperator splits "diameter <" into ("diameter", "<").  op is
// empty when the field carries no operator.
func splitFieldOperator(field string) (name string, op string) {
	field = collapseSpaces(field)
	upper := strings.ToUpper(field)
	for _, kw := range keywordOperators {
		if strings.HasSuffix(upper, " "+kw) {
			return strings.TrimSpace(field[:len(field)-len(kw)-1]), kw
		}
	}
	for _, sym := range symbolOperators {
		if strings.HasSuffix(field, sym) {
			return strings.TrimSpace(field[:len(field)-len(sym)]), sym
		}
	}
	return field, ""
}

// Where adds conditions joined with AND.
func (q *Query) Where(key Key) *Query {
	return q.addCondition(&q.where, key, joinerAnd, "Where")
}

// OrWhere adds conditions joined with OR.
func (q *Query) OrWhere(key Key) *Query {
	return q.addCondition(&q.where, key, joinerOr, "OrWhere")
}

func (q *Query) Having(key Key) *Query {
	return q.addCondition(&q.having, key, joinerAnd, "Having")
}

func (q *Query) OrHaving(key Key) *Query {
	return q.addCondition(&q.having, key, joinerOr, "OrHaving")
}

func (q *Query) addCondition(
	acc *[]string,
	key Key,
	joiner string,
	method string) *Query {

	if !q.begin() {
		return q
	}
	fragments, err := q.conditionFragments(len(*acc), key, joiner, method)
	if err != nil {
		return q.fail(err)
	}
	*acc = append(*acc, fragments...)
	return q.touch()
}

// conditionFragments builds the fragments for key without storing them.
// existing is the number of fragments already in the target accumulator;
// only the very first fragment goes without a joiner.
func (q *Query) conditionFragments(
	existing int,
	key Key,
	joiner string,
	method string) ([]string, error) {

	var fragments []string
	add := func(j string, fragment string) {
		if existing+len(fragments) > 0 {
			fragment = j + fragment
		}
		fragments = append(fragments, fragment)
	}

	if cond, ok := key.(Condition); ok {
		atoms, err := parseCondition(string(cond))
		if err != nil {
			return nil, err
		}
		for i, a := range atoms {
			fragment, err := q.comparison(a.field, a.value)
			if err != nil {
				return nil, err
			}
			j := joiner
			if i > 0 {
				j = joinerAnd
				if a.or {
					j = joinerOr
				}
			}
			add(j, fragment)
		}
		return fragments, nil
	}

	fields, err := keyFields(key, method)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		fragment, err := q.comparison(f.Name, f.Value)
		if err != nil {
			return nil, err
		}
		add(joiner, fragment)
	}
	return fragments, nil
}

// comparison renders a single "field [op]" / value pair.
func (q *Query) comparison(field string, value interface{}) (string, error) {
	name, op := splitFieldOperator(field)
	if name == "" {
		return "", errors.Validationf("Missing field name in %q", field)
	}
	column := q.protect(name, false, true)

	if isList(value) {
		switch op {
		case "", "=", "IN":
			return q.inFragment(column, value, false)
		case "!=", "<>", "NOT IN":
			return q.inFragment(column, value, true)
		}
		return "", errors.Validationf(
			"Operator %s cannot be used with a list value for %q", op, name)
	}

	if value == nil {
		switch op {
		case "", "=", "IS", "IS NULL":
			return column + " IS NULL", nil
		case "!=", "<>", "IS NOT", "IS NOT NULL":
			return column + " IS NOT NULL", nil
		}
		return "", errors.Validationf(
			"Operator %s cannot be compared with NULL for %q", op, name)
	}

	switch op {
	case "IS NULL", "IS NOT NULL":
		return "", errors.Validationf(
			"%q already tests for NULL; its value must be nil", field)
	case "IN", "NOT IN":
		if raw, ok := value.(Raw); ok {
			return column + " " + op + " " + string(raw), nil
		}
		return "", errors.Validationf(
			"Operator %s requires a list value for %q", op, name)
	case "":
		op = "="
	}

	literal, err := q.escapeValue(value)
	if err != nil {
		return "", errors.Wrapf(err, "Invalid value for %q", name)
	}
	return column + " " + op + " " + literal, nil
}

func (q *Query) inFragment(
	column string,
	values interface{},
	not bool) (string, error) {

	v := reflect.ValueOf(values)
	if v.Len() == 0 {
		return "", errors.Validationf("IN requires at least one value for %s", column)
	}
	literals := make([]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i).Interface()
		if isList(elem) {
			return "", errors.Validationf("Nested list in IN values for %s", column)
		}
		literal, err := q.escapeValue(elem)
		if err != nil {
			return "", err
		}
		literals = append(literals, literal)
	}
	op := " IN ("
	if not {
		op = " NOT IN ("
	}
	return column + op + strings.Join(literals, ", ") + ")", nil
}

func (q *Query) WhereIn(field string, values interface{}) *Query {
	return q.addIn(field, values, false, joinerAnd, "WhereIn")
}

func (q *Query) OrWhereIn(field string, values interface{}) *Query {
	return q.addIn(field, values, false, joinerOr, "OrWhereIn")
}

func (q *Query) WhereNotIn(field string, values interface{}) *Query {
	return q.addIn(field, values, true, joinerAnd, "WhereNotIn")
}

func (q *Query) OrWhereNotIn(field string, values interface{}) *Query {
	return q.addIn(field, values, true, joinerOr, "OrWhereNotIn")
}

func (q *Query) addIn(
	field string,
	values interface{},
	not bool,
	joiner string,
	method string) *Query {

	if !q.begin() {
		return q
	}
	field = strings.TrimSpace(field)
	if field == "" {
		return q.fail(errors.Validationf("%s requires a field", method))
	}
	if !isList(values) {
		return q.fail(errors.Validationf(
			"%s requires a slice of values, got %T", method, values))
	}
	fragment, err := q.inFragment(q.protect(field, false, true), values, not)
	if err != nil {
		return q.fail(err)
	}
	if len(q.where) > 0 {
		fragment = joiner + fragment
	}
	q.where = append(q.where, fragment)
	return q.touch()
}

// Like adds "field LIKE '%match%'" conditions joined with AND.
func (q *Query) Like(key Key, side Side) *Query {
	return q.addLike(key, side, false, joinerAnd, "Like")
}

func (q *Query) NotLike(key Key, side Side) *Query {
	return q.addLike(key, side, true, joinerAnd, "NotLike")
}

func (q *Query) OrLike(key Key, side Side) *Query {
	return q.addLike(key, side, false, joinerOr, "OrLike")
}

func (q *Query) OrNotLike(key Key, side Side) *Query {
	return q.addLike(key, side, true, joinerOr, "OrNotLike")
}

func (q *Query) addLike(
	key Key,
	side Side,
	not bool,
	joiner string,
	method string) *Query {

	if !q.begin() {
		return q
	}
	if side < SideBoth || side > SideNone {
		return q.fail(errors.Validationf("%s: invalid like side %v", method, side))
	}
	fields, err := keyFields(key, method)
	if err != nil {
		return q.fail(err)
	}

	op := " LIKE "
	if not {
		op = " NOT LIKE "
	}

	var fragments []string
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return q.fail(errors.Validationf("%s requires a field name", method))
		}
		match, err := likeMatch(f.Value)
		if err != nil {
			return q.fail(errors.Wrapf(err, "%s: invalid value for %q", method, name))
		}
		literal, err := q.escapeValue(side.wrap(match))
		if err != nil {
			return q.fail(err)
		}
		fragment := q.protect(name, false, true) + op + literal
		if len(q.where)+len(fragments) > 0 {
			fragment = joiner + fragment
		}
		fragments = append(fragments, fragment)
	}
	q.where = append(q.where, fragments...)
	return q.touch()
}

func likeMatch(value interface{}) (string, error) {
	if value == nil || isList(value) {
		return "", errors.Validationf("LIKE needs a string or number, got %T", value)
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", errors.Validationf("LIKE value must be finite, got %v", f)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return "", errors.Validationf("LIKE needs a string or number, got %T", value)
}

// Set adds column / value assignments used by Insert and Update.  Setting a
// column that is already present replaces its value in place.
func (q *Query) Set(key Key) *Query {
	if !q.begin() {
		return q
	}
	fields, err := keyFields(key, "Set")
	if err != nil {
		return q.fail(err)
	}
	next := q.set.Copy()
	if err := q.applySet(next, fields); err != nil {
		return q.fail(err)
	}
	q.set = next
	return q.touch()
}

// SetRaw assigns expr to field without escaping expr, e.g.
// SetRaw("visits", "visits + 1").
func (q *Query) SetRaw(field string, expr string) *Query {
	return q.Set(F(field, Raw(expr)))
}

func (q *Query) applySet(target *linked_hashmap.LinkedHashmap, fields []Field) error {
	for _, f := range fields {
		column, literal, err := q.assignment(f)
		if err != nil {
			return err
		}
		target.Set(column, literal)
	}
	return nil
}

func (q *Query) assignment(f Field) (column string, literal string, err error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return "", "", errors.Validationf("Set requires a field name")
	}
	switch v := f.Value.(type) {
	case []byte:
		return "", "", errors.Validationf(
			"Cannot set %q to a byte slice; use a string", name)
	case time.Time:
		literal, err = q.escapeValue(v.Format(sqltypes.TimeFormat))
	default:
		if isList(v) {
			return "", "", errors.Validationf(
				"Cannot set %q to a list value %T", name, f.Value)
		}
		literal, err = q.escapeValue(v)
	}
	if err != nil {
		return "", "", errors.Wrapf(err, "Invalid value for %q", name)
	}
	return q.protect(name, false, true), literal, nil
}

// isList reports whether v routes to IN (...).  Byte slices are scalars.
func isList(v interface{}) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem().Kind() != reflect.Uint8
	}
	return false
}

// escapeValue renders value through the dialect.  Named scalar types are
// normalized to their underlying kind first.  NaN and infinities are
// rejected.
func (q *Query) escapeValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return q.dialect.EscapeValue(nil)
	case Raw:
		return string(v), nil
	case time.Time, []byte:
		return q.dialect.EscapeValue(v)
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return q.dialect.EscapeValue(nil)
		}
		return q.escapeValue(v.Elem().Interface())
	case reflect.String:
		return q.dialect.EscapeValue(v.String())
	case reflect.Bool:
		return q.dialect.EscapeValue(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return q.dialect.EscapeValue(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return q.dialect.EscapeValue(v.Uint())
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) {
			return "", errors.Validationf("NaN is not a valid SQL value")
		}
		if math.IsInf(f, 0) {
			return "", errors.Validationf("Infinity is not a valid SQL value")
		}
		if v.Kind() == reflect.Float32 {
			return q.dialect.EscapeValue(float32(f))
		}
		return q.dialect.EscapeValue(f)
	}
	return q.dialect.EscapeValue(value)
}

package sqlbuilder

import (
	"fmt"
	"strings"

	"github.com/dropbox/sqlfluent/errors"
)

// Key is the argument accepted by Where, Having, Like and Set.  It is always
// one of Field, FieldMap or Condition.
type Key interface {
	isKey()
}

// A single field / value pair.  The field may carry a trailing comparison
// operator, e.g. F("diameter <", 12000).
type Field struct {
	Name  string
	Value interface{}
}

func (Field) isKey() {}

// F returns a Field.
func F(name string, value interface{}) Field {
	return Field{Name: name, Value: value}
}

// An ordered list of field / value pairs.  Entries are processed
// independently and in order.
type FieldMap []Field

func (FieldMap) isKey() {}

// Map builds a FieldMap from alternating names and values.  It panics when
// given an odd number of arguments or a non-string name, in the same way
// regexp.MustCompile panics on a bad pattern.
func Map(pairs ...interface{}) FieldMap {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("Map requires name / value pairs, got %d arguments", len(pairs)))
	}
	m := make(FieldMap, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("Map field name at position %d is %T, not string", i, pairs[i]))
		}
		m = append(m, Field{Name: name, Value: pairs[i+1]})
	}
	return m
}

// Get returns the value of the last entry named name.
func (m FieldMap) Get(name string) (interface{}, bool) {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i].Name == name {
			return m[i].Value, true
		}
	}
	return nil, false
}

// A free-form condition such as "diameter < 12000 AND type = 'rocky'".
type Condition string

func (Condition) isKey() {}

// Raw marks a value that is emitted verbatim instead of being escaped.
type Raw string

// Side selects where LIKE wildcards are placed around the match value.
type Side int

const (
	SideBoth Side = iota
	SideBefore
	SideAfter
	SideNone
)

func (s Side) String() string {
	switch s {
	case SideBoth:
		return "both"
	case SideBefore:
		return "before"
	case SideAfter:
		return "after"
	case SideNone:
		return "none"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// ParseSide maps "before", "after", "both" and "none" (case-insensitive) onto
// a Side.  The empty string means both.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return SideBoth, nil
	case "before":
		return SideBefore, nil
	case "after":
		return SideAfter, nil
	case "none":
		return SideNone, nil
	}
	return 0, errors.Validationf(
		"Invalid like side %q.  Only 'before', 'after', 'both' and 'none' are allowed", s)
}

func (s Side) wrap(match string) string {
	switch s {
	case SideBefore:
		return "%" + match
	case SideAfter:
		return match + "%"
	case SideNone:
		return match
	}
	return "%" + match + "%"
}

type insertOptions struct {
	ignore bool
	suffix string
}

// InsertOption tweaks INSERT statements.
type InsertOption func(*insertOptions)

// Ignore turns the statement into INSERT IGNORE.
func Ignore() InsertOption {
	return func(o *insertOptions) {
		o.ignore = true
	}
}

// OnDuplicate appends suffix (e.g. "ON DUPLICATE KEY UPDATE `n` = `n` + 1")
// verbatim after the VALUES list.
func OnDuplicate(suffix string) InsertOption {
	return func(o *insertOptions) {
		o.suffix = strings.TrimSpace(suffix)
	}
}

// Turns a Key into its entries, rejecting Condition when the caller cannot
// use one.
func keyFields(key Key, method string) ([]Field, error) {
	switch k := key.(type) {
	case Field:
		return []Field{k}, nil
	case FieldMap:
		if len(k) == 0 {
			return nil, errors.Validationf("%s requires at least one field", method)
		}
		return k, nil
	case Condition:
		return nil, errors.Validationf(
			"%s does not accept a condition string: %q", method, string(k))
	case nil:
		return nil, errors.Validationf("%s requires a field", method)
	}
	return nil, errors.Validationf("%s: unsupported key type %T", method, key)
}

// Extensions to the go-check unittest framework.
//
// NOTE: see https://github.com/go-check/check/pull/6 for reasons why these
// checkers live here.
package gocheck2

import (
	. "gopkg.in/check.v1"

	"github.com/dropbox/sqlfluent/errors"
)

// -----------------------------------------------------------------------
// IsTrue / IsFalse checker.

type isBoolValueChecker struct {
	*CheckerInfo
	expected bool
}

func (checker *isBoolValueChecker) Check(
	params []interface{},
	names []string) (
	result bool,
	error string) {

	obtained, ok := params[0].(bool)
	if !ok {
		return false, "Argument to " + checker.Name + " must be bool"
	}

	return obtained == checker.expected, ""
}

// The IsTrue checker verifies that the obtained value is true.
//
// For example:
//
//     c.Assert(value, IsTrue)
//
var IsTrue Checker = &isBoolValueChecker{
	&CheckerInfo{Name: "IsTrue", Params: []string{"obtained"}},
	true,
}

// The IsFalse checker verifies that the obtained value is false.
//
// For example:
//
//     c.Assert(value, IsFalse)
//
var IsFalse Checker = &isBoolValueChecker{
	&CheckerInfo{Name: "IsFalse", Params: []string{"obtained"}},
	false,
}

// -----------------------------------------------------------------------
// HasErrorKind checker.

type errorKindChecker struct {
	*CheckerInfo
}

func (checker *errorKindChecker) Check(
	params []interface{},
	names []string) (
	result bool,
	errStr string) {

	if params[0] == nil {
		return false, "Obtained error is nil"
	}
	err, ok := params[0].(error)
	if !ok {
		return false, "First argument to HasErrorKind must be an error"
	}
	kind, ok := params[1].(errors.Kind)
	if !ok {
		return false, "Second argument to HasErrorKind must be an errors.Kind"
	}

	return errors.KindOf(err) == kind, ""
}

// The HasErrorKind checker verifies that the obtained error is non-nil and
// carries the expected kind.
//
// For example:
//
//     c.Assert(err, HasErrorKind, errors.KindValidation)
//
var HasErrorKind Checker = &errorKindChecker{
	&CheckerInfo{Name: "HasErrorKind", Params: []string{"obtained", "kind"}},
}

// This module implements functions which manipulate errors and provide stack
// trace information.
//
// Errors produced by the query builder carry a Kind so that callers can tell
// bad input apart from unparseable conditions and from statements compiled in
// the wrong state.
//
// NOTE: This package intentionally mirrors the standard "errors" module.
package errors

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
)

// Kind categorizes a failure.
type Kind int

const (
	// KindUnknown is used for errors that were not created with a kind.
	KindUnknown Kind = iota
	// KindValidation means an argument had the wrong shape or value.
	KindValidation
	// KindParse means a condition string did not match any known grammar.
	KindParse
	// KindState means a statement was compiled before its required clauses
	// existed, or a query was used after being compiled.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindParse:
		return "parse"
	case KindState:
		return "state"
	}
	return "unknown"
}

// This interface exposes additional information about the error.
type DropboxError interface {
	// This returns the error message without the stack trace.
	GetMessage() string

	// This returns the wrapped error.  This returns nil if this does not wrap
	// another error.
	GetInner() error

	// Returns the category of the error.
	GetKind() Kind

	// Implements the built-in error interface.
	Error() string

	// Returns stack frames.
	StackFrames() []StackFrame

	// Returns string representation of stack frames.
	// It is discouraged to parse stack frames using string parsing since it
	// can change at any time.  Use StackFrames() instead.
	GetStack() string
}

// Represents a single stack frame.
type StackFrame struct {
	PC         uintptr
	Func       *runtime.Func
	FuncName   string
	File       string
	LineNumber int
}

type baseError struct {
	msg   string
	kind  Kind
	inner error

	stack       []uintptr
	framesOnce  sync.Once
	stackFrames []StackFrame
}

// This returns the error string without stack trace information.
func GetMessage(err interface{}) string {
	switch e := err.(type) {
	case DropboxError:
		return extractFullErrorMessage(e, false)
	case runtime.Error:
		return runtime.Error(e).Error()
	case error:
		return e.Error()
	default:
		return "Passed a non-error to GetMessage"
	}
}

// This returns a string with all available error information, including inner
// errors that are wrapped by this errors.
func (e *baseError) Error() string {
	return extractFullErrorMessage(e, true)
}

// Implements DropboxError interface.
func (e *baseError) GetMessage() string {
	return e.msg
}

// Implements DropboxError interface.
func (e *baseError) GetInner() error {
	return e.inner
}

// Implements DropboxError interface.  A wrapping error without a kind of its
// own reports the kind of the error it wraps.
func (e *baseError) GetKind() Kind {
	if e.kind != KindUnknown {
		return e.kind
	}
	if inner, ok := e.inner.(DropboxError); ok {
		return inner.GetKind()
	}
	return KindUnknown
}

// Unwrap lets the standard library errors.Is / errors.As walk the chain.
func (e *baseError) Unwrap() error {
	return e.inner
}

// Implements DropboxError interface.  Inlined calls get a frame of their
// own; Func is nil for those.
func (e *baseError) StackFrames() []StackFrame {
	e.framesOnce.Do(func() {
		e.stackFrames = make([]StackFrame, 0, len(e.stack))
		if len(e.stack) == 0 {
			return
		}
		frames := runtime.CallersFrames(e.stack)
		for {
			frame, more := frames.Next()
			e.stackFrames = append(e.stackFrames, StackFrame{
				PC:         frame.PC,
				Func:       frame.Func,
				FuncName:   frame.Function,
				File:       frame.File,
				LineNumber: frame.Line,
			})
			if !more {
				break
			}
		}
	})
	return e.stackFrames
}

// Implements DropboxError interface.
func (e *baseError) GetStack() string {
	stackFrames := e.StackFrames()
	buf := bytes.NewBuffer(make([]byte, 0, 256))
	for _, frame := range stackFrames {
		_, _ = buf.WriteString(frame.FuncName)
		_, _ = buf.WriteString("\n")
		fmt.Fprintf(buf, "\t%s:%d +0x%x\n",
			frame.File, frame.LineNumber, frame.PC)
	}
	return buf.String()
}

// This returns a new baseError initialized with the given message and
// the current stack trace.
func New(msg string) DropboxError {
	return newError(nil, KindUnknown, msg)
}

// Same as New, but with fmt.Printf-style parameters.
func Newf(format string, args ...interface{}) DropboxError {
	return newError(nil, KindUnknown, fmt.Sprintf(format, args...))
}

// Validationf reports an argument with the wrong type, shape or value.
func Validationf(format string, args ...interface{}) DropboxError {
	return newError(nil, KindValidation, fmt.Sprintf(format, args...))
}

// Parsef reports a condition string that matched no known grammar.
func Parsef(format string, args ...interface{}) DropboxError {
	return newError(nil, KindParse, fmt.Sprintf(format, args...))
}

// Statef reports a statement compiled without its required clauses.
func Statef(format string, args ...interface{}) DropboxError {
	return newError(nil, KindState, fmt.Sprintf(format, args...))
}

// Wraps another error in a new baseError.
func Wrap(err error, msg string) DropboxError {
	return newError(err, KindUnknown, msg)
}

// Same as Wrap, but with fmt.Printf-style parameters.
func Wrapf(err error, format string, args ...interface{}) DropboxError {
	return newError(err, KindUnknown, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	if dbxErr, ok := err.(DropboxError); ok {
		return dbxErr.GetKind()
	}
	return KindUnknown
}

// Internal helper function to create new baseError objects,
// note that if there is more than one level of redirection to call this
// function, stack frame information will include that level too.
func newError(err error, kind Kind, msg string) *baseError {
	stack := make([]uintptr, 200)
	stackLength := runtime.Callers(3, stack)
	return &baseError{
		msg:   msg,
		kind:  kind,
		stack: stack[:stackLength],
		inner: err,
	}
}

// Constructs full error message for a given DropboxError by traversing
// all of its inner errors. If includeStack is True it will also include
// stack trace from deepest DropboxError in the chain.
func extractFullErrorMessage(e DropboxError, includeStack bool) string {
	var ok bool
	var lastDbxErr DropboxError
	errMsg := bytes.NewBuffer(make([]byte, 0, 1024))

	dbxErr := e
	for {
		lastDbxErr = dbxErr
		errMsg.WriteString(dbxErr.GetMessage())

		innerErr := dbxErr.GetInner()
		if innerErr == nil {
			break
		}
		dbxErr, ok = innerErr.(DropboxError)
		if !ok {
			// We have reached the end and traveresed all inner errors.
			// Add last message and exit loop.
			errMsg.WriteString("\n")
			errMsg.WriteString(innerErr.Error())
			break
		}
		errMsg.WriteString("\n")
	}
	if includeStack {
		errMsg.WriteString("\nORIGINAL STACK TRACE:\n")
		errMsg.WriteString(lastDbxErr.GetStack())
	}
	return errMsg.String()
}

// Keep peeling away layers or context until a primitive error is revealed.
func RootError(ierr error) (nerr error) {
	nerr = ierr
	for i := 0; i < 20; i++ {
		dbxErr, ok := nerr.(DropboxError)
		if !ok || dbxErr.GetInner() == nil {
			return nerr
		}
		nerr = dbxErr.GetInner()
	}
	return fmt.Errorf("too many iterations: %T", nerr)
}

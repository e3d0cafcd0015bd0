package engine

// errors.go defines the engine's error taxonomy. Every validation failure
// is detected before any SQL executes and carries a stable kind plus a
// detail string naming the offending identifiers. Execution failures wrap
// the driver error unchanged.

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a stable, machine-readable error category.
type Kind string

const (
	KindAccessDenied    Kind = "access_denied"
	KindInvalidColumns  Kind = "invalid_columns"
	KindPKMismatch      Kind = "pk_mismatch"
	KindProtectedColumn Kind = "protected_column"
	KindInvalidOperator Kind = "invalid_operator"
	KindNotFound        Kind = "not_found"
	KindExecution       Kind = "execution_failure"
)

// Error is the engine's error type. Detail is human-readable and names the
// specific offending identifiers where applicable.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf returns the Kind of err, or "" if err is not an engine error.
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

func accessDenied(format string, args ...interface{}) error {
	return &Error{Kind: KindAccessDenied, Detail: fmt.Sprintf(format, args...)}
}

func invalidColumns(offenders []string) error {
	return &Error{Kind: KindInvalidColumns, Detail: "unknown columns: " + strings.Join(offenders, ", ")}
}

func pkMismatch(format string, args ...interface{}) error {
	return &Error{Kind: KindPKMismatch, Detail: fmt.Sprintf(format, args...)}
}

func protectedColumn(offenders []string) error {
	return &Error{Kind: KindProtectedColumn, Detail: "primary key columns cannot be updated: " + strings.Join(offenders, ", ")}
}

func invalidOperator(op FilterOperator) error {
	return &Error{Kind: KindInvalidOperator, Detail: fmt.Sprintf("unsupported filter operator %q", op)}
}

func notFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

func executionFailure(detail string, cause error) error {
	return &Error{Kind: KindExecution, Detail: detail, cause: cause}
}

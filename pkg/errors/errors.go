// Package errors provides structured error handling for pgiris.
//
// Every error carries a Kind (one of the abstract kinds the wire protocol
// front end can raise), a fixed SQLSTATE derived from that Kind, optional
// context fields for debugging, and an optional cause for wrapping.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is one of the abstract error kinds the session boundary maps to an
// ErrorResponse.
type Kind int

const (
	KindProtocolViolation Kind = iota
	KindAuthenticationFailure
	KindTranslation
	KindBackend
	KindTimeout
	KindResource
	KindCatalog
	KindCancellation
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindAuthenticationFailure:
		return "AuthenticationFailure"
	case KindTranslation:
		return "Translation"
	case KindBackend:
		return "Backend"
	case KindTimeout:
		return "Timeout"
	case KindResource:
		return "Resource"
	case KindCatalog:
		return "Catalog"
	case KindCancellation:
		return "Cancellation"
	default:
		return "Internal"
	}
}

// SQLState returns the PostgreSQL SQLSTATE that this kind maps to by
// default. Callers that know a more specific SQLSTATE (e.g. 42601 for a
// concrete syntax error) should set Error.Code directly instead of relying
// on this default.
func (k Kind) SQLState() string {
	switch k {
	case KindProtocolViolation:
		return "08P01"
	case KindAuthenticationFailure:
		return "28000"
	case KindTranslation:
		return "42601"
	case KindBackend:
		return "XX000"
	case KindTimeout:
		return "57014"
	case KindResource:
		return "53300"
	case KindCatalog:
		return "42P01"
	case KindCancellation:
		return "57014"
	default:
		return "XX000"
	}
}

// Severity indicates error severity in the PostgreSQL sense.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
	SeverityPanic
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityFatal:
		return "FATAL"
	case SeverityPanic:
		return "PANIC"
	default:
		return "ERROR"
	}
}

// Error is a structured error with a kind, SQLSTATE, and context.
type Error struct {
	Kind     Kind
	Code     string // SQLSTATE; defaults to Kind.SQLState() when empty
	Message  string
	Detail   string
	Position int32 // byte offset into the offending SQL, 0 if not applicable
	Severity Severity

	Fields map[string]interface{}
	Cause  error
	Time   time.Time
	OpName string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.SQLState())
	buf.WriteString(": ")
	buf.WriteString(e.Message)
	if e.Cause != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Cause.Error())
	}
	return buf.String()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// SQLState returns the effective SQLSTATE: the explicit Code if set,
// otherwise the Kind's default.
func (e *Error) SQLState() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.SQLState()
}

// Format implements fmt.Formatter for detailed output.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s [%s] %s (%s): %s\n",
				e.Time.Format(time.RFC3339), e.Severity, e.Kind, e.SQLState(), e.Message)
			if e.OpName != "" {
				fmt.Fprintf(f, "  Operation: %s\n", e.OpName)
			}
			if e.Detail != "" {
				fmt.Fprintf(f, "  Detail: %s\n", e.Detail)
			}
			if len(e.Fields) > 0 {
				fmt.Fprintf(f, "  Context:\n")
				for k, v := range e.Fields {
					fmt.Fprintf(f, "    %s: %v\n", k, v)
				}
			}
			if e.Cause != nil {
				fmt.Fprintf(f, "  Caused by: %v\n", e.Cause)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(f, e.Error())
	case 'q':
		fmt.Fprintf(f, "%q", e.Error())
	}
}

// WithField adds a context field and returns the error for chaining.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// Builder constructs an Error fluently.
type Builder struct {
	kind     Kind
	code     string
	message  string
	detail   string
	position int32
	severity Severity
	cause    error
	fields   map[string]interface{}
	op       string
}

// New starts building an error of the given kind.
func New(kind Kind, message string) *Builder {
	return &Builder{kind: kind, message: message, severity: SeverityError}
}

// Newf starts building an error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Builder {
	return &Builder{kind: kind, message: fmt.Sprintf(format, args...), severity: SeverityError}
}

// Wrap wraps an existing error with a kind and message.
func Wrap(cause error, kind Kind, message string) *Builder {
	return &Builder{kind: kind, message: message, severity: SeverityError, cause: cause}
}

func (b *Builder) WithCode(sqlstate string) *Builder { b.code = sqlstate; return b }
func (b *Builder) WithDetail(detail string) *Builder { b.detail = detail; return b }
func (b *Builder) WithPosition(pos int32) *Builder   { b.position = pos; return b }
func (b *Builder) WithCause(err error) *Builder      { b.cause = err; return b }
func (b *Builder) WithOp(op string) *Builder         { b.op = op; return b }
func (b *Builder) Fatal() *Builder                   { b.severity = SeverityFatal; return b }

func (b *Builder) WithField(key string, value interface{}) *Builder {
	if b.fields == nil {
		b.fields = make(map[string]interface{})
	}
	b.fields[key] = value
	return b
}

// Build creates the Error.
func (b *Builder) Build() *Error {
	return &Error{
		Kind:     b.kind,
		Code:     b.code,
		Message:  b.message,
		Detail:   b.detail,
		Position: b.position,
		Severity: b.severity,
		Cause:    b.cause,
		Fields:   b.fields,
		OpName:   b.op,
		Time:     time.Now(),
	}
}

// Err is shorthand for Build() returning the error interface.
func (b *Builder) Err() error {
	return b.Build()
}

// Extraction helpers

// GetKind extracts the Kind from an error, or KindInternal if none.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// GetSQLState extracts the effective SQLSTATE from an error.
func GetSQLState(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.SQLState()
	}
	return "XX000"
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Join combines multiple errors.
func Join(errs ...error) error { return errors.Join(errs...) }

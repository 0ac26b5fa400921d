package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which bridge operation produced the error
type Phase string

const (
	PhaseInit      Phase = "init"      // runtime and thread initialization
	PhaseEval      Phase = "eval"      // source evaluation
	PhaseMarshal   Phase = "marshal"   // boxing, unboxing, arrays
	PhaseInvoke    Phase = "invoke"    // calls into embedded callables
	PhaseRoot      Phase = "root"      // root table maintenance
	PhaseException Phase = "exception" // exception introspection
	PhaseLoad      Phase = "load"      // native symbol resolution
	PhaseShutdown  Phase = "shutdown"  // runtime teardown
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindUninitialized  Kind = "uninitialized_runtime"
	KindEvaluation     Kind = "evaluation"
	KindTypeMismatch   Kind = "type_mismatch"
	KindNullHandle     Kind = "null_handle"
	KindDanglingHandle Kind = "dangling_handle"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindAllocation     Kind = "allocation"
	KindUnsupported    Kind = "unsupported"
	KindFault          Kind = "fault"
)

// Sentinels for errors.Is. They carry no phase, so they match any error of
// the same kind.
var (
	ErrUninitialized  = &Error{Kind: KindUninitialized}
	ErrEvaluation     = &Error{Kind: KindEvaluation}
	ErrTypeMismatch   = &Error{Kind: KindTypeMismatch}
	ErrNullHandle     = &Error{Kind: KindNullHandle}
	ErrDanglingHandle = &Error{Kind: KindDanglingHandle}
	ErrOutOfBounds    = &Error{Kind: KindOutOfBounds}
	ErrNotFound       = &Error{Kind: KindNotFound}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value       any
	Cause       error
	Phase       Phase
	Kind        Kind
	GoType      string
	RuntimeType string
	Detail      string
	Path        []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.RuntimeType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.RuntimeType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", runtime type ")
			b.WriteString(e.RuntimeType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString(e.RuntimeType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.RuntimeType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the operation path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// RuntimeType sets the embedded runtime's type name
func (b *Builder) RuntimeType(t string) *Builder {
	b.err.RuntimeType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Uninitialized reports a call on a thread that was never initialized,
// was closed, or belongs to a runtime that was shut down.
func Uninitialized(detail string) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindUninitialized,
		Detail: detail,
	}
}

// Evaluation translates a pending runtime exception.
func Evaluation(runtimeType, message string) *Error {
	return &Error{
		Phase:       PhaseEval,
		Kind:        KindEvaluation,
		RuntimeType: runtimeType,
		Detail:      message,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, goType, runtimeType string) *Error {
	return &Error{
		Phase:       phase,
		Kind:        KindTypeMismatch,
		GoType:      goType,
		RuntimeType: runtimeType,
	}
}

// NullHandle reports a null value where a live one was required
func NullHandle(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNullHandle,
		Detail: fmt.Sprintf("%s is null", what),
	}
}

// DanglingHandle reports a handle whose value was already collected
func DanglingHandle(phase Phase, ptr uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDanglingHandle,
		Detail: fmt.Sprintf("value at 0x%x is not live", ptr),
		Value:  ptr,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// LengthMismatch reports a bulk copy whose host and runtime lengths differ
func LengthMismatch(phase Phase, hostLen, runtimeLen int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("host buffer has %d elements, runtime array has %d", hostLen, runtimeLen),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Fault wraps a failure of the native call itself
func Fault(phase Phase, symbol string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFault,
		Detail: fmt.Sprintf("native call %s failed", symbol),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

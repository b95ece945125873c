package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve Phase = "resolve" // descriptor and symbol lookup
	PhaseEncode  Phase = "encode"  // host to native
	PhaseDecode  Phase = "decode"  // native to host
	PhaseAccess  Phase = "access"  // compound field access
	PhaseInvoke  Phase = "invoke"  // call frame assembly and dispatch
	PhaseCast    Phase = "cast"    // typed-instance casts
	PhaseLoad    Phase = "load"    // namespace definition loading
	PhaseMemory  Phase = "memory"  // linear memory operations
	PhaseNative  Phase = "native"  // backend dispatch
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch  Kind = "type_mismatch"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindInvalidData   Kind = "invalid_data"
	KindUnsupported   Kind = "unsupported"
	KindAllocation    Kind = "allocation"
	KindFieldUnknown  Kind = "field_unknown"
	KindNotReadable   Kind = "not_readable"
	KindNotWritable   Kind = "not_writable"
	KindMissingValue  Kind = "missing_value"
	KindArgumentCount Kind = "argument_count"
	KindOverflow      Kind = "overflow"
	KindNilPointer    Kind = "nil_pointer"
	KindNotFound      Kind = "not_found"
	KindBadCast       Kind = "bad_cast"
	KindSymbolMissing Kind = "symbol_missing"
	KindInvalidInput  Kind = "invalid_input"
	KindRegistration  Kind = "registration"
	KindTrap          Kind = "trap"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	NativeType string
	Detail     string
	Path       []string
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

	if e.GoType != "" || e.NativeType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.NativeType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.NativeType != "" {
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// NativeType sets the native descriptor type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
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

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		NativeType: nativeType,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
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

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, offset, length uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("offset %d out of bounds (length %d)", offset, length),
		Value:  offset,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Path:       path,
		NativeType: targetType,
		Detail:     fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:      value,
	}
}

// FieldUnknown creates an unknown field error
func FieldUnknown(path []string, fieldName string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindFieldUnknown,
		Path:   path,
		Detail: fmt.Sprintf("unknown field %q", fieldName),
	}
}

// FieldNotReadable creates an error for reading a write-only field
func FieldNotReadable(path []string, fieldName string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindNotReadable,
		Path:   path,
		Detail: fmt.Sprintf("field %q is not readable", fieldName),
	}
}

// FieldNotWritable creates an error for writing a read-only field
func FieldNotWritable(path []string, fieldName string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindNotWritable,
		Path:   path,
		Detail: fmt.Sprintf("field %q is not writable", fieldName),
	}
}

// MissingValue creates an error for a required value that was not supplied
func MissingValue(phase Phase, path []string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMissingValue,
		Path:   path,
		Detail: fmt.Sprintf("required %s not supplied", what),
	}
}

// ArgumentCount creates an argument arity error
func ArgumentCount(want, got int) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindArgumentCount,
		Detail: fmt.Sprintf("call requires %d argument(s), got %d", want, got),
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

// BadCast creates an incompatible cast error
func BadCast(from, to string) *Error {
	return &Error{
		Phase:      PhaseCast,
		Kind:       KindBadCast,
		NativeType: to,
		Detail:     fmt.Sprintf("%s is not compatible with %s", from, to),
	}
}

// SymbolMissing creates an unresolved symbol error
func SymbolMissing(symbol string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindSymbolMissing,
		Detail: fmt.Sprintf("native symbol %q not exported", symbol),
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

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", namespace, name),
		Cause:  cause,
	}
}

// Load creates a namespace definition loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Trap creates an error for a fault raised by the native backend
func Trap(cause error, detail string) *Error {
	return &Error{
		Phase:  PhaseNative,
		Kind:   KindTrap,
		Detail: detail,
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

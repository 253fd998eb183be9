package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode    Phase = "encode"    // host string to guest memory
	PhaseDecode    Phase = "decode"    // guest memory to host string
	PhaseRelease   Phase = "release"   // returning a block to the guest allocator
	PhaseLifecycle Phase = "lifecycle" // bridge initialize/shutdown
	PhaseFixup     Phase = "fixup"     // slot copying into target types
	PhaseLayout    Phase = "layout"    // type object layout validation
	PhaseLoad      Phase = "load"      // guest module loading
	PhaseConfig    Phase = "config"    // configuration parsing
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation     Kind = "allocation"
	KindFormat         Kind = "format"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindDoubleFree     Kind = "double_free"
	KindLifecycle      Kind = "lifecycle"
	KindLayoutMismatch Kind = "layout_mismatch"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindInvalidData    Kind = "invalid_data"
	KindOverflow       Kind = "overflow"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindInstantiation  Kind = "instantiation"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	Encoding string
	Detail   string
	Path     []string
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

	if e.GoType != "" || e.Encoding != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.Encoding != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", encoding ")
			b.WriteString(e.Encoding)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("encoding ")
			b.WriteString(e.Encoding)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.Encoding != "" {
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

// Path sets the element path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Encoding sets the text encoding in effect
func (b *Builder) Encoding(enc string) *Builder {
	b.err.Encoding = enc
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

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// Unterminated creates a format error for a scan that found no terminator
func Unterminated(ptr uint32, limit uint32, encoding string) *Error {
	return &Error{
		Phase:    PhaseDecode,
		Kind:     KindFormat,
		Encoding: encoding,
		Detail:   fmt.Sprintf("no terminator within %d code units of 0x%x", limit, ptr),
		Value:    ptr,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// OutOfBounds creates a guest memory bounds error
func OutOfBounds(phase Phase, offset, length uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("guest memory access at 0x%x (%d bytes)", offset, length),
		Value:  offset,
		Cause:  cause,
	}
}

// DoubleFree creates an error for releasing a block that is not live
func DoubleFree(ptr uint32) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindDoubleFree,
		Detail: fmt.Sprintf("block 0x%x is not owned by this marshaler", ptr),
		Value:  ptr,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, target),
		Value:  value,
	}
}

// Lifecycle creates a lifecycle violation error
func Lifecycle(op, state string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindLifecycle,
		Detail: fmt.Sprintf("%s called while bridge is %s", op, state),
	}
}

// LayoutMismatch creates an error for a slot offset the guest disagrees with
func LayoutMismatch(slot string, want, got uint32) *Error {
	return &Error{
		Phase:  PhaseLayout,
		Kind:   KindLayoutMismatch,
		Path:   []string{slot},
		Detail: fmt.Sprintf("slot offset %d, guest reports %d", want, got),
		Value:  got,
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

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
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

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate guest module",
		Cause:  cause,
	}
}

// Load creates a guest loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

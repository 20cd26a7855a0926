package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which pipeline stage produced the error
type Phase string

const (
	PhaseValidate Phase = "validate" // static capsule checks
	PhaseSecurity Phase = "security" // capability binding
	PhaseExecute  Phase = "execute"  // guest execution
	PhaseReceipt  Phase = "receipt"  // receipt signing/verification
	PhaseEvent    Phase = "event"    // event log operations
	PhaseConfig   Phase = "config"   // profile loading
	PhaseWasm     Phase = "wasm"     // binary decode/encode/metering
)

// Kind categorizes the error
type Kind string

const (
	// Validation kinds
	KindTooLarge           Kind = "too_large"
	KindMalformed          Kind = "malformed"
	KindMissingExport      Kind = "missing_export"
	KindUnauthorizedImport Kind = "unauthorized_import"

	// Security kinds
	KindCapabilityDenied Kind = "capability_denied"

	// Execution kinds
	KindTrap           Kind = "trap"
	KindTimeout        Kind = "timeout"
	KindFuelExhausted  Kind = "fuel_exhausted"
	KindMemoryExceeded Kind = "memory_exceeded"
	KindHostFailure    Kind = "host_failure"

	// Receipt kinds
	KindSignatureInvalid   Kind = "signature_invalid"
	KindCommitmentMismatch Kind = "commitment_mismatch"

	// Shared kinds
	KindInvalidInput Kind = "invalid_input"
	KindInvalidData  Kind = "invalid_data"
	KindNotFound     Kind = "not_found"
)

// Error is the structured error type used throughout the engine
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Import string // namespace.name of the offending import, if any
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Import != "" {
		b.WriteString(" import ")
		b.WriteString(e.Import)
	}

	if e.Detail != "" {
		b.WriteString(": ")
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

// KindOf returns the Kind of err when err (or anything it wraps) is an
// *Error, and "" otherwise.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// PhaseOf returns the Phase of err when err (or anything it wraps) is an
// *Error, and "" otherwise.
func PhaseOf(err error) Phase {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Phase
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsResourceExceeded reports whether err is a fuel or memory budget violation.
func IsResourceExceeded(err error) bool {
	k := KindOf(err)
	return k == KindFuelExhausted || k == KindMemoryExceeded
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

// Import sets the offending import as namespace.name
func (b *Builder) Import(namespace, name string) *Builder {
	b.err.Import = namespace + "." + name
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

// Convenience constructors for the validation taxonomy

// TooLarge creates a size-limit validation error
func TooLarge(size, limit int) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindTooLarge,
		Detail: fmt.Sprintf("module is %d bytes, limit is %d", size, limit),
		Value:  size,
	}
}

// Malformed creates a parse-failure validation error
func Malformed(cause error) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindMalformed,
		Detail: "module bytes are not a well-formed module",
		Cause:  cause,
	}
}

// MissingExport creates a missing-export validation error
func MissingExport(name, detail string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindMissingExport,
		Detail: fmt.Sprintf("export %q: %s", name, detail),
		Value:  name,
	}
}

// UnauthorizedImport creates an import allow-list validation error
func UnauthorizedImport(namespace, name string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindUnauthorizedImport,
		Import: namespace + "." + name,
		Detail: "import is not covered by the granted capabilities",
	}
}

// CapabilityDenied creates a bind-time security error
func CapabilityDenied(namespace, name string) *Error {
	return &Error{
		Phase:  PhaseSecurity,
		Kind:   KindCapabilityDenied,
		Import: namespace + "." + name,
		Detail: "import refused at bind time",
	}
}

// Convenience constructors for the execution taxonomy

// Trap creates a guest-fault execution error
func Trap(cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindTrap,
		Detail: "guest trapped",
		Cause:  cause,
	}
}

// Timeout creates a deadline execution error
func Timeout(limitMS uint64) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindTimeout,
		Detail: fmt.Sprintf("execution exceeded %d ms", limitMS),
		Value:  limitMS,
	}
}

// FuelExhausted creates a compute-budget execution error
func FuelExhausted(limit uint64) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindFuelExhausted,
		Detail: fmt.Sprintf("execution exceeded %d fuel units", limit),
		Value:  limit,
	}
}

// MemoryExceeded creates a memory-budget execution error
func MemoryExceeded(limitMB uint32) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindMemoryExceeded,
		Detail: fmt.Sprintf("execution exceeded %d MB of memory", limitMB),
		Value:  limitMB,
	}
}

// HostFailure creates an execution error for a failing bound host function
func HostFailure(function string, cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindHostFailure,
		Import: "env." + function,
		Detail: fmt.Sprintf("host function %q failed", function),
		Cause:  cause,
	}
}

// Convenience constructors for the receipt taxonomy

// SignatureInvalid creates a receipt verification error
func SignatureInvalid(detail string) *Error {
	return &Error{
		Phase:  PhaseReceipt,
		Kind:   KindSignatureInvalid,
		Detail: detail,
	}
}

// CommitmentMismatch creates a receipt commitment error
func CommitmentMismatch(field string) *Error {
	return &Error{
		Phase:  PhaseReceipt,
		Kind:   KindCommitmentMismatch,
		Detail: fmt.Sprintf("%s does not match recomputed digest", field),
		Value:  field,
	}
}

// Shared constructors

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
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

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// DeniedImport is a single import refused by the capability sandbox
type DeniedImport struct {
	Namespace string
	Name      string
}

// DeniedImportsError is returned when capsule setup fails because one or
// more imports fall outside the granted capability set. It aggregates all
// offenders so a capsule author sees the full list at once.
type DeniedImportsError struct {
	Imports []DeniedImport
}

// NewDeniedImportsError creates an error from "namespace.name" strings
func NewDeniedImportsError(imports []string) *DeniedImportsError {
	result := &DeniedImportsError{
		Imports: make([]DeniedImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn, found := strings.Cut(imp, ".")
		if !found {
			ns, fn = "env", imp
		}
		result.Imports = append(result.Imports, DeniedImport{
			Namespace: ns,
			Name:      fn,
		})
	}
	return result
}

func (e *DeniedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[security] capability_denied: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("capability sandbox denied %d import(s):\n", len(e.Imports)))

	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], imp.Name)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *DeniedImportsError) Is(target error) bool {
	_, ok := target.(*DeniedImportsError)
	return ok
}

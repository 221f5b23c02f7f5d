package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve   Phase = "resolve"   // method/member lookup
	PhaseInvoke    Phase = "invoke"    // cross-boundary call
	PhaseMarshal   Phase = "marshal"   // Box <-> native conversion
	PhaseConstruct Phase = "construct" // object construction
	PhaseBridge    Phase = "bridge"    // entity bridge bookkeeping
	PhaseLoad      Phase = "load"      // assembly loading
	PhaseDomain    Phase = "domain"    // domain lifecycle
	PhaseConfig    Phase = "config"    // configuration/manifest parsing
	PhaseHost      Phase = "host"      // native binding registration
)

// Kind categorizes the error
type Kind string

const (
	KindMemberNotFound     Kind = "member_not_found"
	KindOverloadNotFound   Kind = "ambiguous_or_missing_overload"
	KindTypeMismatch       Kind = "type_mismatch"
	KindConstruction       Kind = "construction_failure"
	KindDuplicateEntity    Kind = "duplicate_entity"
	KindManagedException   Kind = "managed_exception"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidData        Kind = "invalid_data"
	KindReleased           Kind = "released"
	KindDomainUnloaded     Kind = "domain_unloaded"
	KindUnsupported        Kind = "unsupported"
	KindNotInitialized     Kind = "not_initialized"
	KindRegistration       Kind = "registration"
	KindAlreadyInitialized Kind = "already_initialized"
)

// Sentinels for errors.Is. A sentinel has no phase, so it matches any
// error of the same kind.
var (
	ErrMemberNotFound   = &Error{Kind: KindMemberNotFound}
	ErrOverloadNotFound = &Error{Kind: KindOverloadNotFound}
	ErrTypeMismatch     = &Error{Kind: KindTypeMismatch}
	ErrConstruction     = &Error{Kind: KindConstruction}
	ErrDuplicateEntity  = &Error{Kind: KindDuplicateEntity}
	ErrManagedException = &Error{Kind: KindManagedException}
	ErrIndexOutOfRange  = &Error{Kind: KindOutOfBounds}
	ErrReleased         = &Error{Kind: KindReleased}
	ErrDomainUnloaded   = &Error{Kind: KindDomainUnloaded}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value       any
	Cause       error
	Phase       Phase
	Kind        Kind
	GoType      string
	ManagedType string
	Detail      string
	Path        []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.ManagedType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.ManagedType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", managed type ")
			b.WriteString(e.ManagedType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("managed type ")
			b.WriteString(e.ManagedType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.ManagedType != "" {
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
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
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

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// ManagedType sets the managed type name
func (b *Builder) ManagedType(t string) *Builder {
	b.err.ManagedType = t
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
func TypeMismatch(phase Phase, path []string, goType, managedType string) *Error {
	return &Error{
		Phase:       phase,
		Kind:        KindTypeMismatch,
		Path:        path,
		GoType:      goType,
		ManagedType: managedType,
	}
}

// OutOfBounds creates an index out of range error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of range (length %d)", index, length),
		Value:  index,
	}
}

// MemberNotFound creates an error for a field, property or method name that
// resolves to nothing on a class or its ancestors.
func MemberNotFound(phase Phase, class, member string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMemberNotFound,
		Path:   []string{class, member},
		Detail: fmt.Sprintf("member %q not declared on %s or its ancestors", member, class),
	}
}

// OverloadNotFound creates an error for a resolution walk that exhausted the
// inheritance chain.
func OverloadNotFound(fullName string, argTags []string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindOverloadNotFound,
		Detail: fmt.Sprintf("no overload of %s matches (%s)", fullName, strings.Join(argTags, ", ")),
	}
}

// Construction creates a construction failure error
func Construction(class string, cause error) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindConstruction,
		Detail: fmt.Sprintf("construct %s", class),
		Cause:  cause,
	}
}

// DuplicateEntity creates an error for a spawn notification on an already
// bridged entity id.
func DuplicateEntity(id uint32) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindDuplicateEntity,
		Detail: fmt.Sprintf("entity %d already has a script instance", id),
		Value:  id,
	}
}

// Released creates an error for use of a released handle
func Released(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReleased,
		Detail: fmt.Sprintf("%s has been released", what),
	}
}

// DomainUnloaded creates an error for use of an object whose domain was torn down
func DomainUnloaded(phase Phase, domain string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDomainUnloaded,
		Detail: fmt.Sprintf("domain %q has been unloaded", domain),
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

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
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

// Registration creates a registration error
func Registration(phase Phase, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s", name),
		Cause:  cause,
	}
}

// Load creates an assembly loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

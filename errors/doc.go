// Package errors provides structured error types for the script bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: member path, Go/managed type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
//		Path("Foo", "Bar", "0").
//		GoType("string").
//		ManagedType("System.Int32").
//		Detail("cannot pass string as int").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MemberNotFound(errors.PhaseResolve, "Game.Foo", "Health")
//	err := errors.OutOfBounds(errors.PhaseMarshal, nil, 3, 2)
//
// Sentinels such as ErrMemberNotFound match any error of their kind:
//
//	if errors.Is(err, bridgeerrors.ErrDuplicateEntity) { ... }
package errors

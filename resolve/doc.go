// Package resolve picks the method a named call binds to.
//
// Each class gets a Table built once from its engine metadata and chained to
// the table of its parent class. Resolution is a walk over those tables:
//
//  1. Visit the methods declared on the class, in declaration order.
//  2. A method whose name matches exactly is a candidate when it declares no
//     parameters and none are supplied, or when it declares at least as many
//     parameters as there are supplied arguments.
//  3. A candidate with parameters is accepted when every supplied argument's
//     tag is compatible with the declared type at the same position. The
//     first incompatible position rejects the candidate.
//  4. With no accepted candidate, move to the parent table. The walk ends
//     before the root object class.
//
// The first accepted candidate wins. Overloads that differ only in types the
// compatibility table does not distinguish bind in declaration order; there
// is no best-fit scoring.
//
// Arity resolution (ResolveArity) skips type checks and requires the declared
// parameter count to equal the supplied count. It serves trusted call sites
// that pass already-marshaled slots.
//
// Tables hold no per-call state, so resolution may re-enter from managed
// code that calls back into the host.
package resolve

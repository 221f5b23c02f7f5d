// Package dispatch performs calls across the native/managed boundary.
//
// A Dispatcher resolves a named call against a class's method table, lowers
// the boxed arguments to native slots, invokes the method in the owning
// domain and lifts the result back into a box.
//
// Managed exceptions never escape as Go errors. They are captured into
// Result.Exception and handed to the dispatcher's exception sink, so a
// failing script call cannot abort the host code that made it. Errors that
// are not managed exceptions (resolution misses, marshaling failures, use of
// a released instance) are returned as *errors.Error.
//
// Fields and properties bypass overload resolution: their names are unique
// per class and are looked up on the class and its ancestors.
package dispatch

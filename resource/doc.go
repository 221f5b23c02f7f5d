// Package resource provides integer handle tables for values owned by the
// script system.
//
// The bridge uses handles where the host must refer to a managed value
// without holding a Go pointer to it: object handles pinned by a class
// module, and the script instance ids returned to host code.
//
//	table := resource.NewTable()
//
//	// Insert a value, get a handle
//	h := table.Insert(typeID, obj)
//
//	// Type-checked retrieval
//	v, ok := table.GetTyped(h, typeID)
//
//	// Remove and get value
//	v, ok := table.Remove(h)
//
// # Liveness
//
// Handles are never reused. After Remove, Clear or Close every lookup of an
// old handle fails, which is how callers detect references that did not
// survive a domain reload.
//
// # Observers
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    if e.Type == resource.EventDropped {
//	        log.Printf("handle %d dropped", e.Handle)
//	    }
//	}))
package resource

// Package scriptbridge connects a native host to managed script code.
//
// The host owns entities, rendering and physics; scripts are managed classes
// loaded into isolated domains. The bridge resolves classes and methods by
// name, marshals argument lists into the managed side, absorbs managed
// exceptions and keeps a script instance alive for every scripted entity.
//
// # Architecture Overview
//
//	scriptbridge/
//	├── value/       Tagged Box values and argument arrays
//	├── engine/      Managed runtime boundary: Go and wazero engines
//	├── resolve/     Method and member lookup with overload resolution
//	├── transcoder/  Box to native lowering and lifting
//	├── class/       Class descriptors, instances and per-domain modules
//	├── dispatch/    Invocation with exception absorption
//	├── entity/      Entity bridge, host bindings and an in-memory host
//	├── resource/    Handle tables for instances and scripts
//	├── runtime/     Script system: domains, bindings, scripts and reload
//	├── config/      YAML configuration
//	├── errors/      Structured error types
//	└── cmd/run/     Command line runner with an interactive browser
//
// # Quick Start
//
//	sys, err := runtime.New(runtime.Options{Engine: engine.NewGoEngine()})
//	if err != nil {
//		return err
//	}
//	defer sys.Close(ctx)
//
//	if err := sys.Init(ctx, assembly); err != nil {
//		return err
//	}
//
//	desc, err := sys.Class("Game.Rules")
//	if err != nil {
//		return err
//	}
//	defer desc.Release(false)
//
//	res, err := sys.Dispatcher().CallStatic(ctx, desc, "GetVersion", value.NewArgs())
//
// Managed exceptions never escape as Go panics. A failed call returns a
// Result whose Exception is set and the exception is reported to the
// system's exception sinks.
package scriptbridge

// Package engine is the boundary to the managed runtime.
//
// An Engine creates Domains. A Domain loads assemblies (Sources), exposes
// the classes they declare as ClassDef metadata, allocates objects and
// invokes methods. Everything above this package (resolution, marshaling,
// descriptors, dispatch) works on that metadata only.
//
// # Engines
//
//	GoEngine      - classes implemented by Go functions, in-process
//	WazeroEngine  - classes backed by core wasm exports, one wazero runtime
//	                per domain, described by a YAML Manifest
//
// # Wasm class mapping
//
// Core modules carry no class metadata, so a Manifest maps methods,
// properties and static fields onto exports. Parameter and result types use
// WIT primitive names and lower to flat core types:
//
//	WIT Type        Managed Type    Core Representation
//	────────────────────────────────────────────────────
//	bool            bool            i32
//	s16, u16        short, ushort   i32
//	s32, u32        int, uint       i32
//	s64, u64        long, ulong     i64
//	f32, f64        float, double   f32, f64
//	string          string          i32 ptr, i32 len
//
// Instance methods take the object pointer returned by the class's alloc
// export as their first parameter. String arguments are copied into guest
// memory through the cabi_realloc export.
//
// # Exceptions
//
// Managed exceptions surface as *Exception errors. The GoEngine raises one
// when a method returns an error or panics; the WazeroEngine when the guest
// traps or exits.
//
// # Host calls
//
// A domain forwards guest calls to the host through its NativeCaller. Wasm
// guests import env.script_log(ptr, len), which calls the "Log" binding.
package engine

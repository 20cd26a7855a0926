// Package wasm provides WebAssembly binary parsing, validation, and
// encoding for the deterministic capsule profile.
//
// The profile is core WebAssembly plus the extensions that preserve
// determinism: sign extension, saturating truncation, reference types,
// and mutable globals. Proposals that introduce nondeterminism or
// complicate cost accounting are rejected at parse or validation time:
//
//	Rejected at parse (unrepresentable):
//	  - GC (structs, arrays, typed references, heap types)
//	  - Exception handling (tags, try/catch, throw)
//	  - Tail calls (return_call, return_call_indirect)
//	  - Typed function references (call_ref, non-null types)
//	  - SIMD (v128 type and vector operations)
//	  - Threads (atomic operations)
//	  - Memory64 (64-bit addressing)
//	  - Multi-value block types
//
//	Rejected at validation (representable but forbidden):
//	  - Multi-result function types
//	  - Multiple or shared memories
//	  - Passive data and element segments
//	  - Bulk memory operations (memory.copy, memory.fill, ...)
//
// Parse rejections surface as *FeatureError naming the proposal.
//
// # Parsing
//
// Parse a WebAssembly module from binary:
//
//	module, err := wasm.ParseModule(data)
//
// Parse with validation in one step:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// # Encoding
//
// Encode a module back to binary:
//
//	encoded := module.Encode()
//
// Round-trip parsing and encoding preserves module semantics.
//
// # Module Structure
//
// A parsed module contains all sections:
//
//	module.Types      []FuncType    // Function signatures
//	module.Funcs      []uint32      // Type indices for functions
//	module.Tables     []TableType   // Table definitions
//	module.Memories   []MemoryType  // Memory definitions
//	module.Globals    []Global      // Global definitions
//	module.Imports    []Import      // Imported definitions
//	module.Exports    []Export      // Exported definitions
//	module.Code       []FuncBody    // Function bodies
//	module.Data       []DataSegment // Data segments
//	module.Elements   []Element     // Element segments
//
// # Instructions
//
// Decode instructions from bytecode:
//
//	instructions, err := wasm.DecodeInstructions(code)
//
// Encode instructions back to bytecode:
//
//	encoded := wasm.EncodeInstructions(instructions)
//
// # Fuel Metering
//
// InstrumentFuel rewrites a validated module to report execution cost
// to the host through a synthetic tenzik.fuel import:
//
//	module, _ := wasm.ParseModuleValidate(data)
//	if err := wasm.InstrumentFuel(module); err != nil {
//	    log.Fatal(err)
//	}
//	metered := module.Encode()
//
// The host provides tenzik.fuel (i64) -> () and deducts each charge
// from the call's budget. Charges are deterministic for a given module,
// so fuel consumption is reproducible across runs and machines.
package wasm

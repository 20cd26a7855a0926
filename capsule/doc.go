// Package capsule validates WASM capsules before anything runs them.
//
// A capsule is a tiny WASM module (5 KB by default) exporting
//
//	run(ptr: i32, len: i32) -> i32   // packed (output_len << 16) | output_ptr
//	memory                           // linear memory
//
// and importing only host functions admitted by its capability grant,
// all under the env namespace.
//
// Validation is static and fail-fast: size ceiling, binary parse
// against the deterministic profile, required exports, then the import
// allowlist. The first failing stage returns its typed error; the
// ValidationResult still reports size, exports, imports, and warnings
// gathered up to that point. Guest code is never instantiated here.
package capsule

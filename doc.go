// Package tenzikcore executes sandboxed WebAssembly capsules and signs
// receipts proving what ran.
//
// A capsule is a tiny wasm module exporting run(ptr, len) -> i32 and its
// linear memory. The runtime validates it statically, binds only the
// host functions its capability grant allows, executes it under fuel,
// memory and wall-clock budgets, and issues an ed25519-signed receipt
// committing to the capsule, the input and the output.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	tenzikcore/          Root package: Runtime facade and logging fan-out
//	├── capsule/         Static validation: size, shape, exports, imports
//	├── sandbox/         Capability grants and deterministic host functions
//	├── engine/          wazero execution, budgets, metrics, module cache
//	├── wasm/            Binary codec and fuel instrumentation
//	├── receipt/         Signed execution receipts and verification
//	├── event/           Node-signed event DAG for receipt federation
//	├── config/          Limits, presets, and HCL profiles
//	└── errors/          Typed errors shared by every stage
//
// # Quick Start
//
// Run a capsule and verify its receipt:
//
//	rt, err := tenzikcore.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	res, err := rt.Run(ctx, capsuleBytes, []byte(`{"name":"Alice"}`))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("%s\n", res.Output)
//	ok, _ := res.Receipt.Verify(rt.PublicKey())
//	fmt.Println("receipt valid:", ok)
//
// # Determinism
//
// Capsules cannot reach the clock, the OS random source, the filesystem
// or the network. Time and randomness are injected per runtime, so the
// same capsule, input, limits, clock and seed always produce the same
// output. Receipts stay comparable across nodes because their signing
// payload is canonical bytes, not JSON.
//
// # Thread Safety
//
// Runtime is safe for concurrent Run calls; each call instantiates its
// own guest. Receipt nonces are issued from an atomic per-runtime
// counter starting at 1.
package tenzikcore

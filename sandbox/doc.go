// Package sandbox scopes what a capsule can reach on the host.
//
// Everything a capsule may call lives under the env namespace and is
// gated by a capability grant. A grant maps capabilities to fixed host
// function names:
//
//	Capability    Host Functions
//	──────────────────────────────────────────────
//	hash          hash_commit
//	json          json_path
//	base64        base64_encode, base64_decode
//	time          time_now_ms
//	random        random_bytes
//
// env.memory and env.abort are structural: every grant admits them, no
// capability owns them.
//
// # Binding
//
// A Host is the bound host side of a single execution. It re-checks the
// capsule's imports against the grant, then instantiates an env module
// containing exactly the granted functions:
//
//	host := sandbox.NewHost(sandbox.HostConfig{
//		Grant:  sandbox.NewGrant(sandbox.CapHash, sandbox.CapJSON),
//		TimeMS: 1700000000000,
//		Seed:   seed,
//	})
//	if err := host.VerifyImports(module.Imports); err != nil {
//		return err // capability denied
//	}
//	envMod, err := host.Instantiate(ctx, r)
//
// # Determinism
//
// The host functions never consult ambient state. time_now_ms returns
// the injected TimeMS for the whole execution; random_bytes streams
// SHA-256(seed, counter) blocks from the injected seed. Identical
// (module, input, limits, time, seed) produce identical output.
//
// # Failure Model
//
// Content-level problems (bad JSON, bad base64, undersized output
// buffer) return negative statuses to the guest and execution
// continues. Out-of-bounds guest pointers are host failures: the
// capsule is force-closed with ExitHostFailure and the recorded error
// is surfaced by the engine. A guest call to env.abort closes the
// capsule with ExitAbort and surfaces as a trap.
//
// # Access Log
//
// Every host function call appends an AccessEntry (sequence,
// capability, function, detail). The log is advisory and returned with
// execution results; it never gates a call, binding already did.
package sandbox

// Package engine executes capsules under resource budgets.
//
// Every Execute call builds a fresh wazero runtime, binds the fuel
// meter and the capability-scoped host module, instantiates the
// capsule, and tears everything down before returning. Nothing is
// shared between calls except the module cache.
//
// # Call Flow
//
//  1. Reject oversized input before anything is built
//  2. Look up the capsule digest in the module cache; on a miss,
//     parse, fuel-instrument, and admit it
//  3. Refuse modules whose declared memory minimum exceeds the budget
//  4. Build the runtime: memory limit pages, close-on-deadline, the
//     entry's compilation cache
//  5. Bind the fuel meter, then the granted host functions
//  6. Instantiate, write input at InputOffset, call run under the
//     deadline
//  7. Unpack (output_len << 16) | output_ptr and copy the output out
//
// # Budgets
//
// Fuel is charged by instrumented guest code against a per-call
// ledger; crossing zero closes the instance. The memory budget becomes
// a wazero page limit, checked against the module's declared minimum
// before the runtime exists. The wall-clock budget is a context
// deadline with close-on-done, so a stuck capsule is closed, not
// abandoned.
//
// # Failure
//
// Execute never returns a bare error: failures are *ExecError values
// carrying the typed error plus the metrics and access log collected
// up to the failure. Guest faults surface as traps, budget violations
// as fuel or memory errors, deadline hits as timeouts, and failures
// inside a bound host function keep the host's recorded error.
package engine

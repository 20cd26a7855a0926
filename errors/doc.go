// Package errors provides structured error types for the capsule engine.
//
// Errors are categorized by Phase (which pipeline stage failed) and Kind
// (error category). The taxonomy is deliberately closed: validation errors
// are too_large, malformed, missing_export and unauthorized_import;
// security errors are capability_denied; execution errors are trap,
// timeout, fuel_exhausted, memory_exceeded and host_failure; receipt
// errors are signature_invalid and commitment_mismatch.
//
// Use the Builder for structured construction:
//
//	err := errors.New(errors.PhaseExecute, errors.KindTrap).
//		Detail("unreachable executed").
//		Cause(cause).
//		Build()
//
// Or use the convenience constructors:
//
//	err := errors.TooLarge(len(data), limit)
//	err := errors.UnauthorizedImport("env", "file_read")
//
// All errors implement the standard error interface and support
// errors.Is/As; Is matches on Phase+Kind so callers can branch on a
// category without caring about detail text.
package errors

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseValidate,
				Kind:   KindUnauthorizedImport,
				Import: "env.file_read",
				Detail: "not covered by grants",
			},
			contains: []string{"[validate]", "unauthorized_import", "env.file_read", "not covered by grants"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseExecute,
				Kind:  KindTrap,
			},
			contains: []string{"[execute]", "trap"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseExecute,
				Kind:   KindHostFailure,
				Detail: "json_path failed",
				Cause:  errors.New("pointer out of range"),
			},
			contains: []string{"[execute]", "host_failure", "json_path failed", "caused by", "pointer out of range"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseValidate,
		Kind:  KindMalformed,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseExecute,
		Kind:   KindTimeout,
		Detail: "took too long",
	}

	if !err.Is(&Error{Phase: PhaseExecute, Kind: KindTimeout}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseValidate, Kind: KindTimeout}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseExecute, Kind: KindTrap}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseExecute, Kind: KindTimeout}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseSecurity, KindCapabilityDenied).
		Import("env", "random_bytes").
		Value("random_bytes").
		Cause(cause).
		Detail("capability %s not granted", "Random").
		Build()

	if err.Phase != PhaseSecurity {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseSecurity)
	}
	if err.Kind != KindCapabilityDenied {
		t.Errorf("Kind = %v, want %v", err.Kind, KindCapabilityDenied)
	}
	if err.Import != "env.random_bytes" {
		t.Errorf("Import = %q, want %q", err.Import, "env.random_bytes")
	}
	if err.Detail != "capability Random not granted" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err.Cause, cause) {
		t.Error("Cause not preserved")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		wantPhase Phase
		wantKind  Kind
	}{
		{"too large", TooLarge(6000, 5120), PhaseValidate, KindTooLarge},
		{"malformed", Malformed(errors.New("bad magic")), PhaseValidate, KindMalformed},
		{"missing export", MissingExport("run", "not exported"), PhaseValidate, KindMissingExport},
		{"unauthorized import", UnauthorizedImport("env", "spawn"), PhaseValidate, KindUnauthorizedImport},
		{"capability denied", CapabilityDenied("env", "spawn"), PhaseSecurity, KindCapabilityDenied},
		{"trap", Trap(errors.New("unreachable")), PhaseExecute, KindTrap},
		{"timeout", Timeout(1000), PhaseExecute, KindTimeout},
		{"fuel", FuelExhausted(1_000_000), PhaseExecute, KindFuelExhausted},
		{"memory", MemoryExceeded(32), PhaseExecute, KindMemoryExceeded},
		{"host failure", HostFailure("json_path", errors.New("oob")), PhaseExecute, KindHostFailure},
		{"signature", SignatureInvalid("bad signature"), PhaseReceipt, KindSignatureInvalid},
		{"commitment", CommitmentMismatch("input_commit"), PhaseReceipt, KindCommitmentMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.wantPhase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.wantPhase)
			}
			if tt.err.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.wantKind)
			}
			if tt.err.Error() == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestKindOfAndPhaseOf(t *testing.T) {
	inner := Timeout(500)
	wrapped := fmt.Errorf("run capsule: %w", inner)

	if got := KindOf(wrapped); got != KindTimeout {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindTimeout)
	}
	if got := PhaseOf(wrapped); got != PhaseExecute {
		t.Errorf("PhaseOf(wrapped) = %q, want %q", got, PhaseExecute)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestIsResourceExceeded(t *testing.T) {
	if !IsResourceExceeded(FuelExhausted(100)) {
		t.Error("fuel exhaustion should be a resource violation")
	}
	if !IsResourceExceeded(MemoryExceeded(16)) {
		t.Error("memory limit should be a resource violation")
	}
	if IsResourceExceeded(Timeout(100)) {
		t.Error("timeout is not a resource violation")
	}
	if IsResourceExceeded(nil) {
		t.Error("nil is not a resource violation")
	}
}

func TestDeniedImportsError(t *testing.T) {
	err := NewDeniedImportsError([]string{"env.file_read", "env.net_connect", "wasi.clock"})

	if len(err.Imports) != 3 {
		t.Fatalf("got %d imports, want 3", len(err.Imports))
	}
	if err.Imports[0].Namespace != "env" || err.Imports[0].Name != "file_read" {
		t.Errorf("first import = %+v", err.Imports[0])
	}
	if err.Imports[2].Namespace != "wasi" {
		t.Errorf("third namespace = %q, want wasi", err.Imports[2].Namespace)
	}

	msg := err.Error()
	for _, s := range []string{"denied 3 import(s)", "env", "file_read", "net_connect", "wasi", "clock"} {
		if !strings.Contains(msg, s) {
			t.Errorf("message %q missing %q", msg, s)
		}
	}

	if !errors.Is(err, &DeniedImportsError{}) {
		t.Error("errors.Is should match DeniedImportsError type")
	}
}

func TestDeniedImportsError_Empty(t *testing.T) {
	err := &DeniedImportsError{}
	if !strings.Contains(err.Error(), "no imports specified") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

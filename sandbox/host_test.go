package sandbox_test

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/Nitefawkes/TenzikCore/errors"
	"github.com/Nitefawkes/TenzikCore/sandbox"
	"github.com/Nitefawkes/TenzikCore/wasm"
)

func TestHostInstantiateExportsGrantedFunctions(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	host := sandbox.NewHost(sandbox.HostConfig{
		Grant: sandbox.NewGrant(sandbox.CapHash, sandbox.CapTime),
	})
	mod, err := host.Instantiate(ctx, rt)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer mod.Close(ctx)

	for _, name := range []string{"hash_commit", "time_now_ms", "abort"} {
		if mod.ExportedFunction(name) == nil {
			t.Errorf("expected export %q", name)
		}
	}
	for _, name := range []string{"json_path", "base64_encode", "base64_decode", "random_bytes"} {
		if mod.ExportedFunction(name) != nil {
			t.Errorf("export %q present without its capability", name)
		}
	}
}

func TestHostTimeNowMSReturnsInjectedValue(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	host := sandbox.NewHost(sandbox.HostConfig{
		Grant:  sandbox.NewGrant(sandbox.CapTime),
		TimeMS: 1700000000123,
	})
	mod, err := host.Instantiate(ctx, rt)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer mod.Close(ctx)

	for i := 0; i < 3; i++ {
		results, err := mod.ExportedFunction("time_now_ms").Call(ctx)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got := int64(results[0]); got != 1700000000123 {
			t.Errorf("call %d returned %d, want 1700000000123", i, got)
		}
	}
}

func TestHostAccessLogRecordsCalls(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	host := sandbox.NewHost(sandbox.HostConfig{
		Grant:  sandbox.NewGrant(sandbox.CapTime),
		TimeMS: 42,
	})
	mod, err := host.Instantiate(ctx, rt)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer mod.Close(ctx)

	timeFn := mod.ExportedFunction("time_now_ms")
	if _, err := timeFn.Call(ctx); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := timeFn.Call(ctx); err != nil {
		t.Fatalf("second call: %v", err)
	}

	log := host.AccessLog()
	if len(log) != 2 {
		t.Fatalf("access log has %d entries, want 2", len(log))
	}
	for i, entry := range log {
		if entry.Sequence != uint64(i+1) {
			t.Errorf("entry %d sequence = %d, want %d", i, entry.Sequence, i+1)
		}
		if entry.Capability != sandbox.CapTime {
			t.Errorf("entry %d capability = %q, want %q", i, entry.Capability, sandbox.CapTime)
		}
		if entry.Function != "time_now_ms" {
			t.Errorf("entry %d function = %q", i, entry.Function)
		}
	}
	if host.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", host.Calls())
	}

	// The returned log is a copy.
	log[0].Function = "mutated"
	if host.AccessLog()[0].Function != "time_now_ms" {
		t.Error("AccessLog returned a live reference")
	}
}

func TestHostVerifyImports(t *testing.T) {
	host := sandbox.NewHost(sandbox.HostConfig{
		Grant: sandbox.NewGrant(sandbox.CapHash),
	})

	ok := []wasm.Import{
		{Module: "env", Name: "hash_commit"},
		{Module: "env", Name: "memory"},
		{Module: "env", Name: "abort"},
	}
	if err := host.VerifyImports(ok); err != nil {
		t.Fatalf("VerifyImports rejected allowed imports: %v", err)
	}

	denied := []wasm.Import{
		{Module: "env", Name: "hash_commit"},
		{Module: "env", Name: "random_bytes"},
	}
	err := host.VerifyImports(denied)
	if err == nil {
		t.Fatal("VerifyImports admitted an ungranted import")
	}
	if errors.KindOf(err) != errors.KindCapabilityDenied {
		t.Errorf("error kind = %q, want %q", errors.KindOf(err), errors.KindCapabilityDenied)
	}
}

func TestHostErrNilBeforeFailure(t *testing.T) {
	host := sandbox.NewHost(sandbox.HostConfig{Grant: sandbox.NewGrant(sandbox.CapHash)})
	if host.Err() != nil {
		t.Errorf("fresh host reports failure: %v", host.Err())
	}
	if len(host.AccessLog()) != 0 {
		t.Error("fresh host has access log entries")
	}
}

package wasm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/Nitefawkes/TenzikCore/wasm"
)

func TestValidate_Valid(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{Params: nil, Results: nil},
		},
		Funcs:    []uint32{0, 1},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "run", Kind: wasm.KindFunc, Idx: 0},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, wasm.OpI32Add, wasm.OpEnd}},
			{Code: []byte{wasm.OpEnd}},
		},
	}

	if err := m.Validate(); err != nil {
		t.Errorf("valid module failed validation: %v", err)
	}
}

func TestValidate_InvalidTypeIndex(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: nil, Results: nil},
		},
		Funcs: []uint32{5},
		Code:  []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("expected error for invalid type index")
	}
	if !strings.Contains(err.Error(), "type index 5 out of range") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidFunctionExport(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: nil, Results: nil},
		},
		Funcs: []uint32{0},
		Exports: []wasm.Export{
			{Name: "foo", Kind: wasm.KindFunc, Idx: 10},
		},
		Code: []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("expected error for invalid function export")
	}
	if !strings.Contains(err.Error(), "function index 10 out of range") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_DuplicateExportName(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: nil, Results: nil},
		},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "foo", Kind: wasm.KindFunc, Idx: 0},
			{Name: "foo", Kind: wasm.KindMemory, Idx: 0},
		},
		Code: []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate export name")
	}
	if !strings.Contains(err.Error(), "duplicate export name") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidStartSignature(t *testing.T) {
	startIdx := uint32(0)
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: nil},
		},
		Funcs: []uint32{0},
		Start: &startIdx,
		Code:  []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("expected error for invalid start function signature")
	}
	if !strings.Contains(err.Error(), "must have type () -> ()") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_DataCountMismatch(t *testing.T) {
	count := uint32(5)
	m := &wasm.Module{
		Memories:  []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		DataCount: &count,
		Data: []wasm.DataSegment{
			{Flags: 0, Offset: []byte{wasm.OpI32Const, 0x00, wasm.OpEnd}, Init: []byte{1, 2, 3}},
		},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("expected error for data count mismatch")
	}
	if !strings.Contains(err.Error(), "data count section says") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_CodeCountMismatch(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs: []uint32{0, 0},
		Code:  []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("expected error for code count mismatch")
	}
	if !strings.Contains(err.Error(), "code section has") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidElementFunctionIndex(t *testing.T) {
	m := &wasm.Module{
		Types:  []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs:  []uint32{0},
		Tables: []wasm.TableType{{ElemType: byte(wasm.ValFuncRef), Limits: wasm.Limits{Min: 1}}},
		Elements: []wasm.Element{
			{Flags: 0, Offset: []byte{wasm.OpI32Const, 0x00, wasm.OpEnd}, FuncIdxs: []uint32{9}},
		},
		Code: []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("expected error for invalid element function index")
	}
	if !strings.Contains(err.Error(), "function index 9 out of range") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_MultiResultType(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: nil, Results: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
		},
	}

	var fe *wasm.FeatureError
	if err := m.Validate(); !errors.As(err, &fe) || fe.Feature != "multi-value" {
		t.Errorf("expected multi-value feature error, got %v", err)
	}
}

func TestValidate_MultipleMemories(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.MemoryType{
			{Limits: wasm.Limits{Min: 1}},
			{Limits: wasm.Limits{Min: 1}},
		},
	}

	var fe *wasm.FeatureError
	if err := m.Validate(); !errors.As(err, &fe) || fe.Feature != "multi-memory" {
		t.Errorf("expected multi-memory feature error, got %v", err)
	}
}

func TestValidate_ImportedPlusLocalMemory(t *testing.T) {
	m := &wasm.Module{
		Imports: []wasm.Import{
			{Module: "env", Name: "memory", Desc: wasm.ImportDesc{
				Kind:   wasm.KindMemory,
				Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: 1}},
			}},
		},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
	}

	var fe *wasm.FeatureError
	if err := m.Validate(); !errors.As(err, &fe) || fe.Feature != "multi-memory" {
		t.Errorf("expected multi-memory feature error, got %v", err)
	}
}

func TestValidate_MemoryPageLimit(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 65537}}},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("expected error for memory over page limit")
	}
	if !strings.Contains(err.Error(), "exceeds limit") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_PassiveDataSegment(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Data: []wasm.DataSegment{
			{Flags: 1, Init: []byte{1, 2, 3}},
		},
	}

	var fe *wasm.FeatureError
	if err := m.Validate(); !errors.As(err, &fe) || fe.Feature != "bulk memory" {
		t.Errorf("expected bulk memory feature error, got %v", err)
	}
}

func TestValidate_PassiveElementSegment(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs: []uint32{0},
		Elements: []wasm.Element{
			{Flags: 1, ElemKind: 0x00, FuncIdxs: []uint32{0}},
		},
		Code: []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	var fe *wasm.FeatureError
	if err := m.Validate(); !errors.As(err, &fe) || fe.Feature != "bulk memory" {
		t.Errorf("expected bulk memory feature error, got %v", err)
	}
}

func TestValidate_DeclarativeElementSegment(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs: []uint32{0},
		Elements: []wasm.Element{
			{Flags: 3, ElemKind: 0x00, FuncIdxs: []uint32{0}},
		},
		Code: []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	if err := m.Validate(); err != nil {
		t.Errorf("declarative segment should validate: %v", err)
	}
}

func TestValidate_BulkMemoryOp(t *testing.T) {
	m := &wasm.Module{
		Types:    []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Code: []wasm.FuncBody{
			{Code: []byte{
				wasm.OpI32Const, 0x00,
				wasm.OpI32Const, 0x00,
				wasm.OpI32Const, 0x00,
				wasm.OpPrefixMisc, byte(wasm.MiscMemoryFill), 0x00,
				wasm.OpEnd,
			}},
		},
	}

	var fe *wasm.FeatureError
	if err := m.Validate(); !errors.As(err, &fe) || fe.Feature != "bulk memory" {
		t.Errorf("expected bulk memory feature error, got %v", err)
	}
}

func TestValidate_NonZeroMemoryIndex(t *testing.T) {
	m := &wasm.Module{
		Types:    []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Code: []wasm.FuncBody{
			{Code: []byte{
				wasm.OpI32Const, 0x00,
				wasm.OpI32Load, 0x42, 0x01, 0x00, // align with memidx bit, memidx=1, offset=0
				wasm.OpDrop,
				wasm.OpEnd,
			}},
		},
	}

	var fe *wasm.FeatureError
	if err := m.Validate(); !errors.As(err, &fe) || fe.Feature != "multi-memory" {
		t.Errorf("expected multi-memory feature error, got %v", err)
	}
}

func TestValidate_CallIndexOutOfRange(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpCall, 0x07, wasm.OpEnd}},
		},
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("expected error for call index out of range")
	}
	if !strings.Contains(err.Error(), "function index 7 out of range") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_GlobalInitRefFunc(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs: []uint32{0},
		Globals: []wasm.Global{
			{
				Type: wasm.GlobalType{ValType: wasm.ValFuncRef},
				Init: []byte{wasm.OpRefFunc, 0x00, wasm.OpEnd},
			},
		},
		Code: []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	if err := m.Validate(); err != nil {
		t.Errorf("ref.func global init should validate: %v", err)
	}
}

func TestParseModuleValidate(t *testing.T) {
	m := &wasm.Module{
		Types:    []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Code:     []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}

	parsed, err := wasm.ParseModuleValidate(m.Encode())
	if err != nil {
		t.Fatalf("ParseModuleValidate: %v", err)
	}
	if len(parsed.Funcs) != 1 {
		t.Errorf("expected 1 func, got %d", len(parsed.Funcs))
	}
}

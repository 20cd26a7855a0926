package wasm_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Nitefawkes/TenzikCore/wasm"
)

func TestInstructionRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		instrs []wasm.Instruction
	}{
		{
			"simple",
			[]wasm.Instruction{
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 42}},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"locals",
			[]wasm.Instruction{
				{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
				{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 1}},
				{Opcode: wasm.OpI32Add},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"block",
			[]wasm.Instruction{
				{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeI32}},
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
				{Opcode: wasm.OpEnd},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"if_else",
			[]wasm.Instruction{
				{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
				{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
				{Opcode: wasm.OpDrop},
				{Opcode: wasm.OpElse},
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 2}},
				{Opcode: wasm.OpDrop},
				{Opcode: wasm.OpEnd},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"loop",
			[]wasm.Instruction{
				{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
				{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: 0}},
				{Opcode: wasm.OpEnd},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"br_table",
			[]wasm.Instruction{
				{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
				{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: []uint32{0, 1, 2}, Default: 0}},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"calls",
			[]wasm.Instruction{
				{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 3}},
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 0}},
				{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: 2, TableIdx: 0}},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"memory",
			[]wasm.Instruction{
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 0}},
				{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Align: 2, Offset: 1024}},
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 0}},
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 42}},
				{Opcode: wasm.OpI32Store, Imm: wasm.MemoryImm{Align: 2, Offset: 0}},
				{Opcode: wasm.OpMemorySize, Imm: wasm.MemoryIdxImm{MemIdx: 0}},
				{Opcode: wasm.OpDrop},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"globals",
			[]wasm.Instruction{
				{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: 0}},
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
				{Opcode: wasm.OpI32Add},
				{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: 0}},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"floats",
			[]wasm.Instruction{
				{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: 1.5}},
				{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: -2.25}},
				{Opcode: wasm.OpF64PromoteF32},
				{Opcode: wasm.OpF64Add},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"large_immediates",
			[]wasm.Instruction{
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: -2147483648}},
				{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: 9223372036854775807}},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"sign_extension",
			[]wasm.Instruction{
				{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
				{Opcode: wasm.OpI32Extend8S},
				{Opcode: wasm.OpI64ExtendI32S},
				{Opcode: wasm.OpI64Extend32S},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"saturating_truncation",
			[]wasm.Instruction{
				{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
				{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscI32TruncSatF64S}},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"reference_types",
			[]wasm.Instruction{
				{Opcode: wasm.OpRefNull, Imm: wasm.RefNullImm{HeapType: int64(wasm.BlockTypeFuncRef)}},
				{Opcode: wasm.OpRefIsNull},
				{Opcode: wasm.OpDrop},
				{Opcode: wasm.OpRefFunc, Imm: wasm.RefFuncImm{FuncIdx: 1}},
				{Opcode: wasm.OpDrop},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"typed_select",
			[]wasm.Instruction{
				{Opcode: wasm.OpSelectType, Imm: wasm.SelectTypeImm{Types: []wasm.ValType{wasm.ValFuncRef}}},
				{Opcode: wasm.OpEnd},
			},
		},
		{
			"table_ops",
			[]wasm.Instruction{
				{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 0}},
				{Opcode: wasm.OpTableGet, Imm: wasm.TableImm{TableIdx: 0}},
				{Opcode: wasm.OpDrop},
				{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscTableSize, Operands: []uint32{0}}},
				{Opcode: wasm.OpDrop},
				{Opcode: wasm.OpEnd},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := wasm.EncodeInstructions(tt.instrs)
			decoded, err := wasm.DecodeInstructions(encoded)
			if err != nil {
				t.Fatalf("DecodeInstructions: %v", err)
			}
			if !reflect.DeepEqual(tt.instrs, decoded) {
				t.Errorf("round trip mismatch:\n want %+v\n got  %+v", tt.instrs, decoded)
			}
		})
	}
}

func TestDecodeRejectedOpcodes(t *testing.T) {
	tests := []struct {
		name    string
		feature string
		code    []byte
	}{
		{"try", "exception handling", []byte{wasm.OpTry, 0x40, wasm.OpEnd}},
		{"throw", "exception handling", []byte{wasm.OpThrow, 0x00, wasm.OpEnd}},
		{"return_call", "tail calls", []byte{wasm.OpReturnCall, 0x00, wasm.OpEnd}},
		{"return_call_indirect", "tail calls", []byte{wasm.OpReturnCallIndirect, 0x00, 0x00, wasm.OpEnd}},
		{"call_ref", "typed function references", []byte{wasm.OpCallRef, 0x00, wasm.OpEnd}},
		{"ref_as_non_null", "typed function references", []byte{wasm.OpRefAsNonNull, wasm.OpEnd}},
		{"br_on_null", "typed function references", []byte{wasm.OpBrOnNull, 0x00, wasm.OpEnd}},
		{"ref_eq", "garbage collection", []byte{wasm.OpRefEq, wasm.OpEnd}},
		{"gc_prefix", "garbage collection", []byte{wasm.OpPrefixGC, 0x00, wasm.OpEnd}},
		{"simd_prefix", "simd", []byte{wasm.OpPrefixSIMD, 0x00, wasm.OpEnd}},
		{"atomic_prefix", "threads", []byte{wasm.OpPrefixAtomic, 0x00, wasm.OpEnd}},
		{"ref_null_gc_heap", "garbage collection", []byte{wasm.OpRefNull, 0x6B, wasm.OpEnd}},
		{"multi_value_block", "multi-value", []byte{wasm.OpBlock, 0x01, wasm.OpEnd, wasm.OpEnd}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.DecodeInstructions(tt.code)

			var fe *wasm.FeatureError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FeatureError, got %v", err)
			}
			if fe.Feature != tt.feature {
				t.Errorf("expected feature %q, got %q", tt.feature, fe.Feature)
			}
		})
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := wasm.DecodeInstructions([]byte{0x27, wasm.OpEnd})
	if err == nil {
		t.Error("expected error for unknown opcode")
	}
}

func TestDecodeUnknownMiscSubOpcode(t *testing.T) {
	_, err := wasm.DecodeInstructions([]byte{wasm.OpPrefixMisc, 0x20, wasm.OpEnd})
	if err == nil {
		t.Error("expected error for unknown 0xFC sub-opcode")
	}
}

func TestDecodeTruncatedImmediate(t *testing.T) {
	_, err := wasm.DecodeInstructions([]byte{wasm.OpI32Const})
	if err == nil {
		t.Error("expected error for truncated immediate")
	}
}

package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Nitefawkes/TenzikCore/wasm/internal/binary"
)

// Instruction represents a decoded WebAssembly instruction
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type for block, loop, and if instructions.
type BlockImm struct {
	Type int32 // Block type: -64=void, -1=i32, -2=i64, -3=f32, -4=f64, >=0=type index
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call instruction.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect instruction.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
type MemoryImm struct {
	Offset uint64
	Align  uint32
	MemIdx uint32
}

// MemoryIdxImm holds memory index for memory.size, memory.grow
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds the constant value for i32.const instruction.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant value for i64.const instruction.
type I64Imm struct {
	Value int64
}

// F32Imm holds the constant value for f32.const instruction.
type F32Imm struct {
	Value float32
}

// F64Imm holds the constant value for f64.const instruction.
type F64Imm struct {
	Value float64
}

// MiscImm holds the sub-opcode and immediates for 0xFC prefix instructions
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// TableImm holds table index for table.get/table.set
type TableImm struct {
	TableIdx uint32
}

// RefNullImm holds the heap type for ref.null
type RefNullImm struct {
	HeapType int64 // Heap type encoded as s33 (funcref=-16, externref=-17)
}

// RefFuncImm holds the function index for ref.func
type RefFuncImm struct {
	FuncIdx uint32
}

// SelectTypeImm holds value types for typed select
type SelectTypeImm struct {
	Types []ValType
}

// DecodeInstructions decodes a sequence of instructions from raw bytes.
// Opcodes outside the capsule profile fail with a *FeatureError naming
// the proposal they belong to.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := binary.NewReader(bytes.NewReader(code))
	// Rough estimate: two bytes per instruction on average
	instrs := make([]Instruction, 0, len(code)/2)

	for {
		op, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		instr := Instruction{Opcode: op}

		switch op {
		case OpBlock, OpLoop, OpIf:
			bt, err := readBlockType(r)
			if err != nil {
				return nil, err
			}
			instr.Imm = BlockImm{Type: bt}

		case OpBr, OpBrIf:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			instr.Imm = BranchImm{LabelIdx: idx}

		case OpBrTable:
			count, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			labels := make([]uint32, count)
			for i := uint32(0); i < count; i++ {
				labels[i], err = r.ReadU32()
				if err != nil {
					return nil, err
				}
			}
			def, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			instr.Imm = BrTableImm{Labels: labels, Default: def}

		case OpCall:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			instr.Imm = CallImm{FuncIdx: idx}

		case OpCallIndirect:
			typeIdx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			tableIdx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

		case OpLocalGet, OpLocalSet, OpLocalTee:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			instr.Imm = LocalImm{LocalIdx: idx}

		case OpGlobalGet, OpGlobalSet:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			instr.Imm = GlobalImm{GlobalIdx: idx}

		case OpTableGet, OpTableSet:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			instr.Imm = TableImm{TableIdx: idx}

		case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
			OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
			OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
			OpI32Store, OpI64Store, OpF32Store, OpF64Store,
			OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
			memImm, err := readMemArg(r)
			if err != nil {
				return nil, err
			}
			instr.Imm = memImm

		case OpMemorySize, OpMemoryGrow:
			memIdx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			instr.Imm = MemoryIdxImm{MemIdx: memIdx}

		case OpI32Const:
			val, err := r.ReadS32()
			if err != nil {
				return nil, err
			}
			instr.Imm = I32Imm{Value: val}

		case OpI64Const:
			val, err := r.ReadS64()
			if err != nil {
				return nil, err
			}
			instr.Imm = I64Imm{Value: val}

		case OpF32Const:
			val, err := r.ReadF32()
			if err != nil {
				return nil, err
			}
			instr.Imm = F32Imm{Value: val}

		case OpF64Const:
			val, err := r.ReadF64()
			if err != nil {
				return nil, err
			}
			instr.Imm = F64Imm{Value: val}

		case OpRefNull:
			heapType, err := r.ReadS64()
			if err != nil {
				return nil, err
			}
			if heapType != int64(BlockTypeFuncRef) && heapType != int64(BlockTypeExternRef) {
				return nil, &FeatureError{Feature: "garbage collection", Detail: fmt.Sprintf("ref.null heap type %d", heapType)}
			}
			instr.Imm = RefNullImm{HeapType: heapType}

		case OpRefFunc:
			funcIdx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			instr.Imm = RefFuncImm{FuncIdx: funcIdx}

		case OpSelectType:
			count, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			types := make([]ValType, count)
			for i := uint32(0); i < count; i++ {
				t, err := r.ReadByte()
				if err != nil {
					return nil, err
				}
				if err := checkValType(t); err != nil {
					return nil, err
				}
				types[i] = ValType(t)
			}
			instr.Imm = SelectTypeImm{Types: types}

		// Instructions with no immediates
		case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect, OpRefIsNull,
			OpI32Eqz, OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU,
			OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU,
			OpI64Eqz, OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU,
			OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU,
			OpF32Eq, OpF32Ne, OpF32Lt, OpF32Gt, OpF32Le, OpF32Ge,
			OpF64Eq, OpF64Ne, OpF64Lt, OpF64Gt, OpF64Le, OpF64Ge,
			OpI32Clz, OpI32Ctz, OpI32Popcnt, OpI32Add, OpI32Sub, OpI32Mul,
			OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU, OpI32And, OpI32Or, OpI32Xor,
			OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr,
			OpI64Clz, OpI64Ctz, OpI64Popcnt, OpI64Add, OpI64Sub, OpI64Mul,
			OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU, OpI64And, OpI64Or, OpI64Xor,
			OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Rotl, OpI64Rotr,
			OpF32Abs, OpF32Neg, OpF32Ceil, OpF32Floor, OpF32Trunc, OpF32Nearest, OpF32Sqrt,
			OpF32Add, OpF32Sub, OpF32Mul, OpF32Div, OpF32Min, OpF32Max, OpF32Copysign,
			OpF64Abs, OpF64Neg, OpF64Ceil, OpF64Floor, OpF64Trunc, OpF64Nearest, OpF64Sqrt,
			OpF64Add, OpF64Sub, OpF64Mul, OpF64Div, OpF64Min, OpF64Max, OpF64Copysign,
			OpI32WrapI64, OpI32TruncF32S, OpI32TruncF32U, OpI32TruncF64S, OpI32TruncF64U,
			OpI64ExtendI32S, OpI64ExtendI32U, OpI64TruncF32S, OpI64TruncF32U,
			OpI64TruncF64S, OpI64TruncF64U,
			OpF32ConvertI32S, OpF32ConvertI32U, OpF32ConvertI64S, OpF32ConvertI64U, OpF32DemoteF64,
			OpF64ConvertI32S, OpF64ConvertI32U, OpF64ConvertI64S, OpF64ConvertI64U, OpF64PromoteF32,
			OpI32ReinterpretF32, OpI64ReinterpretF64, OpF32ReinterpretI32, OpF64ReinterpretI64,
			OpI32Extend8S, OpI32Extend16S, OpI64Extend8S, OpI64Extend16S, OpI64Extend32S:
			// No immediate

		case OpPrefixMisc:
			imm, err := decodeMiscImmediate(r)
			if err != nil {
				return nil, err
			}
			instr.Imm = imm

		case OpTry, OpCatch, OpThrow, OpRethrow, OpThrowRef, OpDelegate, OpCatchAll, OpTryTable:
			return nil, &FeatureError{Feature: "exception handling", Detail: fmt.Sprintf("opcode 0x%02x", op)}

		case OpReturnCall, OpReturnCallIndirect:
			return nil, &FeatureError{Feature: "tail calls", Detail: fmt.Sprintf("opcode 0x%02x", op)}

		case OpCallRef, OpReturnCallRef, OpRefAsNonNull, OpBrOnNull, OpBrOnNonNull:
			return nil, &FeatureError{Feature: "typed function references", Detail: fmt.Sprintf("opcode 0x%02x", op)}

		case OpRefEq:
			return nil, &FeatureError{Feature: "garbage collection", Detail: "opcode 0xd3"}

		case OpPrefixGC:
			return nil, &FeatureError{Feature: "garbage collection", Detail: "0xfb prefix"}

		case OpPrefixSIMD:
			return nil, &FeatureError{Feature: "simd", Detail: "0xfd prefix"}

		case OpPrefixAtomic:
			return nil, &FeatureError{Feature: "threads", Detail: "0xfe prefix"}

		default:
			return nil, fmt.Errorf("unknown opcode: 0x%02x", op)
		}

		instrs = append(instrs, instr)
	}

	return instrs, nil
}

// EncodeInstructions encodes instructions to bytes
func EncodeInstructions(instrs []Instruction) []byte {
	w := binary.NewWriter()
	for i := range instrs {
		encodeInstruction(w, &instrs[i])
	}
	return w.Bytes()
}

func encodeInstruction(w *binary.Writer, instr *Instruction) {
	w.Byte(instr.Opcode)

	switch instr.Opcode {
	case OpBlock, OpLoop, OpIf:
		imm := instr.Imm.(BlockImm)
		w.WriteS32(imm.Type)

	case OpBr, OpBrIf:
		imm := instr.Imm.(BranchImm)
		w.WriteU32(imm.LabelIdx)

	case OpBrTable:
		imm := instr.Imm.(BrTableImm)
		w.WriteU32(uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			w.WriteU32(l)
		}
		w.WriteU32(imm.Default)

	case OpCall:
		imm := instr.Imm.(CallImm)
		w.WriteU32(imm.FuncIdx)

	case OpCallIndirect:
		imm := instr.Imm.(CallIndirectImm)
		w.WriteU32(imm.TypeIdx)
		w.WriteU32(imm.TableIdx)

	case OpLocalGet, OpLocalSet, OpLocalTee:
		imm := instr.Imm.(LocalImm)
		w.WriteU32(imm.LocalIdx)

	case OpGlobalGet, OpGlobalSet:
		imm := instr.Imm.(GlobalImm)
		w.WriteU32(imm.GlobalIdx)

	case OpTableGet, OpTableSet:
		imm := instr.Imm.(TableImm)
		w.WriteU32(imm.TableIdx)

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		writeMemArg(w, instr.Imm.(MemoryImm))

	case OpMemorySize, OpMemoryGrow:
		imm := instr.Imm.(MemoryIdxImm)
		w.WriteU32(imm.MemIdx)

	case OpI32Const:
		imm := instr.Imm.(I32Imm)
		w.WriteS32(imm.Value)

	case OpI64Const:
		imm := instr.Imm.(I64Imm)
		w.WriteS64(imm.Value)

	case OpF32Const:
		imm := instr.Imm.(F32Imm)
		w.WriteF32(imm.Value)

	case OpF64Const:
		imm := instr.Imm.(F64Imm)
		w.WriteF64(imm.Value)

	case OpRefNull:
		imm := instr.Imm.(RefNullImm)
		w.WriteS64(imm.HeapType)

	case OpRefFunc:
		imm := instr.Imm.(RefFuncImm)
		w.WriteU32(imm.FuncIdx)

	case OpSelectType:
		imm := instr.Imm.(SelectTypeImm)
		w.WriteU32(uint32(len(imm.Types)))
		for _, t := range imm.Types {
			w.Byte(byte(t))
		}

	case OpPrefixMisc:
		imm := instr.Imm.(MiscImm)
		w.WriteU32(imm.SubOpcode)
		for _, operand := range imm.Operands {
			w.WriteU32(operand)
		}
	}
}

func decodeMiscImmediate(r *binary.Reader) (MiscImm, error) {
	subOp, err := r.ReadU32()
	if err != nil {
		return MiscImm{}, err
	}

	imm := MiscImm{SubOpcode: subOp}

	// Operand counts per sub-opcode. Bulk memory forms (8-14) decode here
	// so feature validation can reject them by name.
	var operandCount int
	switch subOp {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U,
		MiscI32TruncSatF64S, MiscI32TruncSatF64U,
		MiscI64TruncSatF32S, MiscI64TruncSatF32U,
		MiscI64TruncSatF64S, MiscI64TruncSatF64U:
		operandCount = 0
	case MiscDataDrop, MiscMemoryFill, MiscElemDrop,
		MiscTableGrow, MiscTableSize, MiscTableFill:
		operandCount = 1
	case MiscMemoryInit, MiscMemoryCopy, MiscTableInit, MiscTableCopy:
		operandCount = 2
	default:
		return MiscImm{}, fmt.Errorf("unknown 0xFC sub-opcode: 0x%02x", subOp)
	}

	if operandCount > 0 {
		imm.Operands = make([]uint32, operandCount)
		for i := 0; i < operandCount; i++ {
			imm.Operands[i], err = r.ReadU32()
			if err != nil {
				return MiscImm{}, err
			}
		}
	}

	return imm, nil
}

func readBlockType(r *binary.Reader) (int32, error) {
	bt, err := r.ReadS32()
	if err != nil {
		return 0, err
	}
	if bt >= 0 {
		return 0, &FeatureError{Feature: "multi-value", Detail: fmt.Sprintf("block type references function type %d", bt)}
	}
	switch bt {
	case BlockTypeVoid, BlockTypeI32, BlockTypeI64, BlockTypeF32, BlockTypeF64,
		BlockTypeFuncRef, BlockTypeExternRef:
		return bt, nil
	}
	return 0, fmt.Errorf("invalid block type: %d", bt)
}

// Multi-memory memarg bit flag
const memArgMultiMemBit = 0x40

// readMemArg reads a memarg. If bit 6 of align is set, a separate memidx
// LEB128 follows (multi-memory encoding); the index is preserved so
// feature validation can reject non-zero values.
func readMemArg(r *binary.Reader) (MemoryImm, error) {
	alignRaw, err := r.ReadU32()
	if err != nil {
		return MemoryImm{}, err
	}

	var memIdx uint32
	if alignRaw&memArgMultiMemBit != 0 {
		memIdx, err = r.ReadU32()
		if err != nil {
			return MemoryImm{}, err
		}
	}

	offset, err := r.ReadU64()
	if err != nil {
		return MemoryImm{}, err
	}

	return MemoryImm{
		Align:  alignRaw & ^uint32(memArgMultiMemBit),
		Offset: offset,
		MemIdx: memIdx,
	}, nil
}

func writeMemArg(w *binary.Writer, imm MemoryImm) {
	alignRaw := imm.Align
	if imm.MemIdx != 0 {
		alignRaw |= memArgMultiMemBit
	}
	w.WriteU32(alignRaw)
	if imm.MemIdx != 0 {
		w.WriteU32(imm.MemIdx)
	}
	w.WriteU64(imm.Offset)
}

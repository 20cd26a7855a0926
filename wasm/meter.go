package wasm

import "fmt"

// Names of the synthetic import added by InstrumentFuel. The host must
// provide a function tenzik.fuel with signature (i64) -> () that
// deducts the argument from the call's fuel budget.
const (
	MeterModule   = "tenzik"
	MeterFunction = "fuel"
)

// InstrumentFuel rewrites the module so that execution cost is reported
// to the host. A fuel import is prepended to the function index space
// and every function body is split into spans: the entry point and the
// targets of loop, if, and else. Each span charges its instruction
// count once, before the span runs, so a span is paid every time
// control enters it and loop iterations are charged per iteration.
//
// The pass shifts the function index space by one, so all call targets,
// ref.func operands, function exports, element segments, and the start
// index are remapped. The module must be validated first.
func InstrumentFuel(m *Module) error {
	for _, imp := range m.Imports {
		if imp.Module == MeterModule {
			return fmt.Errorf("module already imports from %q", MeterModule)
		}
	}

	typeIdx := m.AddType(FuncType{Params: []ValType{ValI64}})

	newImports := []Import{
		{
			Module: MeterModule,
			Name:   MeterFunction,
			Desc:   ImportDesc{Kind: KindFunc, TypeIdx: typeIdx},
		},
	}
	m.Imports = append(newImports, m.Imports...)

	if m.Start != nil {
		*m.Start++
	}
	for i := range m.Exports {
		if m.Exports[i].Kind == KindFunc {
			m.Exports[i].Idx++
		}
	}
	for i := range m.Elements {
		for j := range m.Elements[i].FuncIdxs {
			m.Elements[i].FuncIdxs[j]++
		}
		for j := range m.Elements[i].Exprs {
			expr, err := shiftFuncRefs(m.Elements[i].Exprs[j])
			if err != nil {
				return fmt.Errorf("element segment %d expr %d: %w", i, j, err)
			}
			m.Elements[i].Exprs[j] = expr
		}
	}
	for i := range m.Globals {
		init, err := shiftFuncRefs(m.Globals[i].Init)
		if err != nil {
			return fmt.Errorf("global %d init: %w", i, err)
		}
		m.Globals[i].Init = init
	}

	for i := range m.Code {
		instrs, err := DecodeInstructions(m.Code[i].Code)
		if err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
		for j := range instrs {
			switch imm := instrs[j].Imm.(type) {
			case CallImm:
				imm.FuncIdx++
				instrs[j].Imm = imm
			case RefFuncImm:
				imm.FuncIdx++
				instrs[j].Imm = imm
			}
		}
		m.Code[i].Code = EncodeInstructions(instrumentBody(instrs))
	}

	return nil
}

// shiftFuncRefs bumps ref.func operands in a constant expression by one.
func shiftFuncRefs(code []byte) ([]byte, error) {
	instrs, err := DecodeInstructions(code)
	if err != nil {
		return nil, err
	}
	changed := false
	for i := range instrs {
		if imm, ok := instrs[i].Imm.(RefFuncImm); ok {
			imm.FuncIdx++
			instrs[i].Imm = imm
			changed = true
		}
	}
	if !changed {
		return code, nil
	}
	return EncodeInstructions(instrs), nil
}

// instrumentBody inserts a fuel charge at the head of every span. The
// charge is an i64.const of the span's instruction count followed by a
// call to the fuel import at function index 0.
func instrumentBody(instrs []Instruction) []Instruction {
	out := make([]Instruction, 0, len(instrs)+8)
	out = appendCharge(out, spanCost(instrs, 0))
	for i, instr := range instrs {
		out = append(out, instr)
		switch instr.Opcode {
		case OpLoop, OpIf, OpElse:
			out = appendCharge(out, spanCost(instrs, i+1))
		}
	}
	return out
}

// spanCost counts instructions from start up to and including the next
// span boundary. The boundary instruction belongs to the span it ends,
// so every instruction is charged exactly once per entry.
func spanCost(instrs []Instruction, start int) int64 {
	var n int64
	for i := start; i < len(instrs); i++ {
		n++
		switch instrs[i].Opcode {
		case OpLoop, OpIf, OpElse:
			return n
		}
	}
	return n
}

func appendCharge(out []Instruction, cost int64) []Instruction {
	return append(out,
		Instruction{Opcode: OpI64Const, Imm: I64Imm{Value: cost}},
		Instruction{Opcode: OpCall, Imm: CallImm{FuncIdx: 0}},
	)
}

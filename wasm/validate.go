package wasm

import "fmt"

// FeatureError reports a construct from a post-MVP proposal that the
// deterministic profile does not admit. Feature names follow the
// proposal names (simd, threads, bulk memory, garbage collection).
type FeatureError struct {
	Feature string
	Detail  string
}

func (e *FeatureError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unsupported feature: %s", e.Feature)
	}
	return fmt.Sprintf("unsupported feature: %s (%s)", e.Feature, e.Detail)
}

// ParseModuleValidate parses and validates a module in one call.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks structural invariants: index bounds, export
// uniqueness, section count agreement, and the deterministic profile's
// restrictions (single memory, no shared memory, no passive segments,
// no bulk memory operations, single-result function types).
func (m *Module) Validate() error {
	if err := m.validateTypes(); err != nil {
		return err
	}
	if err := m.validateTypeIndices(); err != nil {
		return err
	}
	if err := m.validateFunctionIndices(); err != nil {
		return err
	}
	if err := m.validateTableIndices(); err != nil {
		return err
	}
	if err := m.validateMemoryIndices(); err != nil {
		return err
	}
	if err := m.validateGlobalIndices(); err != nil {
		return err
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	if err := m.validateMemories(); err != nil {
		return err
	}
	if err := m.validateSegments(); err != nil {
		return err
	}
	if err := m.validateCodeCount(); err != nil {
		return err
	}
	if err := m.validateDataCount(); err != nil {
		return err
	}
	return m.validateCode()
}

func (m *Module) validateTypes() error {
	for i, ft := range m.Types {
		if len(ft.Results) > 1 {
			return &FeatureError{Feature: "multi-value", Detail: fmt.Sprintf("type %d has %d results", i, len(ft.Results))}
		}
	}
	return nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return fmt.Errorf("import %d (%s.%s): type index %d out of range (%d types)",
				i, imp.Module, imp.Name, imp.Desc.TypeIdx, numTypes)
		}
	}
	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("function %d: type index %d out of range (%d types)", i, typeIdx, numTypes)
		}
	}
	return nil
}

func (m *Module) validateFunctionIndices() error {
	numFuncs := uint32(m.NumImportedFuncs()) + uint32(len(m.Funcs))

	if m.Start != nil && *m.Start >= numFuncs {
		return fmt.Errorf("start function index %d out of range (%d functions)", *m.Start, numFuncs)
	}
	for _, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Idx >= numFuncs {
			return fmt.Errorf("export %q: function index %d out of range (%d functions)", exp.Name, exp.Idx, numFuncs)
		}
	}
	for i, elem := range m.Elements {
		for _, funcIdx := range elem.FuncIdxs {
			if funcIdx >= numFuncs {
				return fmt.Errorf("element segment %d: function index %d out of range (%d functions)", i, funcIdx, numFuncs)
			}
		}
	}
	return nil
}

func (m *Module) validateTableIndices() error {
	numTables := uint32(m.NumImportedTables()) + uint32(len(m.Tables))
	for _, exp := range m.Exports {
		if exp.Kind == KindTable && exp.Idx >= numTables {
			return fmt.Errorf("export %q: table index %d out of range (%d tables)", exp.Name, exp.Idx, numTables)
		}
	}
	for i, elem := range m.Elements {
		if elem.IsPassive() || elem.IsDeclarative() {
			continue
		}
		if elem.TableIdx >= numTables {
			return fmt.Errorf("element segment %d: table index %d out of range (%d tables)", i, elem.TableIdx, numTables)
		}
	}
	return nil
}

func (m *Module) validateMemoryIndices() error {
	numMemories := uint32(m.NumImportedMemories()) + uint32(len(m.Memories))
	for _, exp := range m.Exports {
		if exp.Kind == KindMemory && exp.Idx >= numMemories {
			return fmt.Errorf("export %q: memory index %d out of range (%d memories)", exp.Name, exp.Idx, numMemories)
		}
	}
	for i, seg := range m.Data {
		if seg.Flags == 1 {
			continue
		}
		if seg.MemIdx >= numMemories {
			return fmt.Errorf("data segment %d: memory index %d out of range (%d memories)", i, seg.MemIdx, numMemories)
		}
	}
	return nil
}

func (m *Module) validateGlobalIndices() error {
	numGlobals := uint32(m.NumImportedGlobals()) + uint32(len(m.Globals))
	for _, exp := range m.Exports {
		if exp.Kind == KindGlobal && exp.Idx >= numGlobals {
			return fmt.Errorf("export %q: global index %d out of range (%d globals)", exp.Name, exp.Idx, numGlobals)
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]struct{}, len(m.Exports))
	for _, exp := range m.Exports {
		if _, dup := seen[exp.Name]; dup {
			return fmt.Errorf("duplicate export name: %q", exp.Name)
		}
		seen[exp.Name] = struct{}{}
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return fmt.Errorf("start function index %d has no type", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function %d must have type () -> ()", *m.Start)
	}
	return nil
}

func (m *Module) validateMemories() error {
	numMemories := uint32(m.NumImportedMemories()) + uint32(len(m.Memories))
	if numMemories > 1 {
		return &FeatureError{Feature: "multi-memory", Detail: fmt.Sprintf("%d memories", numMemories)}
	}

	check := func(mt MemoryType) error {
		if mt.Limits.Shared {
			return &FeatureError{Feature: "threads", Detail: "shared memory"}
		}
		if mt.Limits.Min > MemoryMaxPages {
			return fmt.Errorf("memory min %d pages exceeds limit of %d", mt.Limits.Min, MemoryMaxPages)
		}
		if mt.Limits.Max != nil && *mt.Limits.Max > MemoryMaxPages {
			return fmt.Errorf("memory max %d pages exceeds limit of %d", *mt.Limits.Max, MemoryMaxPages)
		}
		return nil
	}

	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory {
			if err := check(*imp.Desc.Memory); err != nil {
				return err
			}
		}
		if imp.Desc.Kind == KindTable && imp.Desc.Table.Limits.Shared {
			return fmt.Errorf("import %s.%s: tables cannot be shared", imp.Module, imp.Name)
		}
	}
	for _, mt := range m.Memories {
		if err := check(mt); err != nil {
			return err
		}
	}
	for i, t := range m.Tables {
		if t.Limits.Shared {
			return fmt.Errorf("table %d: tables cannot be shared", i)
		}
	}
	return nil
}

func (m *Module) validateSegments() error {
	for i, seg := range m.Data {
		if seg.Flags == 1 {
			return &FeatureError{Feature: "bulk memory", Detail: fmt.Sprintf("passive data segment %d", i)}
		}
	}
	for i, elem := range m.Elements {
		if elem.IsPassive() {
			return &FeatureError{Feature: "bulk memory", Detail: fmt.Sprintf("passive element segment %d", i)}
		}
	}
	return nil
}

func (m *Module) validateCodeCount() error {
	if len(m.Funcs) != len(m.Code) {
		return fmt.Errorf("function section has %d entries but code section has %d", len(m.Funcs), len(m.Code))
	}
	return nil
}

func (m *Module) validateDataCount() error {
	if m.DataCount != nil && *m.DataCount != uint32(len(m.Data)) {
		return fmt.Errorf("data count section says %d segments but data section has %d", *m.DataCount, len(m.Data))
	}
	return nil
}

// validateCode decodes every function body and rejects instructions
// outside the profile: bulk memory operations and non-zero memory
// indices. Index operands are bounds checked here so a bad module
// fails before it reaches the runtime.
func (m *Module) validateCode() error {
	numFuncs := uint32(m.NumImportedFuncs()) + uint32(len(m.Funcs))
	numTables := uint32(m.NumImportedTables()) + uint32(len(m.Tables))
	numGlobals := uint32(m.NumImportedGlobals()) + uint32(len(m.Globals))
	numTypes := uint32(len(m.Types))

	checkInstr := func(instr *Instruction) error {
		switch imm := instr.Imm.(type) {
		case MemoryImm:
			if imm.MemIdx != 0 {
				return &FeatureError{Feature: "multi-memory", Detail: fmt.Sprintf("memory index %d", imm.MemIdx)}
			}
		case MemoryIdxImm:
			if imm.MemIdx != 0 {
				return &FeatureError{Feature: "multi-memory", Detail: fmt.Sprintf("memory index %d", imm.MemIdx)}
			}
		case CallImm:
			if imm.FuncIdx >= numFuncs {
				return fmt.Errorf("call: function index %d out of range (%d functions)", imm.FuncIdx, numFuncs)
			}
		case RefFuncImm:
			if imm.FuncIdx >= numFuncs {
				return fmt.Errorf("ref.func: function index %d out of range (%d functions)", imm.FuncIdx, numFuncs)
			}
		case CallIndirectImm:
			if imm.TypeIdx >= numTypes {
				return fmt.Errorf("call_indirect: type index %d out of range (%d types)", imm.TypeIdx, numTypes)
			}
			if imm.TableIdx >= numTables {
				return fmt.Errorf("call_indirect: table index %d out of range (%d tables)", imm.TableIdx, numTables)
			}
		case GlobalImm:
			if imm.GlobalIdx >= numGlobals {
				return fmt.Errorf("global index %d out of range (%d globals)", imm.GlobalIdx, numGlobals)
			}
		case TableImm:
			if imm.TableIdx >= numTables {
				return fmt.Errorf("table index %d out of range (%d tables)", imm.TableIdx, numTables)
			}
		case MiscImm:
			if imm.SubOpcode >= MiscMemoryInit && imm.SubOpcode <= MiscTableCopy {
				return &FeatureError{Feature: "bulk memory", Detail: fmt.Sprintf("operation 0xFC %d", imm.SubOpcode)}
			}
			if imm.SubOpcode >= MiscTableGrow && imm.SubOpcode <= MiscTableFill {
				if len(imm.Operands) > 0 && imm.Operands[0] >= numTables {
					return fmt.Errorf("table index %d out of range (%d tables)", imm.Operands[0], numTables)
				}
			}
		}
		return nil
	}

	walk := func(code []byte, what string) error {
		instrs, err := DecodeInstructions(code)
		if err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		for i := range instrs {
			if err := checkInstr(&instrs[i]); err != nil {
				return fmt.Errorf("%s: %w", what, err)
			}
		}
		return nil
	}

	for i := range m.Code {
		if err := walk(m.Code[i].Code, fmt.Sprintf("function %d", i)); err != nil {
			return err
		}
	}
	for i := range m.Globals {
		if err := walk(m.Globals[i].Init, fmt.Sprintf("global %d init", i)); err != nil {
			return err
		}
	}
	for i := range m.Elements {
		for j := range m.Elements[i].Exprs {
			if err := walk(m.Elements[i].Exprs[j], fmt.Sprintf("element segment %d expr %d", i, j)); err != nil {
				return err
			}
		}
	}
	return nil
}

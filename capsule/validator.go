package capsule

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Nitefawkes/TenzikCore/errors"
	"github.com/Nitefawkes/TenzikCore/sandbox"
	"github.com/Nitefawkes/TenzikCore/wasm"
)

// DefaultMaxSize is the capsule size ceiling in bytes. Capsules are
// meant to stay tiny; 5 KB keeps that discipline enforceable.
const DefaultMaxSize = 5 * 1024

// Exports every runnable capsule must provide.
const (
	ExportRun    = "run"
	ExportMemory = "memory"
)

// runSignature is the required shape of the run export: input pointer
// and length in, packed (output_len << 16) | output_ptr out.
var runSignature = wasm.FuncType{
	Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
	Results: []wasm.ValType{wasm.ValI32},
}

// ValidationResult reports everything validation learned about a
// capsule, including what was seen before a failing stage.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	SizeBytes int      `json:"size_bytes"`
	SizeKB    float64  `json:"size_kb"`
	Exports   []string `json:"exports,omitempty"`
	Imports   []string `json:"imports,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Validator performs the static capsule checks: size ceiling, binary
// well-formedness, required exports, and the import allowlist. It never
// instantiates guest code.
type Validator struct {
	maxSize int
	grant   sandbox.Grant
}

// NewValidator creates a validator with the given size ceiling and
// capability grant. maxSize <= 0 falls back to DefaultMaxSize.
func NewValidator(maxSize int, grant sandbox.Grant) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Validator{maxSize: maxSize, grant: grant}
}

// MaxSize returns the size ceiling in bytes.
func (v *Validator) MaxSize() int { return v.maxSize }

// MaxSizeKB returns the size ceiling in kilobytes.
func (v *Validator) MaxSizeKB() float64 { return float64(v.maxSize) / 1024.0 }

// Validate runs the checks in fail-fast order: size, parse, required
// exports, imports. The returned result always carries the size and
// whatever was extracted before the failing stage; the error is the
// failing stage's typed error, nil when the capsule is valid.
func (v *Validator) Validate(data []byte) (*ValidationResult, error) {
	result := &ValidationResult{
		SizeBytes: len(data),
		SizeKB:    float64(len(data)) / 1024.0,
	}

	if len(data) > v.maxSize {
		return failWith(result, errors.TooLarge(len(data), v.maxSize))
	}
	if len(data) > v.maxSize*80/100 {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"capsule size (%.1f KB) is approaching the limit (%.1f KB)",
			result.SizeKB, v.MaxSizeKB()))
	}

	module, err := wasm.ParseModuleValidate(data)
	if err != nil {
		return failWith(result, errors.Malformed(err))
	}

	for _, exp := range module.Exports {
		result.Exports = append(result.Exports, exp.Name)
	}
	for _, imp := range module.Imports {
		result.Imports = append(result.Imports, imp.Module+"."+imp.Name)
	}

	if err := checkRunExport(module); err != nil {
		return failWith(result, err)
	}
	if err := checkMemoryExport(module); err != nil {
		return failWith(result, err)
	}

	var denied []string
	for i := range module.Imports {
		imp := &module.Imports[i]
		if !v.grant.Allows(imp.Module, imp.Name) {
			denied = append(denied, imp.Module+"."+imp.Name)
		}
	}
	if len(denied) > 0 {
		for _, d := range denied {
			result.Errors = append(result.Errors, "unauthorized import: "+d)
		}
		return result, errors.Wrap(errors.PhaseValidate, errors.KindUnauthorizedImport,
			errors.NewDeniedImportsError(denied),
			fmt.Sprintf("%d import(s) outside the capability grant", len(denied)))
	}

	result.Valid = true
	Logger().Debug("capsule validated",
		zap.Int("size_bytes", result.SizeBytes),
		zap.Strings("exports", result.Exports),
		zap.Strings("imports", result.Imports))
	return result, nil
}

func failWith(result *ValidationResult, err error) (*ValidationResult, error) {
	result.Errors = append(result.Errors, err.Error())
	return result, err
}

func checkRunExport(m *wasm.Module) error {
	for _, exp := range m.Exports {
		if exp.Name != ExportRun {
			continue
		}
		if exp.Kind != wasm.KindFunc {
			return errors.MissingExport(ExportRun, "exported but not a function")
		}
		ft := m.GetFuncType(exp.Idx)
		if ft == nil {
			return errors.MissingExport(ExportRun, "function index out of range")
		}
		if !sameSignature(*ft, runSignature) {
			return errors.MissingExport(ExportRun, fmt.Sprintf(
				"signature must be %s, found %s", runSignature, *ft))
		}
		return nil
	}
	return errors.MissingExport(ExportRun, "capsule entry point not exported")
}

func checkMemoryExport(m *wasm.Module) error {
	for _, exp := range m.Exports {
		if exp.Name != ExportMemory {
			continue
		}
		if exp.Kind != wasm.KindMemory {
			return errors.MissingExport(ExportMemory, "exported but not a memory")
		}
		return nil
	}
	return errors.MissingExport(ExportMemory, "linear memory not exported")
}

func sameSignature(a, b wasm.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

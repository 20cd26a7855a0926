package config

import (
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/Nitefawkes/TenzikCore/errors"
	"github.com/Nitefawkes/TenzikCore/sandbox"
)

// Profile is a runner configuration loaded from an HCL file. Attribute
// expressions can reference the built-in presets, so a profile starts
// from one and overrides single fields:
//
//	preset = "production"
//
//	limits {
//	  fuel_limit   = presets.development.fuel_limit
//	  capabilities = ["hash", "json"]
//	}
type Profile struct {
	Preset         string       `hcl:"preset,optional"`
	KeyFile        string       `hcl:"key_file,optional"`
	RecordFailures bool         `hcl:"record_failures,optional"`
	Limits         *limitsBlock `hcl:"limits,block"`
}

// limitsBlock mirrors Limits with every attribute optional. Pointer
// fields tell an absent attribute apart from an explicit zero. Module
// size is KB-denominated here; Limits carries it in bytes.
type limitsBlock struct {
	MaxModuleSizeKB *int      `hcl:"max_module_size_kb,optional"`
	MemoryLimitMB   *uint32   `hcl:"memory_limit_mb,optional"`
	ExecutionTimeMS *uint64   `hcl:"execution_time_ms,optional"`
	FuelLimit       *uint64   `hcl:"fuel_limit,optional"`
	Capabilities    *[]string `hcl:"capabilities,optional"`
}

// Load reads and decodes a profile file.
func Load(path string) (*Profile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read profile")
	}
	return Parse(path, src)
}

// Parse decodes profile source. The filename appears in diagnostics.
func Parse(filename string, src []byte) (*Profile, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, diags, "parse profile")
	}

	var p Profile
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &p); diags.HasErrors() {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, diags, "decode profile")
	}
	return &p, nil
}

// Resolve produces the effective limits: the named preset (default when
// unset) with the limits block applied on top.
func (p *Profile) Resolve() (Limits, error) {
	base := Default()
	if p.Preset != "" {
		preset, ok := Preset(p.Preset)
		if !ok {
			return Limits{}, errors.NotFound(errors.PhaseConfig, "preset", p.Preset)
		}
		base = preset
	}

	if b := p.Limits; b != nil {
		if b.MaxModuleSizeKB != nil {
			base.MaxModuleBytes = *b.MaxModuleSizeKB * 1024
		}
		if b.MemoryLimitMB != nil {
			base.MemoryLimitMB = *b.MemoryLimitMB
		}
		if b.ExecutionTimeMS != nil {
			base.ExecutionTimeMS = *b.ExecutionTimeMS
		}
		if b.FuelLimit != nil {
			base.FuelLimit = *b.FuelLimit
		}
		if b.Capabilities != nil {
			caps := make([]sandbox.Capability, 0, len(*b.Capabilities))
			for _, name := range *b.Capabilities {
				c, err := sandbox.ParseCapability(name)
				if err != nil {
					return Limits{}, err
				}
				caps = append(caps, c)
			}
			base.Capabilities = caps
		}
	}

	if err := base.Validate(); err != nil {
		return Limits{}, err
	}
	return base, nil
}

// evalContext exposes the presets to profile expressions as
// presets.<name>.<field>.
func evalContext() *hcl.EvalContext {
	presets := make(map[string]cty.Value)
	for _, name := range PresetNames() {
		l, _ := Preset(name)
		presets[name] = presetValue(l)
	}

	vars := make(map[string]cty.Value)
	vars["presets"] = cty.ObjectVal(presets)
	return &hcl.EvalContext{Variables: vars}
}

func presetValue(l Limits) cty.Value {
	caps := make([]cty.Value, 0, len(l.Capabilities))
	for _, c := range l.Capabilities {
		caps = append(caps, cty.StringVal(string(c)))
	}
	return cty.ObjectVal(map[string]cty.Value{
		"max_module_size_kb": cty.NumberIntVal(int64(l.MaxModuleBytes / 1024)),
		"memory_limit_mb":    cty.NumberIntVal(int64(l.MemoryLimitMB)),
		"execution_time_ms":  cty.NumberIntVal(int64(l.ExecutionTimeMS)),
		"fuel_limit":         cty.NumberIntVal(int64(l.FuelLimit)),
		"capabilities":       cty.ListVal(caps),
	})
}

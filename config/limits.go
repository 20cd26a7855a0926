package config

import (
	"github.com/Nitefawkes/TenzikCore/capsule"
	"github.com/Nitefawkes/TenzikCore/errors"
	"github.com/Nitefawkes/TenzikCore/sandbox"
)

// Limits bounds one capsule execution. The zero value is not runnable;
// start from a preset and override fields as needed.
type Limits struct {
	// MaxModuleBytes caps the capsule binary size at validation.
	MaxModuleBytes int

	// MemoryLimitMB caps guest linear memory.
	MemoryLimitMB uint32

	// ExecutionTimeMS is the wall-clock budget for one run call.
	ExecutionTimeMS uint64

	// FuelLimit is the instruction budget for one run call.
	FuelLimit uint64

	// Capabilities granted to the capsule at bind time.
	Capabilities []sandbox.Capability
}

// Default is the balanced preset: moderate budgets, hash and json access.
func Default() Limits {
	return Limits{
		MaxModuleBytes:  capsule.DefaultMaxSize,
		MemoryLimitMB:   32,
		ExecutionTimeMS: 1000,
		FuelLimit:       1_000_000,
		Capabilities:    []sandbox.Capability{sandbox.CapHash, sandbox.CapJSON},
	}
}

// Development is the permissive preset: generous budgets, every capability.
func Development() Limits {
	return Limits{
		MaxModuleBytes:  capsule.DefaultMaxSize,
		MemoryLimitMB:   64,
		ExecutionTimeMS: 5000,
		FuelLimit:       10_000_000,
		Capabilities:    sandbox.All(),
	}
}

// Production is the restrictive preset: tight budgets, hashing only.
func Production() Limits {
	return Limits{
		MaxModuleBytes:  capsule.DefaultMaxSize,
		MemoryLimitMB:   16,
		ExecutionTimeMS: 500,
		FuelLimit:       500_000,
		Capabilities:    []sandbox.Capability{sandbox.CapHash},
	}
}

// Preset returns the named built-in preset.
func Preset(name string) (Limits, bool) {
	switch name {
	case "default":
		return Default(), true
	case "development":
		return Development(), true
	case "production":
		return Production(), true
	}
	return Limits{}, false
}

// PresetNames lists the built-in presets.
func PresetNames() []string {
	return []string{"default", "development", "production"}
}

// Grant converts the capability list into a sandbox grant.
func (l Limits) Grant() sandbox.Grant {
	return sandbox.NewGrant(l.Capabilities...)
}

// Validate rejects limits no execution could satisfy.
func (l Limits) Validate() error {
	switch {
	case l.MaxModuleBytes <= 0:
		return errors.InvalidInput(errors.PhaseConfig, "max module size must be positive")
	case l.MemoryLimitMB == 0:
		return errors.InvalidInput(errors.PhaseConfig, "memory limit must be positive")
	case l.ExecutionTimeMS == 0:
		return errors.InvalidInput(errors.PhaseConfig, "execution time limit must be positive")
	case l.FuelLimit == 0:
		return errors.InvalidInput(errors.PhaseConfig, "fuel limit must be positive")
	}
	for _, c := range l.Capabilities {
		if _, err := sandbox.ParseCapability(string(c)); err != nil {
			return err
		}
	}
	return nil
}

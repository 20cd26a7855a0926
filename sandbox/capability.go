package sandbox

import (
	"github.com/Nitefawkes/TenzikCore/errors"
)

// HostNamespace is the only import namespace capsules may use. Imports
// from any other namespace are rejected before binding.
const HostNamespace = "env"

// Structural imports admitted regardless of the granted capabilities.
// AssemblyScript emits env.abort unconditionally, and env.memory covers
// toolchains that import linear memory instead of exporting it.
const (
	structuralMemory = "memory"
	structuralAbort  = "abort"
)

// Capability names a family of host functions a capsule may be granted.
// The set is closed: a new host function joins an existing family or
// gets a new constant here.
type Capability string

const (
	CapHash   Capability = "hash"
	CapJSON   Capability = "json"
	CapBase64 Capability = "base64"
	CapTime   Capability = "time"
	CapRandom Capability = "random"
)

// Host function names, grouped by the capability that grants them.
const (
	FuncHashCommit   = "hash_commit"
	FuncJSONPath     = "json_path"
	FuncBase64Encode = "base64_encode"
	FuncBase64Decode = "base64_decode"
	FuncTimeNowMS    = "time_now_ms"
	FuncRandomBytes  = "random_bytes"
)

// capabilityFuncs fixes the capability to host-function mapping. The
// function sets are disjoint; CapabilityFor relies on that.
var capabilityFuncs = map[Capability][]string{
	CapHash:   {FuncHashCommit},
	CapJSON:   {FuncJSONPath},
	CapBase64: {FuncBase64Encode, FuncBase64Decode},
	CapTime:   {FuncTimeNowMS},
	CapRandom: {FuncRandomBytes},
}

// All returns every capability in declaration order.
func All() []Capability {
	return []Capability{CapHash, CapJSON, CapBase64, CapTime, CapRandom}
}

// ParseCapability converts a profile or CLI string into a Capability.
// Unknown names are rejected.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if _, ok := capabilityFuncs[c]; !ok {
		return "", errors.NotFound(errors.PhaseSecurity, "capability", s)
	}
	return c, nil
}

func (c Capability) String() string { return string(c) }

// Description returns a short human-readable summary of what the
// capability exposes.
func (c Capability) Description() string {
	switch c {
	case CapHash:
		return "SHA-256 commitment hashing"
	case CapJSON:
		return "JSON path extraction"
	case CapBase64:
		return "Base64 encoding and decoding"
	case CapTime:
		return "Deterministic timestamp access"
	case CapRandom:
		return "Deterministic random byte generation"
	default:
		return "unknown capability"
	}
}

// Functions returns the host function names this capability grants.
func (c Capability) Functions() []string {
	funcs := capabilityFuncs[c]
	out := make([]string, len(funcs))
	copy(out, funcs)
	return out
}

// CapabilityFor reports which capability grants the named host function.
func CapabilityFor(name string) (Capability, bool) {
	for _, c := range All() {
		for _, fn := range capabilityFuncs[c] {
			if fn == name {
				return c, true
			}
		}
	}
	return "", false
}

// Grant is an immutable capability set together with the host-function
// allowlist derived from it. The zero value grants nothing; structural
// imports are still admitted.
type Grant struct {
	caps  map[Capability]bool
	funcs map[string]Capability
}

// NewGrant builds a grant from the given capabilities. Duplicates and
// unknown values are dropped.
func NewGrant(caps ...Capability) Grant {
	g := Grant{
		caps:  make(map[Capability]bool, len(caps)),
		funcs: make(map[string]Capability),
	}
	for _, c := range caps {
		funcs, ok := capabilityFuncs[c]
		if !ok || g.caps[c] {
			continue
		}
		g.caps[c] = true
		for _, fn := range funcs {
			g.funcs[fn] = c
		}
	}
	return g
}

// Has reports whether the capability is granted.
func (g Grant) Has(c Capability) bool { return g.caps[c] }

// Capabilities returns the granted set in declaration order.
func (g Grant) Capabilities() []Capability {
	var out []Capability
	for _, c := range All() {
		if g.caps[c] {
			out = append(out, c)
		}
	}
	return out
}

// Functions returns the granted host function names in declaration
// order. This is exactly the set the bound host module exports.
func (g Grant) Functions() []string {
	var out []string
	for _, c := range g.Capabilities() {
		out = append(out, capabilityFuncs[c]...)
	}
	return out
}

// Allows reports whether the import (namespace, name) is admitted by
// this grant. Host functions live under env; env.memory and env.abort
// are structural and always pass.
func (g Grant) Allows(namespace, name string) bool {
	if namespace != HostNamespace {
		return false
	}
	if name == structuralMemory || name == structuralAbort {
		return true
	}
	_, ok := g.funcs[name]
	return ok
}

// FunctionCapability reports the capability that granted a bound host
// function name.
func (g Grant) FunctionCapability(name string) (Capability, bool) {
	c, ok := g.funcs[name]
	return c, ok
}

// Package config holds the resource limits a capsule runs under.
//
// Limits carries the module size ceiling, the memory, wall-clock, and
// fuel budgets, and the capability list a run grants. Three presets
// cover the usual deployments:
//
//	Preset        Memory  Time    Fuel        Capabilities
//	─────────────────────────────────────────────────────────
//	default       32 MB   1000ms  1,000,000   hash, json
//	development   64 MB   5000ms  10,000,000  all
//	production    16 MB   500ms   500,000     hash
//
// Profiles are HCL files that pick a preset and override fields.
// Profile expressions see the presets under a presets variable, so a
// single budget can be borrowed from another preset without restating
// the rest.
package config

package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/Nitefawkes/TenzikCore/errors"
	"github.com/Nitefawkes/TenzikCore/wasm"
)

// Exit codes used to force-close a capsule from host code. The engine
// maps them back to typed errors after the guest call unwinds.
const (
	ExitHostFailure uint32 = 0xE1
	ExitAbort       uint32 = 0xE2
)

// Content-level statuses returned to the guest. Bad pointers abort the
// execution instead of returning a status.
const (
	statusBadInput int32 = -1
	statusTooLarge int32 = -2
)

// i32Result encodes an i32 return value for the wazero call stack.
func i32Result(v int32) uint64 { return uint64(uint32(v)) }

// AccessEntry records one host function call admitted by the sandbox.
// The log is advisory: it reports what the capsule touched, it does not
// gate anything.
type AccessEntry struct {
	Sequence   uint64     `json:"sequence"`
	Capability Capability `json:"capability"`
	Function   string     `json:"function"`
	Detail     string     `json:"detail,omitempty"`
}

// HostConfig fixes the deterministic inputs for one execution.
type HostConfig struct {
	Grant Grant

	// TimeMS is the value time_now_ms returns for the whole execution.
	TimeMS int64

	// Seed keys the random_bytes stream. Identical seeds produce
	// identical streams.
	Seed []byte
}

// Host is the bound host side of a single execution: the granted
// functions, the deterministic time and random sources, and the access
// log. A Host is single-use and not safe for concurrent calls; the
// guest is single-threaded so host calls arrive serially.
type Host struct {
	grant  Grant
	timeMS int64
	seed   []byte

	randCounter uint64
	randPend    []byte

	calls   uint64
	log     []AccessEntry
	failure error
}

// NewHost creates the host side of one execution.
func NewHost(cfg HostConfig) *Host {
	return &Host{
		grant:  cfg.Grant,
		timeMS: cfg.TimeMS,
		seed:   append([]byte(nil), cfg.Seed...),
	}
}

// VerifyImports re-checks every capsule import against the grant.
// Validation already performed this check; binding refuses to proceed
// on a module that slipped past it.
func (h *Host) VerifyImports(imports []wasm.Import) error {
	for i := range imports {
		imp := &imports[i]
		if !h.grant.Allows(imp.Module, imp.Name) {
			return errors.CapabilityDenied(imp.Module, imp.Name)
		}
	}
	return nil
}

// Instantiate builds the env host module on r containing exactly the
// granted functions plus the structural abort handler.
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64

	builder := r.NewHostModuleBuilder(HostNamespace)

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.abort),
			[]api.ValueType{i32, i32, i32, i32}, nil).
		Export(structuralAbort)

	for _, name := range h.grant.Functions() {
		switch name {
		case FuncHashCommit:
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(h.hashCommit),
					[]api.ValueType{i32, i32, i32}, []api.ValueType{i32}).
				Export(name)
		case FuncJSONPath:
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(h.jsonPath),
					[]api.ValueType{i32, i32, i32, i32, i32, i32}, []api.ValueType{i32}).
				Export(name)
		case FuncBase64Encode:
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(h.base64Encode),
					[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
				Export(name)
		case FuncBase64Decode:
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(h.base64Decode),
					[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
				Export(name)
		case FuncTimeNowMS:
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(h.timeNowMS),
					nil, []api.ValueType{i64}).
				Export(name)
		case FuncRandomBytes:
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(h.randomBytes),
					[]api.ValueType{i32, i32}, []api.ValueType{i32}).
				Export(name)
		}
	}

	Logger().Debug("host module bound",
		zap.Strings("functions", h.grant.Functions()))

	return builder.Instantiate(ctx)
}

// AccessLog returns a copy of the entries recorded so far.
func (h *Host) AccessLog() []AccessEntry {
	out := make([]AccessEntry, len(h.log))
	copy(out, h.log)
	return out
}

// Calls returns the number of host function calls made by the guest.
func (h *Host) Calls() uint64 { return h.calls }

// Err returns the error that force-closed the guest, if any.
func (h *Host) Err() error { return h.failure }

func (h *Host) logCall(c Capability, fn, detail string) {
	h.calls++
	h.log = append(h.log, AccessEntry{
		Sequence:   h.calls,
		Capability: c,
		Function:   fn,
		Detail:     detail,
	})
}

func (h *Host) failCall(ctx context.Context, mod api.Module, fn string, cause error) {
	if h.failure == nil {
		h.failure = errors.HostFailure(fn, cause)
	}
	Logger().Debug("host function failed",
		zap.String("function", fn), zap.Error(cause))
	_ = mod.CloseWithExitCode(ctx, ExitHostFailure)
}

func (h *Host) failOOB(ctx context.Context, mod api.Module, fn string, ptr, n uint32) {
	h.failCall(ctx, mod, fn,
		fmt.Errorf("out of bounds memory access at %d (%d bytes)", ptr, n))
}

func (h *Host) hashCommit(ctx context.Context, mod api.Module, stack []uint64) {
	ptr := uint32(stack[0])
	length := uint32(stack[1])
	outPtr := uint32(stack[2])

	h.logCall(CapHash, FuncHashCommit, fmt.Sprintf("%d bytes", length))

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		h.failOOB(ctx, mod, FuncHashCommit, ptr, length)
		return
	}
	sum := sha256.Sum256(data)
	if !mod.Memory().Write(outPtr, sum[:]) {
		h.failOOB(ctx, mod, FuncHashCommit, outPtr, sha256.Size)
		return
	}
	stack[0] = i32Result(0)
}

func (h *Host) jsonPath(ctx context.Context, mod api.Module, stack []uint64) {
	docPtr := uint32(stack[0])
	docLen := uint32(stack[1])
	pathPtr := uint32(stack[2])
	pathLen := uint32(stack[3])
	outPtr := uint32(stack[4])
	outCap := uint32(stack[5])

	doc, ok := mod.Memory().Read(docPtr, docLen)
	if !ok {
		h.logCall(CapJSON, FuncJSONPath, "")
		h.failOOB(ctx, mod, FuncJSONPath, docPtr, docLen)
		return
	}
	path, ok := mod.Memory().Read(pathPtr, pathLen)
	if !ok {
		h.logCall(CapJSON, FuncJSONPath, "")
		h.failOOB(ctx, mod, FuncJSONPath, pathPtr, pathLen)
		return
	}

	h.logCall(CapJSON, FuncJSONPath, string(path))

	val, err := lookupJSONPath(doc, string(path))
	if err != nil {
		stack[0] = i32Result(statusBadInput)
		return
	}
	if uint64(len(val)) > uint64(outCap) {
		stack[0] = i32Result(statusTooLarge)
		return
	}
	if !mod.Memory().Write(outPtr, val) {
		h.failOOB(ctx, mod, FuncJSONPath, outPtr, uint32(len(val)))
		return
	}
	stack[0] = i32Result(int32(len(val)))
}

func (h *Host) base64Encode(ctx context.Context, mod api.Module, stack []uint64) {
	ptr := uint32(stack[0])
	length := uint32(stack[1])
	outPtr := uint32(stack[2])
	outCap := uint32(stack[3])

	h.logCall(CapBase64, FuncBase64Encode, fmt.Sprintf("%d bytes", length))

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		h.failOOB(ctx, mod, FuncBase64Encode, ptr, length)
		return
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	if uint64(len(encoded)) > uint64(outCap) {
		stack[0] = i32Result(statusTooLarge)
		return
	}
	if !mod.Memory().Write(outPtr, []byte(encoded)) {
		h.failOOB(ctx, mod, FuncBase64Encode, outPtr, uint32(len(encoded)))
		return
	}
	stack[0] = i32Result(int32(len(encoded)))
}

func (h *Host) base64Decode(ctx context.Context, mod api.Module, stack []uint64) {
	ptr := uint32(stack[0])
	length := uint32(stack[1])
	outPtr := uint32(stack[2])
	outCap := uint32(stack[3])

	h.logCall(CapBase64, FuncBase64Decode, fmt.Sprintf("%d bytes", length))

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		h.failOOB(ctx, mod, FuncBase64Decode, ptr, length)
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		stack[0] = i32Result(statusBadInput)
		return
	}
	if uint64(len(decoded)) > uint64(outCap) {
		stack[0] = i32Result(statusTooLarge)
		return
	}
	if !mod.Memory().Write(outPtr, decoded) {
		h.failOOB(ctx, mod, FuncBase64Decode, outPtr, uint32(len(decoded)))
		return
	}
	stack[0] = i32Result(int32(len(decoded)))
}

func (h *Host) timeNowMS(_ context.Context, _ api.Module, stack []uint64) {
	h.logCall(CapTime, FuncTimeNowMS, strconv.FormatInt(h.timeMS, 10))
	stack[0] = uint64(h.timeMS)
}

func (h *Host) randomBytes(ctx context.Context, mod api.Module, stack []uint64) {
	outPtr := uint32(stack[0])
	length := uint32(stack[1])

	h.logCall(CapRandom, FuncRandomBytes, fmt.Sprintf("%d bytes", length))

	// Read returns a view over guest memory, so filling it writes the
	// bytes in place and bounds-checks the whole span up front.
	view, ok := mod.Memory().Read(outPtr, length)
	if !ok {
		h.failOOB(ctx, mod, FuncRandomBytes, outPtr, length)
		return
	}
	h.randomFill(view)
	stack[0] = i32Result(0)
}

// randomFill streams SHA-256(seed, counter) blocks into dst. The stream
// position carries across calls, so two calls of n bytes read the same
// bytes as one call of 2n.
func (h *Host) randomFill(dst []byte) {
	for len(dst) > 0 {
		if len(h.randPend) == 0 {
			var ctr [8]byte
			binary.BigEndian.PutUint64(ctr[:], h.randCounter)
			h.randCounter++
			hasher := sha256.New()
			hasher.Write(h.seed)
			hasher.Write(ctr[:])
			h.randPend = hasher.Sum(nil)
		}
		n := copy(dst, h.randPend)
		h.randPend = h.randPend[n:]
		dst = dst[n:]
	}
}

// abort handles the AssemblyScript-style env.abort. The guest asked to
// stop, so the execution ends as a trap.
func (h *Host) abort(ctx context.Context, mod api.Module, stack []uint64) {
	msgPtr := uint32(stack[0])
	filePtr := uint32(stack[1])
	line := uint32(stack[2])
	col := uint32(stack[3])

	msg := readGuestString(mod.Memory(), msgPtr)
	if msg == "" {
		msg = "abort"
	}
	file := readGuestString(mod.Memory(), filePtr)
	if file == "" {
		file = "?"
	}
	if h.failure == nil {
		h.failure = errors.Trap(fmt.Errorf("%s (%s:%d:%d)", msg, file, line, col))
	}
	Logger().Debug("guest abort",
		zap.String("message", msg), zap.String("file", file),
		zap.Uint32("line", line), zap.Uint32("column", col))
	_ = mod.CloseWithExitCode(ctx, ExitAbort)
}

// readGuestString reads an AssemblyScript string: UTF-16LE data with a
// little-endian byte length four bytes before ptr. Returns "" when the
// pointer does not look like one.
func readGuestString(mem api.Memory, ptr uint32) string {
	if mem == nil || ptr < 4 {
		return ""
	}
	n, ok := mem.ReadUint32Le(ptr - 4)
	if !ok || n == 0 || n > 4096 || n%2 != 0 {
		return ""
	}
	raw, ok := mem.Read(ptr, n)
	if !ok {
		return ""
	}
	units := make([]uint16, 0, n/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])|uint16(raw[i+1])<<8)
	}
	return string(utf16.Decode(units))
}

// lookupJSONPath resolves a dot-separated path in a JSON document and
// renders the scalar it lands on: strings raw, numbers as their source
// text, booleans as true/false, null as null. Composite results and
// unknown segments are errors. Numbers keep their source text so the
// output does not depend on float formatting.
func lookupJSONPath(doc []byte, path string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after document")
	}
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	cur := root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("key %q not found", seg)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %q out of range", seg)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("segment %q selects into a scalar", seg)
		}
	}

	switch v := cur.(type) {
	case string:
		return []byte(v), nil
	case json.Number:
		return []byte(v.String()), nil
	case bool:
		if v {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("path selects a composite value")
	}
}

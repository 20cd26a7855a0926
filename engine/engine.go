package engine

import (
	"context"
	"crypto/rand"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/Nitefawkes/TenzikCore/capsule"
	"github.com/Nitefawkes/TenzikCore/config"
	"github.com/Nitefawkes/TenzikCore/errors"
	"github.com/Nitefawkes/TenzikCore/sandbox"
	"github.com/Nitefawkes/TenzikCore/wasm"
)

// I/O convention shared with capsule authors: input is written at a
// fixed offset in guest memory, run returns output length and pointer
// packed into one i32, and both directions are size-capped.
const (
	InputOffset = 1024
	MaxIOSize   = 1 << 20
)

// exitFuelExhausted closes the instance when the fuel ledger crosses
// zero. Distinct from the sandbox exit codes.
const exitFuelExhausted uint32 = 0xE0

const (
	wasmPageSize   = 64 * 1024
	pagesPerMB     = (1 << 20) / wasmPageSize
	maxMemoryPages = 65536
)

// Metrics reports what one execution consumed. Collected on success
// and failure alike.
type Metrics struct {
	FuelUsed   uint64  `json:"fuel_used"`
	MemoryMB   float64 `json:"memory_mb"`
	DurationMS int64   `json:"duration_ms"`
	HostCalls  uint64  `json:"host_calls"`
}

// Result is a completed execution.
type Result struct {
	Output    []byte
	Metrics   Metrics
	AccessLog []sandbox.AccessEntry
}

// ExecError is the failure counterpart of Result: the typed error plus
// whatever metrics and access log entries accumulated before the
// failure. Unwrap exposes the typed error, so errors.KindOf sees
// through it.
type ExecError struct {
	Err       error
	Metrics   Metrics
	AccessLog []sandbox.AccessEntry
}

func (e *ExecError) Error() string { return e.Err.Error() }

func (e *ExecError) Unwrap() error { return e.Err }

// Engine executes validated capsules under resource budgets. Safe for
// concurrent use; every call runs in a fresh runtime and instance,
// only the module cache is shared.
type Engine struct {
	clock func() int64
	seed  func() []byte
	cache *ModuleCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock fixes the time source capsules observe via time_now_ms.
func WithClock(fn func() int64) Option {
	return func(e *Engine) { e.clock = fn }
}

// WithSeed fixes the seed source for the random_bytes stream.
func WithSeed(fn func() []byte) Option {
	return func(e *Engine) { e.seed = fn }
}

// WithCache sets the compiled-module cache shared across calls.
func WithCache(c *ModuleCache) Option {
	return func(e *Engine) { e.cache = c }
}

// New creates an engine. Without options it reads the wall clock,
// draws a fresh random seed per call, and uses a default-capacity
// cache.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock: func() int64 { return time.Now().UnixMilli() },
		seed:  randomSeed,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewModuleCache(0)
	}
	return e
}

// Cache returns the engine's module cache.
func (e *Engine) Cache() *ModuleCache { return e.cache }

func randomSeed() []byte {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		panic(err)
	}
	return seed
}

// Execute runs a capsule over input: the input bytes are written at
// InputOffset, run(ptr, len) is called, and the packed result names
// the output span. The module should already be validated; Execute
// still fails closed on bytes that do not follow the capsule ABI.
//
// All failures return an *ExecError carrying the typed error and the
// metrics collected up to the failure.
func (e *Engine) Execute(ctx context.Context, module, input []byte, limits config.Limits) (*Result, error) {
	start := time.Now()

	if len(input) > MaxIOSize {
		return failure(errors.InvalidInput(errors.PhaseExecute,
			fmt.Sprintf("input is %d bytes, limit is %d", len(input), MaxIOSize)),
			Metrics{}, nil)
	}

	entry, err := e.prepare(ctx, module)
	if err != nil {
		return failure(err, sinceMetrics(start), nil)
	}

	limitPages := uint64(limits.MemoryLimitMB) * pagesPerMB
	if limitPages == 0 || limitPages > maxMemoryPages {
		limitPages = maxMemoryPages
	}
	if uint64(entry.minPages) > limitPages {
		return failure(errors.MemoryExceeded(limits.MemoryLimitMB), sinceMetrics(start), nil)
	}

	rcfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(uint32(limitPages)).
		WithCloseOnContextDone(true).
		WithCompilationCache(entry.compile)
	r := wazero.NewRuntimeWithConfig(ctx, rcfg)
	defer r.Close(ctx)

	ledger := &fuelLedger{remaining: int64(limits.FuelLimit)}
	_, err = r.NewHostModuleBuilder(wasm.MeterModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(ledger.charge),
			[]api.ValueType{api.ValueTypeI64}, nil).
		Export(wasm.MeterFunction).
		Instantiate(ctx)
	if err != nil {
		return failure(errors.Wrap(errors.PhaseExecute, errors.KindInvalidData, err,
			"bind metering module"), sinceMetrics(start), nil)
	}

	host := sandbox.NewHost(sandbox.HostConfig{
		Grant:  limits.Grant(),
		TimeMS: e.clock(),
		Seed:   e.seed(),
	})
	if err := host.VerifyImports(entry.imports); err != nil {
		return failure(err, sinceMetrics(start), nil)
	}
	if _, err := host.Instantiate(ctx, r); err != nil {
		return failure(errors.Wrap(errors.PhaseSecurity, errors.KindInvalidData, err,
			"bind host module"), sinceMetrics(start), nil)
	}

	callCtx := ctx
	if limits.ExecutionTimeMS > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx,
			time.Duration(limits.ExecutionTimeMS)*time.Millisecond)
		defer cancel()
	}

	// Instantiation runs the start function, if any, so guest code is
	// already under the deadline and the fuel ledger here.
	guest, err := r.Instantiate(callCtx, entry.metered)
	if err != nil {
		m := metricsAt(start, ledger, limits.FuelLimit, nil, host)
		return failure(classify(err, host, limits), m, host.AccessLog())
	}
	defer guest.Close(ctx)

	mem := guest.Memory()
	if mem == nil {
		m := metricsAt(start, ledger, limits.FuelLimit, nil, host)
		return failure(errors.Trap(fmt.Errorf("no exported linear memory")), m, host.AccessLog())
	}
	if len(input) > 0 && !mem.Write(InputOffset, input) {
		m := metricsAt(start, ledger, limits.FuelLimit, mem, host)
		return failure(errors.InvalidInput(errors.PhaseExecute,
			fmt.Sprintf("input of %d bytes does not fit in guest memory", len(input))),
			m, host.AccessLog())
	}

	runFn := guest.ExportedFunction(capsule.ExportRun)
	if runFn == nil {
		m := metricsAt(start, ledger, limits.FuelLimit, mem, host)
		return failure(errors.Trap(fmt.Errorf("entry point %q not exported", capsule.ExportRun)),
			m, host.AccessLog())
	}

	results, callErr := runFn.Call(callCtx, uint64(InputOffset), uint64(len(input)))
	m := metricsAt(start, ledger, limits.FuelLimit, mem, host)
	if callErr != nil {
		return failure(classify(callErr, host, limits), m, host.AccessLog())
	}

	var packed uint32
	if len(results) > 0 {
		packed = uint32(results[0])
	}
	outPtr := packed & 0xFFFF
	outLen := packed >> 16
	if outLen > MaxIOSize {
		return failure(errors.InvalidInput(errors.PhaseExecute,
			fmt.Sprintf("output is %d bytes, limit is %d", outLen, MaxIOSize)),
			m, host.AccessLog())
	}

	view, ok := mem.Read(outPtr, outLen)
	if !ok {
		return failure(errors.Trap(fmt.Errorf("output span %d+%d out of bounds", outPtr, outLen)),
			m, host.AccessLog())
	}
	// Read returns a view into guest memory; copy it out before the
	// runtime is torn down.
	output := make([]byte, len(view))
	copy(output, view)

	Logger().Debug("capsule executed",
		zap.Uint64("fuel_used", m.FuelUsed),
		zap.Float64("memory_mb", m.MemoryMB),
		zap.Int64("duration_ms", m.DurationMS),
		zap.Uint64("host_calls", m.HostCalls),
		zap.Int("output_bytes", len(output)))

	return &Result{Output: output, Metrics: m, AccessLog: host.AccessLog()}, nil
}

// prepare returns the cache entry for module, instrumenting and
// admitting it on first sight.
func (e *Engine) prepare(ctx context.Context, module []byte) (*cacheEntry, error) {
	key := ModuleKey(module)
	if entry, ok := e.cache.lookup(key); ok {
		return entry, nil
	}

	parsed, err := wasm.ParseModuleValidate(module)
	if err != nil {
		return nil, errors.Malformed(err)
	}

	imports := append([]wasm.Import(nil), parsed.Imports...)
	var minPages uint32
	if len(parsed.Memories) > 0 {
		minPages = parsed.Memories[0].Limits.Min
	}

	if err := wasm.InstrumentFuel(parsed); err != nil {
		return nil, errors.Wrap(errors.PhaseWasm, errors.KindInvalidData, err,
			"fuel instrumentation failed")
	}

	debugf("instrumented capsule %s (%d bytes)", key[:12], len(module))

	entry := &cacheEntry{
		metered:  parsed.Encode(),
		imports:  imports,
		minPages: minPages,
		compile:  wazero.NewCompilationCache(),
	}
	return e.cache.store(ctx, key, entry), nil
}

// fuelLedger enforces the per-call compute budget. The metering import
// reports span costs here; crossing zero closes the instance.
type fuelLedger struct {
	remaining int64
}

func (l *fuelLedger) charge(ctx context.Context, mod api.Module, stack []uint64) {
	l.remaining -= int64(stack[0])
	if l.remaining < 0 {
		_ = mod.CloseWithExitCode(ctx, exitFuelExhausted)
	}
}

func (l *fuelLedger) used(limit uint64) uint64 {
	if l.remaining < 0 {
		return limit
	}
	return limit - uint64(l.remaining)
}

// classify maps a wazero call error to the execution taxonomy. The
// deadline check runs first: a deadline-closed module also reports an
// exit error, and the deadline is the cause.
func classify(err error, host *sandbox.Host, limits config.Limits) error {
	if goerrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout(limits.ExecutionTimeMS)
	}
	if goerrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.PhaseExecute, errors.KindTimeout, err, "execution canceled")
	}

	var exitErr *sys.ExitError
	if goerrors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitFuelExhausted:
			return errors.FuelExhausted(limits.FuelLimit)
		case sandbox.ExitHostFailure, sandbox.ExitAbort:
			if herr := host.Err(); herr != nil {
				return herr
			}
		}
	}
	return errors.Trap(err)
}

func failure(err error, m Metrics, log []sandbox.AccessEntry) (*Result, error) {
	return nil, &ExecError{Err: err, Metrics: m, AccessLog: log}
}

func sinceMetrics(start time.Time) Metrics {
	return Metrics{DurationMS: time.Since(start).Milliseconds()}
}

func metricsAt(start time.Time, ledger *fuelLedger, fuelLimit uint64, mem api.Memory, host *sandbox.Host) Metrics {
	m := Metrics{
		FuelUsed:   ledger.used(fuelLimit),
		DurationMS: time.Since(start).Milliseconds(),
		HostCalls:  host.Calls(),
	}
	if mem != nil {
		m.MemoryMB = float64(mem.Size()) / (1 << 20)
	}
	return m
}

package tenzikcore

import (
	"context"
	"crypto/ed25519"
	goerrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Nitefawkes/TenzikCore/capsule"
	"github.com/Nitefawkes/TenzikCore/config"
	"github.com/Nitefawkes/TenzikCore/engine"
	"github.com/Nitefawkes/TenzikCore/errors"
	"github.com/Nitefawkes/TenzikCore/event"
	"github.com/Nitefawkes/TenzikCore/receipt"
	"github.com/Nitefawkes/TenzikCore/sandbox"
)

// Runtime executes capsules end to end: static validation, capability
// binding, budgeted execution, signed receipt. A Runtime is safe for
// concurrent Run calls; every call gets its own guest instance.
type Runtime struct {
	key            ed25519.PrivateKey
	nodeID         string
	limits         config.Limits
	engine         *engine.Engine
	validator      *capsule.Validator
	eventLog       *event.Log
	recordFailures bool
	nonce          atomic.Uint64
	eventMu        sync.Mutex
}

// RunResult is the outcome of one capsule run. On a failed run with
// failure receipts enabled, Receipt, Metrics and AccessLog are still
// populated and returned alongside the error.
type RunResult struct {
	Output    []byte
	Metrics   engine.Metrics
	Receipt   *receipt.Receipt
	AccessLog []sandbox.AccessEntry
}

type options struct {
	key            ed25519.PrivateKey
	limits         config.Limits
	engineOpts     []engine.Option
	eventLog       *event.Log
	recordFailures bool
}

// Option configures a Runtime.
type Option func(*options)

// WithKey sets the signing key. Without it, New generates a fresh one.
func WithKey(key ed25519.PrivateKey) Option {
	return func(o *options) { o.key = key }
}

// WithLimits replaces the default execution limits.
func WithLimits(l config.Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithRecordFailures controls whether failed executions produce signed
// receipts carrying the failure status. Off by default.
func WithRecordFailures(on bool) Option {
	return func(o *options) { o.recordFailures = on }
}

// WithClock injects the deterministic time source visible to capsules.
func WithClock(clock func() int64) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, engine.WithClock(clock)) }
}

// WithSeed injects the seed source for the deterministic random stream.
func WithSeed(seed func() []byte) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, engine.WithSeed(seed)) }
}

// WithCacheCapacity bounds the compiled module cache.
func WithCacheCapacity(n int) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithCache(engine.NewModuleCache(n)))
	}
}

// WithEventLog chains every issued receipt into the given log as a
// receipt event parented on the log's current heads.
func WithEventLog(log *event.Log) Option {
	return func(o *options) { o.eventLog = log }
}

// New builds a Runtime from the default limits and the given options.
func New(opts ...Option) (*Runtime, error) {
	o := options{limits: config.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.key == nil {
		key, err := receipt.GenerateKey()
		if err != nil {
			return nil, err
		}
		o.key = key
	}
	if len(o.key) != ed25519.PrivateKeySize {
		return nil, errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(o.key)))
	}
	if err := o.limits.Validate(); err != nil {
		return nil, err
	}

	rt := &Runtime{
		key:            o.key,
		nodeID:         receipt.NodeID(o.key.Public().(ed25519.PublicKey)),
		limits:         o.limits,
		engine:         engine.New(o.engineOpts...),
		validator:      capsule.NewValidator(o.limits.MaxModuleBytes, o.limits.Grant()),
		eventLog:       o.eventLog,
		recordFailures: o.recordFailures,
	}

	Logger().Debug("runtime ready",
		zap.String("node_id", rt.nodeID),
		zap.Uint64("fuel_limit", rt.limits.FuelLimit),
		zap.Uint32("memory_limit_mb", rt.limits.MemoryLimitMB),
	)
	return rt, nil
}

// NodeID returns the hex public key identifying this runtime's receipts.
func (rt *Runtime) NodeID() string { return rt.nodeID }

// PublicKey returns the verification key for this runtime's receipts.
func (rt *Runtime) PublicKey() ed25519.PublicKey {
	return rt.key.Public().(ed25519.PublicKey)
}

// Limits returns the execution limits the runtime applies.
func (rt *Runtime) Limits() config.Limits { return rt.limits }

// Validate runs the static capsule checks without executing anything.
func (rt *Runtime) Validate(module []byte) (*capsule.ValidationResult, error) {
	return rt.validator.Validate(module)
}

// CacheStats reports hit, miss and entry counts of the module cache.
func (rt *Runtime) CacheStats() engine.CacheStats {
	return rt.engine.Cache().Stats()
}

// Close releases the compiled module cache. The runtime must not be
// used for Run calls afterwards.
func (rt *Runtime) Close(ctx context.Context) error {
	return rt.engine.Cache().Close(ctx)
}

// Run executes a capsule against input and signs a receipt over the
// result. The pipeline is validate, bind, execute, receipt; the first
// failing stage's typed error is returned. Nonces increase by one per
// issued receipt, starting at 1.
func (rt *Runtime) Run(ctx context.Context, module, input []byte) (*RunResult, error) {
	if _, err := rt.validator.Validate(module); err != nil {
		return nil, err
	}

	res, err := rt.engine.Execute(ctx, module, input, rt.limits)
	if err != nil {
		return rt.failed(module, input, err)
	}

	rec := receipt.New(module, input, res.Output, receiptMetrics(res.Metrics), rt.nonce.Add(1))
	if err := rec.Sign(rt.key); err != nil {
		return nil, err
	}
	rt.publish(rec)

	return &RunResult{
		Output:    res.Output,
		Metrics:   res.Metrics,
		Receipt:   rec,
		AccessLog: res.AccessLog,
	}, nil
}

// failed issues a failure receipt when enabled and execution got far
// enough to be measured. The original error is always returned.
func (rt *Runtime) failed(module, input []byte, err error) (*RunResult, error) {
	var execErr *engine.ExecError
	if !rt.recordFailures || !goerrors.As(err, &execErr) {
		return nil, err
	}

	rec := receipt.New(module, input, nil, receiptMetrics(execErr.Metrics), rt.nonce.Add(1))
	rec.Status = receipt.StatusForError(err)
	if serr := rec.Sign(rt.key); serr != nil {
		return nil, err
	}
	rt.publish(rec)

	return &RunResult{
		Metrics:   execErr.Metrics,
		Receipt:   rec,
		AccessLog: execErr.AccessLog,
	}, err
}

// publish chains a receipt into the attached event log. The chain is
// advisory; a failure to record never fails the run that produced the
// receipt.
func (rt *Runtime) publish(rec *receipt.Receipt) {
	if rt.eventLog == nil {
		return
	}
	rt.eventMu.Lock()
	defer rt.eventMu.Unlock()

	seq := rt.eventLog.Sequence(rt.nodeID) + 1
	ev, err := event.NewReceiptEvent(rec, rt.eventLog.HeadIDs(), seq, rt.key)
	if err == nil {
		err = rt.eventLog.Append(ev)
	}
	if err != nil {
		Logger().Warn("receipt event not recorded",
			zap.String("receipt_id", rec.ReceiptID()),
			zap.Error(err))
	}
}

func receiptMetrics(m engine.Metrics) receipt.Metrics {
	return receipt.Metrics{
		FuelUsed:   m.FuelUsed,
		MemoryMB:   m.MemoryMB,
		DurationMS: m.DurationMS,
		HostCalls:  m.HostCalls,
	}
}

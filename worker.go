package isoworker

import (
	"errors"
	"io"
	"sync"
	"time"

	v8 "github.com/tommie/v8go"
	"go.uber.org/zap"
)

// Status is the result of loading a script or delivering a message.
type Status int

const (
	// StatusOK means the operation completed with no uncaught exception.
	StatusOK Status = iota
	// StatusCompileError means Load could not compile the source.
	// LastException holds the formatted compile diagnostic.
	StatusCompileError
	// StatusUncaught means an uncaught exception escaped guest execution,
	// including a termination interrupt delivered mid-run. LastException
	// holds the formatted diagnostic.
	StatusUncaught
)

// StatusNoHandler is returned by Send when the guest never registered an
// async handler. It shares the numeric value 1 with StatusCompileError; the
// two can never occur on the same operation.
const StatusNoHandler = StatusCompileError

// NoAsyncHandlerMessage is the LastException text set by Send when the guest
// has not registered an async handler.
const NoAsyncHandlerMessage = "no async handler registered"

// Sentinel return values of SendSync. The degraded string-sentinel contract
// is kept because SendSync's return type is a bare string; hosts should
// compare against these constants rather than match prose.
const (
	// SyncNoHandlerSentinel is returned when the guest never registered a
	// sync handler.
	SyncNoHandlerSentinel = "err: no sync handler registered"
	// SyncNonStringSentinel is returned when the guest handler's return
	// value is not a string.
	SyncNonStringSentinel = "err: non-string return value"
	// SyncUncaughtSentinel is returned when the guest handler threw.
	// LastException holds the formatted diagnostic.
	SyncUncaughtSentinel = "err: sync handler threw"
)

// ScriptOrigin tags a script with source-location metadata. Only diagnostics
// and source maps consume it; it never affects execution semantics.
type ScriptOrigin struct {
	ScriptName          string
	LineOffset          int
	ColumnOffset        int
	IsSharedCrossOrigin bool
	ScriptID            int
	IsDebugScript       bool
	SourceMapURL        string
	IsOpaque            bool
}

// HeapStatistics is a snapshot of the worker isolate's heap.
//
// DoesZapGarbage is carried for interface compatibility but the engine
// binding does not expose it; it is always zero.
type HeapStatistics struct {
	TotalHeapSize           int
	TotalHeapSizeExecutable int
	TotalPhysicalSize       int
	TotalAvailableSize      int
	UsedHeapSize            int
	HeapSizeLimit           int
	MallocedMemory          int
	DoesZapGarbage          int
}

// Worker is one script sandbox: an isolate, its execution context, the
// guest-registered inbound handlers and the last captured diagnostic.
//
// A Worker is exclusively owned by the host. Any goroutine may call any
// method; each call acquires the worker's lock for its full duration,
// including any guest code it runs and any host callbacks that guest code
// triggers. TerminateExecution is the one exception; it is designed to run
// concurrently with an in-flight call.
//
// Using a Worker after Dispose is undefined behavior; there is no runtime
// guard beyond Dispose itself being idempotent.
type Worker struct {
	id       int
	iso      *v8.Isolate
	ctx      *v8.Context
	handlers Handlers
	out      io.Writer
	logger   *zap.Logger

	memoryLimitMB int
	transpile     bool
	transpileOpts TranspileOptions

	mu       sync.Mutex
	disposed bool

	// Mutated only while mu is held (bindings run inside the outer
	// call's lock hold, so they write these without relocking).
	lastException string
	asyncHandler  *v8.Function
	syncHandler   *v8.Function
	sources       map[string]string
}

// ID returns the host-assigned worker identity.
func (w *Worker) ID() int { return w.id }

// LastException returns the diagnostic captured by the most recent failing
// operation. It is meaningful only immediately after a call that reported
// failure, read from the same goroutine; successful Load/Send/SendSync calls
// clear it. Reading it concurrently with another call on the same Worker is
// a race.
func (w *Worker) LastException() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastException
}

// Load compiles and runs source under the given script name. See
// LoadWithOptions.
func (w *Worker) Load(scriptName, source string) Status {
	return w.LoadWithOptions(&ScriptOrigin{ScriptName: scriptName}, source)
}

// LoadWithOptions compiles source tagged with origin and, on success, runs
// its top-level statements to completion or first uncaught throw.
//
// It returns StatusOK when the script ran clean, StatusCompileError when
// compilation (or the optional transpile step) failed, and StatusUncaught
// when an exception (including a delivered termination interrupt) escaped
// execution. A failed load leaves the Worker fully usable.
func (w *Worker) LoadWithOptions(origin *ScriptOrigin, source string) Status {
	if origin == nil {
		origin = &ScriptOrigin{}
	}
	if origin.ScriptName == "" {
		origin.ScriptName = nextScriptName()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.transpile {
		code, diag := transpileForLoad(source, origin.ScriptName, w.transpileOpts)
		if diag != nil {
			w.lastException = diag.format()
			w.logger.Debug("worker transpile failed",
				zap.Int("worker_id", w.id), zap.String("script", origin.ScriptName))
			return StatusCompileError
		}
		source = code
	}

	// Retained so the exception formatter can reconstruct the offending
	// source line; the engine binding reports only file:line:column.
	w.sources[origin.ScriptName] = source

	script, err := w.iso.CompileUnboundScript(source, origin.ScriptName, v8.CompileOptions{})
	if err != nil {
		w.lastException = w.exceptionString(err)
		w.logger.Debug("worker compile failed",
			zap.Int("worker_id", w.id), zap.String("script", origin.ScriptName))
		return StatusCompileError
	}

	if _, err := script.Run(w.ctx); err != nil {
		w.lastException = w.exceptionString(err)
		w.logger.Debug("worker script threw",
			zap.Int("worker_id", w.id), zap.String("script", origin.ScriptName))
		return StatusUncaught
	}

	w.lastException = ""
	return StatusOK
}

// LoadWithTimeout runs LoadWithOptions under a watchdog that terminates
// execution after the given duration. Termination surfaces as StatusUncaught,
// the same way a host-initiated TerminateExecution would.
func (w *Worker) LoadWithTimeout(origin *ScriptOrigin, source string, timeout time.Duration) Status {
	watchdog := time.AfterFunc(timeout, w.TerminateExecution)
	defer watchdog.Stop()
	return w.LoadWithOptions(origin, source)
}

// Send delivers msg to the guest's registered async handler.
//
// It returns StatusOK on success, StatusNoHandler if the guest never called
// registerAsyncHandler (LastException is NoAsyncHandlerMessage), and
// StatusUncaught if the handler threw.
func (w *Worker) Send(msg string) Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.asyncHandler == nil {
		w.lastException = NoAsyncHandlerMessage
		return StatusNoHandler
	}

	arg, err := v8.NewValue(w.iso, msg)
	if err != nil {
		w.lastException = err.Error() + "\n"
		return StatusUncaught
	}

	if _, err := w.asyncHandler.Call(w.ctx.Global(), arg); err != nil {
		w.lastException = w.exceptionString(err)
		return StatusUncaught
	}

	w.lastException = ""
	return StatusOK
}

// SendSync delivers msg to the guest's registered sync handler and returns
// the handler's string result as an owned copy, valid indefinitely.
//
// Failures degrade to the Sync*Sentinel constants; a throwing handler
// additionally records its diagnostic in LastException.
func (w *Worker) SendSync(msg string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.syncHandler == nil {
		return SyncNoHandlerSentinel
	}

	arg, err := v8.NewValue(w.iso, msg)
	if err != nil {
		w.lastException = err.Error() + "\n"
		return SyncUncaughtSentinel
	}

	val, err := w.syncHandler.Call(w.ctx.Global(), arg)
	if err != nil {
		w.lastException = w.exceptionString(err)
		return SyncUncaughtSentinel
	}
	if !val.IsString() {
		return SyncNonStringSentinel
	}

	w.lastException = ""
	return val.String()
}

// Dispose tears down the worker's context and isolate. It is idempotent, but
// the caller must guarantee no other call is using the Worker; that is a
// precondition, not a guarded race.
func (w *Worker) Dispose() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.disposed {
		return
	}
	w.disposed = true
	w.asyncHandler = nil
	w.syncHandler = nil
	w.ctx.Close()
	w.iso.Dispose()
	w.logger.Debug("worker disposed", zap.Int("worker_id", w.id))
}

// TerminateExecution requests that a script currently running inside this
// worker be interrupted at its next safe point. It does not take the worker
// lock: it is the one operation designed to be called from a second
// goroutine while another call is executing. The interrupted call returns
// StatusUncaught and releases the lock normally.
func (w *Worker) TerminateExecution() {
	w.logger.Debug("worker termination requested", zap.Int("worker_id", w.id))
	w.iso.TerminateExecution()
}

// LowMemoryNotification is an advisory hint that the system is running low
// on memory. The engine binding does not expose the isolate's
// memory-pressure hook, so this currently only serializes with other calls.
func (w *Worker) LowMemoryNotification() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger.Debug("low memory notification", zap.Int("worker_id", w.id))
}

// IdleNotificationDeadline hints that the calling goroutine is willing to
// give the engine up to deadlineSeconds of idle time. The binding exposes no
// idle hook, so the hint is dropped and the return value reports that no
// further idle time would be useful.
func (w *Worker) IdleNotificationDeadline(deadlineSeconds float64) bool {
	return false
}

// GetHeapStatistics snapshots the worker isolate's heap usage.
func (w *Worker) GetHeapStatistics() HeapStatistics {
	w.mu.Lock()
	defer w.mu.Unlock()

	hs := w.iso.GetHeapStatistics()
	return HeapStatistics{
		TotalHeapSize:           int(hs.TotalHeapSize),
		TotalHeapSizeExecutable: int(hs.TotalHeapSizeExecutable),
		TotalPhysicalSize:       int(hs.TotalPhysicalSize),
		TotalAvailableSize:      int(hs.TotalAvailableSize),
		UsedHeapSize:            int(hs.UsedHeapSize),
		HeapSizeLimit:           int(hs.HeapSizeLimit),
		MallocedMemory:          int(hs.MallocedMemory),
	}
}

// exceptionString turns an engine error into the deterministic diagnostic
// format shared by compile-time and run-time failures. Callers hold w.mu.
func (w *Worker) exceptionString(err error) string {
	var jsErr *v8.JSError
	if !errors.As(err, &jsErr) {
		return err.Error() + "\n"
	}
	return formatJSError(jsErr, w.sources)
}

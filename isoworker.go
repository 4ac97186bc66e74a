// Package isoworker embeds sandboxed JavaScript workers inside a host
// process. Each Worker pairs one V8 isolate with one execution context and a
// two-direction, two-mode message bridge: guest scripts talk to the host via
// the sendAsync/sendSync global bindings, and the host talks to guest-side
// handlers registered with registerAsyncHandler/registerSyncHandler.
//
// Every operation on a Worker is serialized by a per-worker lock. The only
// call that is safe to issue while another call is executing on the same
// Worker is TerminateExecution.
package isoworker

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	v8 "github.com/tommie/v8go"
	"go.uber.org/zap"
)

var (
	initOnce  sync.Once
	workerSeq atomic.Int64
	scriptSeq atomic.Int64
)

// Init performs the one-time, process-wide engine setup. It is idempotent and
// safe to call from multiple goroutines; New calls it implicitly, so explicit
// calls are only useful to front-load the platform startup cost.
func Init() {
	initOnce.Do(func() {
		// Creating and dropping an isolate forces the shared V8 platform
		// to initialize.
		iso := v8.NewIsolate()
		iso.Dispose()
	})
}

// Version reports the version of the embedded V8 engine, e.g. "11.1.277.13".
func Version() string {
	return v8.Version()
}

// Handlers holds the host-side callbacks invoked when a guest script sends a
// message. Recv receives fire-and-forget messages from sendAsync. RecvSync
// receives blocking requests from sendSync; its return value becomes the
// guest call's result (the bridge copies it into the guest's string, so the
// host keeps no obligations after returning).
//
// Both callbacks run on the goroutine that is driving the worker, while the
// worker's lock is held. They must not call back into the same Worker: the
// lock is not reentrant, and a re-entrant call deadlocks. Use a separate
// goroutine and a fresh outer call if a handler needs to feed work back in.
type Handlers struct {
	Recv     func(msg string, workerID int)
	RecvSync func(msg string, workerID int) string
}

// Option configures a Worker at construction time.
type Option func(*Worker)

// WithLogger sets the logger used for worker lifecycle events.
// The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithOutput redirects the guest's print binding. The default sink is stdout.
func WithOutput(out io.Writer) Option {
	return func(w *Worker) { w.out = out }
}

// WithMemoryLimit caps the worker isolate's heap at the given size in
// megabytes. Zero means the engine default.
func WithMemoryLimit(mb int) Option {
	return func(w *Worker) { w.memoryLimitMB = mb }
}

// WithTranspile makes Load run each script through the esbuild transform
// before compiling it, so sources may use syntax newer than the target the
// engine is known to support. Transform failures surface as compile errors.
func WithTranspile(opts TranspileOptions) Option {
	return func(w *Worker) {
		w.transpile = true
		w.transpileOpts = opts
	}
}

// WithConfig applies the worker-scoped fields of a Config.
func WithConfig(cfg Config) Option {
	return func(w *Worker) {
		w.memoryLimitMB = cfg.MemoryLimitMB
		if cfg.Transpile {
			w.transpile = true
		}
	}
}

// New creates a Worker with a process-unique ID. See NewWithID.
func New(h Handlers, opts ...Option) (*Worker, error) {
	return NewWithID(nextWorkerID(), h, opts...)
}

// NewWithID creates a Worker backed by a fresh isolate and a single execution
// context whose global object carries the five bridge bindings: print,
// registerAsyncHandler, registerSyncHandler, sendAsync and sendSync. The id
// is opaque to the engine; it is handed back to the host on every inbound
// message so the host can route by worker.
//
// The isolate's array buffer allocator zero-fills all memory it hands out;
// that is engine behavior and needs no configuration here.
func NewWithID(id int, h Handlers, opts ...Option) (*Worker, error) {
	Init()

	w := &Worker{
		id:       id,
		handlers: h,
		out:      os.Stdout,
		logger:   zap.NewNop(),
		sources:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.memoryLimitMB > 0 {
		heapSize := uint64(w.memoryLimitMB) * 1024 * 1024
		w.iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		w.iso = v8.NewIsolate()
	}

	global := v8.NewObjectTemplate(w.iso)
	for name, tmpl := range w.bindings() {
		if err := global.Set(name, tmpl); err != nil {
			w.iso.Dispose()
			return nil, fmt.Errorf("installing %s binding: %w", name, err)
		}
	}

	w.ctx = v8.NewContext(w.iso, global)
	w.logger.Debug("worker created", zap.Int("worker_id", id))
	return w, nil
}

// bindings builds the function templates installed on the worker's global
// object. The closures capture the Worker directly, so a callback triggered
// from inside the isolate always knows which Worker it belongs to without
// any process-wide registry.
//
// All of these run while the worker's lock is already held by the outer
// Load/Send/SendSync call; they must mutate Worker state directly and must
// never take the lock themselves.
func (w *Worker) bindings() map[string]*v8.FunctionTemplate {
	return map[string]*v8.FunctionTemplate{
		"print": v8.NewFunctionTemplate(w.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
			args := info.Args()
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.String()
			}
			fmt.Fprintln(w.out, strings.Join(parts, " "))
			return nil
		}),

		"registerAsyncHandler": v8.NewFunctionTemplate(w.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
			fn, ok := handlerArg(info)
			if !ok {
				return w.throw("registerAsyncHandler expects a function")
			}
			w.asyncHandler = fn
			return nil
		}),

		"registerSyncHandler": v8.NewFunctionTemplate(w.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
			fn, ok := handlerArg(info)
			if !ok {
				return w.throw("registerSyncHandler expects a function")
			}
			w.syncHandler = fn
			return nil
		}),

		"sendAsync": v8.NewFunctionTemplate(w.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
			args := info.Args()
			if len(args) == 0 || !args[0].IsString() {
				return w.throw("sendAsync expects a string")
			}
			if w.handlers.Recv == nil {
				return w.throw("no async host callback configured")
			}
			w.handlers.Recv(args[0].String(), w.id)
			return nil
		}),

		"sendSync": v8.NewFunctionTemplate(w.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
			args := info.Args()
			if len(args) == 0 || !args[0].IsString() {
				return w.throw("sendSync expects a string")
			}
			if w.handlers.RecvSync == nil {
				return w.throw("no sync host callback configured")
			}
			reply := w.handlers.RecvSync(args[0].String(), w.id)
			val, err := v8.NewValue(w.iso, reply)
			if err != nil {
				return w.throw(fmt.Sprintf("converting host reply: %v", err))
			}
			return val
		}),
	}
}

// handlerArg extracts the guest function passed to a register binding.
func handlerArg(info *v8.FunctionCallbackInfo) (*v8.Function, bool) {
	args := info.Args()
	if len(args) == 0 || !args[0].IsFunction() {
		return nil, false
	}
	fn, err := args[0].AsFunction()
	if err != nil {
		return nil, false
	}
	return fn, true
}

// throw raises a guest-visible exception from inside a binding.
func (w *Worker) throw(msg string) *v8.Value {
	val, _ := v8.NewValue(w.iso, msg)
	w.iso.ThrowException(val)
	return nil
}

func nextWorkerID() int {
	return int(workerSeq.Add(1) - 1)
}

// nextScriptName names scripts loaded without an explicit resource name,
// mirroring the engine's own VM numbering for eval'd code.
func nextScriptName() string {
	return "VM" + strconv.FormatInt(scriptSeq.Add(1)-1, 10)
}

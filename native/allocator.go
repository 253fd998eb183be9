package native

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	slotbridge "github.com/wippyai/wasm-slotbridge"
	"github.com/wippyai/wasm-slotbridge/errors"
)

// Guest allocator exports, in lookup order.
const (
	CabiRealloc = "cabi_realloc"
	SimpleAlloc = "malloc"
	SimpleFree  = "free"
)

// Allocator implements slotbridge.Allocator by calling guest exports.
// Calls are serialized; wazero modules are not safe for concurrent calls.
type Allocator struct {
	allocFn  api.Function
	freeFn   api.Function
	ctx      context.Context
	stackBuf []uint64
	mu       sync.Mutex
	// realloc is set when allocFn has the cabi_realloc signature
	// (old_ptr, old_size, align, new_size) and frees through itself.
	realloc bool
}

var _ slotbridge.Allocator = (*Allocator)(nil)

// NewAllocator binds to malloc/free, falling back to cabi_realloc.
func NewAllocator(ctx context.Context, mod api.Module) (*Allocator, error) {
	a := &Allocator{ctx: ctx, stackBuf: make([]uint64, 4)}

	defs := mod.ExportedFunctionDefinitions()
	if def := defs[SimpleAlloc]; def != nil && len(def.ParamTypes()) == 1 {
		a.allocFn = mod.ExportedFunction(SimpleAlloc)
		a.freeFn = mod.ExportedFunction(SimpleFree)
	} else if def := defs[CabiRealloc]; def != nil && len(def.ParamTypes()) == 4 {
		a.allocFn = mod.ExportedFunction(CabiRealloc)
		a.realloc = true
	}
	if a.allocFn == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "allocator export", SimpleAlloc+" or "+CabiRealloc)
	}
	return a, nil
}

// SetContext sets the context used for subsequent guest calls.
func (a *Allocator) SetContext(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx = ctx
}

func (a *Allocator) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *Allocator) Alloc(size, align uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var stack []uint64
	if a.realloc {
		a.stackBuf[0] = 0
		a.stackBuf[1] = 0
		a.stackBuf[2] = uint64(align)
		a.stackBuf[3] = uint64(size)
		stack = a.stackBuf[:4]
	} else {
		a.stackBuf[0] = uint64(size)
		stack = a.stackBuf[:1]
	}
	if err := a.allocFn.CallWithStack(a.context(), stack); err != nil {
		return 0, err
	}
	ptr := uint32(stack[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align, nil)
	}
	return ptr, nil
}

func (a *Allocator) Free(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	switch {
	case a.realloc:
		a.stackBuf[0] = uint64(ptr)
		a.stackBuf[1] = uint64(size)
		a.stackBuf[2] = uint64(align)
		a.stackBuf[3] = 0
		err = a.allocFn.CallWithStack(a.context(), a.stackBuf[:4])
	case a.freeFn != nil:
		a.stackBuf[0] = uint64(ptr)
		err = a.freeFn.CallWithStack(a.context(), a.stackBuf[:1])
	default:
		return
	}
	if err != nil {
		Logger().Warn("Free: guest deallocation failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

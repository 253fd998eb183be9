package native

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-slotbridge/bridge"
	"github.com/wippyai/wasm-slotbridge/charset"
	"github.com/wippyai/wasm-slotbridge/errors"
	"github.com/wippyai/wasm-slotbridge/marshal"
	"github.com/wippyai/wasm-slotbridge/slots"
)

// Type service exports.
const (
	ExportMemory         = "memory"
	ExportTypeInstall    = "type_install"
	ExportTypeDispose    = "type_dispose"
	ExportTypeSlotOffset = "type_slot_offset"
)

// Config holds configuration for guest loading.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KB pages. 0 keeps the wazero
	// default.
	MemoryLimitPages uint32

	// Layout is the type object layout the guest was compiled with.
	// Zero means slots.Wasm32.
	Layout slots.Layout

	// Name is the module name. Defaults to "guest".
	Name string
}

// Guest is an instantiated interpreter guest.
type Guest struct {
	runtime wazero.Runtime
	module  api.Module
	memory  *Memory
	alloc   *Allocator
	layout  slots.Layout

	install    api.Function
	dispose    api.Function
	slotOffset api.Function

	// specs encodes type specs as UTF-8 regardless of the active mode
	specs *marshal.Marshaler
}

// Load compiles and instantiates a guest module.
func Load(ctx context.Context, wasm []byte, cfg *Config) (*Guest, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	layout := cfg.Layout
	if layout.PointerSize == 0 {
		layout = slots.Wasm32
	}
	name := cfg.Name
	if name == "" {
		name = "guest"
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	g, err := instantiate(ctx, rt, wasm, name, layout)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	Logger().Debug("guest loaded",
		zap.String("name", name),
		zap.String("layout", layout.Name),
		zap.Uint32("memory", g.memory.Size()),
		zap.Bool("reports_layout", g.slotOffset != nil))
	return g, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, wasm []byte, name string, layout slots.Layout) (*Guest, error) {
	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile guest module", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	mem := WrapMemory(mod.ExportedMemory(ExportMemory))
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "memory export", ExportMemory)
	}
	alloc, err := NewAllocator(ctx, mod)
	if err != nil {
		return nil, err
	}

	g := &Guest{
		runtime:    rt,
		module:     mod,
		memory:     mem,
		alloc:      alloc,
		layout:     layout,
		install:    mod.ExportedFunction(ExportTypeInstall),
		dispose:    mod.ExportedFunction(ExportTypeDispose),
		slotOffset: mod.ExportedFunction(ExportTypeSlotOffset),
	}
	if g.install == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "function export", ExportTypeInstall)
	}
	if g.dispose == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "function export", ExportTypeDispose)
	}

	opts := marshal.DefaultOptions()
	opts.Mode = charset.UTF8
	opts.PointerSize = layout.PointerSize
	g.specs = marshal.New(mem, alloc, opts)
	return g, nil
}

// Memory returns the guest's linear memory.
func (g *Guest) Memory() *Memory {
	return g.memory
}

// Allocator returns the guest allocator.
func (g *Guest) Allocator() *Allocator {
	return g.alloc
}

// Layout returns the type object layout the guest was loaded with.
func (g *Guest) Layout() slots.Layout {
	return g.layout
}

// Module returns the underlying wazero module.
func (g *Guest) Module() api.Module {
	return g.module
}

// Marshaler returns a marshaler over guest memory. The pointer size follows
// the guest layout.
func (g *Guest) Marshaler(opts marshal.Options) *marshal.Marshaler {
	opts.PointerSize = g.layout.PointerSize
	return marshal.New(g.memory, g.alloc, opts)
}

// TypeService returns the guest type service. The result also implements
// bridge.LayoutReporter when the guest exports type_slot_offset.
func (g *Guest) TypeService() bridge.TypeService {
	ts := &typeService{g: g}
	if g.slotOffset != nil {
		return &reportingTypeService{typeService: ts}
	}
	return ts
}

// Close releases the guest and its runtime.
func (g *Guest) Close(ctx context.Context) error {
	if n := g.specs.Outstanding(); n > 0 {
		Logger().Warn("closing guest with outstanding type spec blocks", zap.Int("blocks", n))
	}
	return g.runtime.Close(ctx)
}

type typeService struct {
	g *Guest
}

func (s *typeService) InstallType(ctx context.Context, spec bridge.TypeSpec) (bridge.Handle, error) {
	g := s.g
	g.alloc.SetContext(ctx)

	name, err := g.specs.Encode(spec.Name)
	if err != nil {
		return 0, err
	}
	defer s.release(name)

	methods, err := g.specs.EncodeArray(spec.Methods)
	if err != nil {
		return 0, err
	}
	defer s.release(methods)

	res, err := g.install.Call(ctx, uint64(name.Ptr), uint64(methods.Ptr), uint64(len(spec.Methods)))
	if err != nil {
		return 0, errors.New(errors.PhaseLifecycle, errors.KindInstantiation).
			Detail("%s(%q)", ExportTypeInstall, spec.Name).
			Cause(err).
			Build()
	}
	h := bridge.Handle(uint32(res[0]))
	if h == 0 {
		return 0, errors.AllocationFailed(errors.PhaseLifecycle, g.layout.MinTypeSize(), g.layout.PointerSize, nil)
	}
	return h, nil
}

func (s *typeService) DisposeType(ctx context.Context, h bridge.Handle) error {
	if h == 0 {
		return nil
	}
	if _, err := s.g.dispose.Call(ctx, uint64(h)); err != nil {
		return errors.Wrap(errors.PhaseLifecycle, errors.KindInstantiation, err, ExportTypeDispose)
	}
	return nil
}

func (s *typeService) release(b marshal.Block) {
	if err := s.g.specs.Release(b); err != nil {
		Logger().Warn("release type spec block", zap.Uint32("ptr", b.Ptr), zap.Error(err))
	}
}

type reportingTypeService struct {
	*typeService
}

var (
	_ bridge.TypeService    = (*typeService)(nil)
	_ bridge.LayoutReporter = (*reportingTypeService)(nil)
)

func (s *reportingTypeService) SlotOffset(ctx context.Context, k slots.Kind) (uint32, error) {
	res, err := s.g.slotOffset.Call(ctx, uint64(k))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseLayout, errors.KindInstantiation, err, ExportTypeSlotOffset)
	}
	return uint32(res[0]), nil
}

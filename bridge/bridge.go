package bridge

import (
	"context"
	"math"
	"reflect"

	slotbridge "github.com/wippyai/wasm-slotbridge"
	"github.com/wippyai/wasm-slotbridge/errors"
	"github.com/wippyai/wasm-slotbridge/slots"
	"go.uber.org/zap"
)

// DefaultTemplateName names the template type installed in the guest.
const DefaultTemplateName = "slotbridge.template"

// Options configures a Bridge.
type Options struct {
	Table        *slots.Table
	Lister       MethodLister
	TemplateName string
}

// DefaultOptions returns the Wasm32 slot table and no method lister.
func DefaultOptions() Options {
	return Options{
		Table:        slots.Default,
		TemplateName: DefaultTemplateName,
	}
}

// Bridge copies operator trampolines from a template type into the types
// of exposed Go values.
//
// One Bridge exists per guest instance. Initialize, Shutdown and the fixup
// calls must be serialized by the caller, normally by holding the guest
// interpreter lock.
type Bridge struct {
	svc      TypeService
	mem      slotbridge.Memory
	opts     Options
	state    State
	template Handle
}

// New creates an uninitialized Bridge.
func New(svc TypeService, mem slotbridge.Memory, opts Options) *Bridge {
	if opts.Table == nil {
		opts.Table = slots.Default
	}
	if opts.TemplateName == "" {
		opts.TemplateName = DefaultTemplateName
	}
	return &Bridge{svc: svc, mem: mem, opts: opts}
}

// NewWithDefaults creates a Bridge with DefaultOptions.
func NewWithDefaults(svc TypeService, mem slotbridge.Memory) *Bridge {
	return New(svc, mem, DefaultOptions())
}

// State returns the lifecycle state.
func (b *Bridge) State() State {
	return b.state
}

// Template returns the template type, or 0 outside Initialized.
func (b *Bridge) Template() Handle {
	return b.template
}

// Table returns the slot table in use.
func (b *Bridge) Table() *slots.Table {
	return b.opts.Table
}

// Initialize validates the slot layout against the guest when it can
// report one, installs the template type and checks that it carries a
// trampoline in every operator slot. It may be called again after Shutdown.
func (b *Bridge) Initialize(ctx context.Context) error {
	if b.state == Initialized {
		return errors.Lifecycle("Initialize", b.state.String())
	}

	if r, ok := b.svc.(LayoutReporter); ok {
		if err := b.opts.Table.Validate(reporter{ctx: ctx, r: r}); err != nil {
			return err
		}
	}

	defs := b.opts.Table.Definitions()
	spec := TypeSpec{Name: b.opts.TemplateName, Methods: make([]string, len(defs))}
	for i, d := range defs {
		spec.Methods[i] = d.NativeName
	}

	h, err := b.svc.InstallType(ctx, spec)
	if err != nil {
		return errors.Wrap(errors.PhaseLifecycle, errors.KindInstantiation, err, "install template type")
	}
	if h == 0 {
		return errors.InvalidData(errors.PhaseLifecycle, nil, "guest returned a null template type")
	}

	if err := b.checkRange(h, defs); err != nil {
		b.disposeFailed(ctx, h)
		return errors.Wrap(errors.PhaseLifecycle, errors.KindOutOfBounds, err, "template type")
	}
	for _, d := range defs {
		ptr, err := b.readSlot(h, d.Offset)
		if err != nil {
			b.disposeFailed(ctx, h)
			return errors.Wrap(errors.PhaseLifecycle, errors.KindOutOfBounds, err, "read template slot "+d.NativeName)
		}
		if ptr == 0 {
			b.disposeFailed(ctx, h)
			return errors.New(errors.PhaseLifecycle, errors.KindInvalidData).
				Path(d.NativeName).
				Detail("template type has no trampoline at offset %d", d.Offset).
				Build()
		}
	}

	b.template = h
	b.state = Initialized
	Logger().Debug("slot bridge initialized",
		zap.Uint32("template", uint32(h)),
		zap.String("layout", b.opts.Table.Layout().Name))
	return nil
}

// Shutdown disposes of the template type. It is a no-op unless the bridge
// is Initialized. The bridge moves to Shutdown even when disposal fails.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if b.state != Initialized {
		return nil
	}
	h := b.template
	b.template = 0
	b.state = Shutdown

	if err := b.svc.DisposeType(ctx, h); err != nil {
		return errors.Wrap(errors.PhaseLifecycle, errors.KindInvalidData, err, "dispose template type")
	}
	Logger().Debug("slot bridge shut down", zap.Uint32("template", uint32(h)))
	return nil
}

// IsOperatorMethod reports whether m is a special method whose name is in
// the slot table.
func (b *Bridge) IsOperatorMethod(m Method) bool {
	return m.Special && b.opts.Table.Contains(m.Name)
}

// FixupSlots copies, for every operator method in methods, the template's
// trampoline pointer into the same slot of target. Only slots named by
// methods are written, and only after every one of them is known to lie
// inside guest memory. Calling it outside Initialized is a programming
// error and panics before touching guest memory.
func (b *Bridge) FixupSlots(target Handle, methods []Method) error {
	if b.state != Initialized {
		panic(errors.Lifecycle("FixupSlots", b.state.String()))
	}
	if target == 0 {
		return errors.InvalidInput(errors.PhaseFixup, "null target type")
	}

	var defs []slots.Definition
	for _, m := range methods {
		if !b.IsOperatorMethod(m) {
			continue
		}
		d, _ := b.opts.Table.Lookup(m.Name)
		defs = append(defs, d)
	}
	if err := b.checkRange(target, defs); err != nil {
		return err
	}

	written := 0
	for _, d := range defs {
		ptr, err := b.readSlot(b.template, d.Offset)
		if err != nil {
			return errors.New(errors.PhaseFixup, errors.KindOutOfBounds).
				Path(d.NativeName).
				Detail("read template slot at offset %d", d.Offset).
				Cause(err).
				Build()
		}
		if err := b.writeSlot(target, d.Offset, ptr); err != nil {
			return errors.New(errors.PhaseFixup, errors.KindOutOfBounds).
				Path(d.NativeName).
				Detail("write slot at offset %d of type 0x%x", d.Offset, uint32(target)).
				Cause(err).
				Build()
		}
		written++
	}

	Logger().Debug("fixed up operator slots",
		zap.Uint32("type", uint32(target)),
		zap.Int("slots", written))
	return nil
}

// FixupType lists the methods of t with the configured MethodLister and
// runs FixupSlots on them.
func (b *Bridge) FixupType(target Handle, t reflect.Type) error {
	if b.state != Initialized {
		panic(errors.Lifecycle("FixupType", b.state.String()))
	}
	if b.opts.Lister == nil {
		return errors.InvalidInput(errors.PhaseFixup, "no method lister configured")
	}
	return b.FixupSlots(target, b.opts.Lister.Methods(t))
}

// ClassifyForwardReverse splits the operator methods in methods into those
// whose first parameter is the declaring type and the rest. Methods that
// are not operator methods are dropped.
func (b *Bridge) ClassifyForwardReverse(methods []Method) (forward, reverse []Method) {
	for _, m := range methods {
		if !b.IsOperatorMethod(m) {
			continue
		}
		if m.Forward() {
			forward = append(forward, m)
		} else {
			reverse = append(reverse, m)
		}
	}
	return forward, reverse
}

// GuestNames returns the guest method names under which methods should be
// registered: the table name for forward methods and the reflected name for
// the rest.
func (b *Bridge) GuestNames(methods []Method) []string {
	forward, reverse := b.ClassifyForwardReverse(methods)
	names := make([]string, 0, len(forward)+len(reverse))
	for _, m := range forward {
		n, _ := b.opts.Table.NativeName(m.Name)
		names = append(names, n)
	}
	for _, m := range reverse {
		n, _ := b.opts.Table.NativeName(m.Name)
		names = append(names, slots.ReverseName(n))
	}
	return names
}

// checkRange verifies that every slot in defs lies inside guest memory for
// the type object at h, so that no write happens for a type that only
// partly fits.
func (b *Bridge) checkRange(h Handle, defs []slots.Definition) error {
	if len(defs) == 0 {
		return nil
	}
	var maxOffset uint32
	for _, d := range defs {
		maxOffset = max(maxOffset, d.Offset)
	}
	ptrSize := b.opts.Table.Layout().PointerSize
	end := uint64(h) + uint64(maxOffset) + uint64(ptrSize)

	limit := uint64(math.MaxUint32) + 1
	if sizer, ok := b.mem.(slotbridge.MemorySizer); ok {
		limit = uint64(sizer.Size())
	}
	if end > limit {
		return errors.New(errors.PhaseFixup, errors.KindOutOfBounds).
			Value(uint32(h)).
			Detail("type 0x%x needs %d bytes, guest memory ends at 0x%x", uint32(h), end-uint64(h), limit).
			Build()
	}
	return nil
}

func (b *Bridge) disposeFailed(ctx context.Context, h Handle) {
	if err := b.svc.DisposeType(ctx, h); err != nil {
		Logger().Warn("dispose template type after failed initialize",
			zap.Uint32("template", uint32(h)),
			zap.Error(err))
	}
}

func (b *Bridge) readSlot(h Handle, offset uint32) (uint64, error) {
	addr := uint32(h) + offset
	if b.opts.Table.Layout().PointerSize == 8 {
		return b.mem.ReadU64(addr)
	}
	v, err := b.mem.ReadU32(addr)
	return uint64(v), err
}

func (b *Bridge) writeSlot(h Handle, offset uint32, ptr uint64) error {
	addr := uint32(h) + offset
	if b.opts.Table.Layout().PointerSize == 8 {
		return b.mem.WriteU64(addr, ptr)
	}
	return b.mem.WriteU32(addr, uint32(ptr))
}

// reporter binds a context to a LayoutReporter for slots.Table.Validate.
type reporter struct {
	ctx context.Context
	r   LayoutReporter
}

func (r reporter) SlotOffset(k slots.Kind) (uint32, error) {
	return r.r.SlotOffset(r.ctx, k)
}

package slots

import (
	"sort"

	"github.com/wippyai/wasm-slotbridge/errors"
)

// Kind enumerates the supported numeric operators.
type Kind uint8

const (
	Add Kind = iota
	Subtract
	Multiply
	TrueDivide
	And
	Or
	Xor
	LeftShift
	RightShift
	Remainder
	Invert

	kindCount
)

// Count is the number of supported operators.
const Count = int(kindCount)

// ReflectMarker is inserted into a guest method name to form its reflected
// counterpart.
const (
	ReflectMarker   = "r"
	reflectPosition = 2
)

// numberMethodsSlots is the number of pointer slots in the guest's
// number-methods struct.
const numberMethodsSlots = 36

type entry struct {
	kind    Kind
	managed string
	native  string
	index   uint32
}

var entries = [...]entry{
	{Add, "OpAdd", "__add__", 0},
	{Subtract, "OpSub", "__sub__", 1},
	{Multiply, "OpMul", "__mul__", 2},
	{TrueDivide, "OpTrueDiv", "__truediv__", 30},
	{And, "OpAnd", "__and__", 13},
	{Or, "OpOr", "__or__", 15},
	{Xor, "OpXor", "__xor__", 14},
	{LeftShift, "OpLshift", "__lshift__", 11},
	{RightShift, "OpRshift", "__rshift__", 12},
	{Remainder, "OpMod", "__mod__", 3},
	{Invert, "OpInvert", "__invert__", 10},
}

func (k Kind) String() string {
	if int(k) < len(entries) {
		return entries[k].native
	}
	return "unknown"
}

// Layout pins the position of the number-methods struct in a guest type
// object.
type Layout struct {
	Name        string
	PointerSize uint32
	NumberBase  uint32 // byte offset of the first number slot
}

var (
	// Wasm32 is a 3.11-series interpreter heap type built for wasm32.
	Wasm32 = Layout{Name: "wasm32", PointerSize: 4, NumberBase: 220}
	// Wide64 is the same interpreter release with 8-byte pointers.
	Wide64 = Layout{Name: "wide64", PointerSize: 8, NumberBase: 440}
)

// LayoutByName returns a predefined layout.
func LayoutByName(name string) (Layout, error) {
	switch name {
	case "", Wasm32.Name:
		return Wasm32, nil
	case Wide64.Name:
		return Wide64, nil
	}
	return Layout{}, errors.NotFound(errors.PhaseConfig, "layout", name)
}

// MinTypeSize is the smallest type object that contains every number slot.
func (l Layout) MinTypeSize() uint32 {
	return l.NumberBase + numberMethodsSlots*l.PointerSize
}

// Definition describes one operator slot.
type Definition struct {
	Kind        Kind
	ManagedName string
	NativeName  string
	Offset      uint32
}

// Table is an immutable operator slot table for one Layout.
type Table struct {
	layout    Layout
	defs      [Count]Definition
	byManaged map[string]Kind
	byNative  map[string]Kind
}

// Default is the table for the Wasm32 layout.
var Default = NewTable(Wasm32)

// NewTable builds the table for layout.
func NewTable(layout Layout) *Table {
	t := &Table{
		layout:    layout,
		byManaged: make(map[string]Kind, Count),
		byNative:  make(map[string]Kind, Count),
	}
	for _, e := range entries {
		if _, dup := t.byManaged[e.managed]; dup {
			panic("slots: duplicate operator " + e.managed)
		}
		t.defs[e.kind] = Definition{
			Kind:        e.kind,
			ManagedName: e.managed,
			NativeName:  e.native,
			Offset:      layout.NumberBase + e.index*layout.PointerSize,
		}
		t.byManaged[e.managed] = e.kind
		t.byNative[e.native] = e.kind
	}
	return t
}

// Layout returns the layout the offsets were computed for.
func (t *Table) Layout() Layout {
	return t.layout
}

// Lookup finds the definition for a Go operator method name.
func (t *Table) Lookup(managed string) (Definition, bool) {
	k, ok := t.byManaged[managed]
	if !ok {
		return Definition{}, false
	}
	return t.defs[k], true
}

// LookupNative finds the definition for a guest method name.
func (t *Table) LookupNative(native string) (Definition, bool) {
	k, ok := t.byNative[native]
	if !ok {
		return Definition{}, false
	}
	return t.defs[k], true
}

// Contains reports whether managed names a supported operator.
func (t *Table) Contains(managed string) bool {
	_, ok := t.byManaged[managed]
	return ok
}

// NativeName returns the guest method name for a Go operator method name.
func (t *Table) NativeName(managed string) (string, bool) {
	d, ok := t.Lookup(managed)
	return d.NativeName, ok
}

// ByKind returns the definition for k.
func (t *Table) ByKind(k Kind) Definition {
	return t.defs[k]
}

// Definitions returns all definitions ordered by Kind.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, Count)
	copy(out, t.defs[:])
	return out
}

// ByOffset returns all definitions ordered by slot offset.
func (t *Table) ByOffset() []Definition {
	out := t.Definitions()
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// ReverseName derives the reflected guest method name: "__add__" becomes
// "__radd__". Names too short to carry the marker are returned unchanged.
func ReverseName(native string) string {
	if len(native) < reflectPosition {
		return native
	}
	return native[:reflectPosition] + ReflectMarker + native[reflectPosition:]
}

// Reporter reports slot offsets as the guest computed them.
type Reporter interface {
	SlotOffset(k Kind) (uint32, error)
}

// Validate checks every offset in the table against the guest. The first
// disagreement is returned as a layout_mismatch error.
func (t *Table) Validate(r Reporter) error {
	for _, d := range t.defs {
		got, err := r.SlotOffset(d.Kind)
		if err != nil {
			return errors.Wrap(errors.PhaseLayout, errors.KindNotFound, err, "query slot offset for "+d.NativeName)
		}
		if got != d.Offset {
			return errors.LayoutMismatch(d.NativeName, d.Offset, got)
		}
	}
	return nil
}

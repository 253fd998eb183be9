package native

import (
	"context"
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/wippyai/wasm-slotbridge/bridge"
	"github.com/wippyai/wasm-slotbridge/charset"
	"github.com/wippyai/wasm-slotbridge/errors"
	"github.com/wippyai/wasm-slotbridge/internal/guestmod"
	"github.com/wippyai/wasm-slotbridge/marshal"
	"github.com/wippyai/wasm-slotbridge/reflectlist"
	"github.com/wippyai/wasm-slotbridge/slots"
)

type Vec struct{ X, Y float64 }

func (v Vec) OpAdd(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) OpSub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) OpMul(k float64) Vec { return Vec{v.X * k, v.Y * k} }
func (v Vec) OpInvert() Vec { return Vec{-v.X, -v.Y} }
func (v Vec) Len() float64 { return v.X*v.X + v.Y*v.Y }
func (v *Vec) OpMatMul(o *Vec) float64 { return v.X*o.X + v.Y*o.Y }

func loadGuest(t *testing.T, opts guestmod.Options) *Guest {
	t.Helper()
	ctx := context.Background()
	g, err := Load(ctx, guestmod.Build(opts), &Config{Layout: opts.Layout})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { g.Close(ctx) })
	return g
}

func live(t *testing.T, g *Guest) uint64 {
	t.Helper()
	return g.Module().ExportedGlobal("live").Get()
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		wasm []byte
		kind errors.Kind
	}{
		{"garbage", []byte("not wasm"), errors.KindInvalidData},
		{"empty module", []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}, errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.wasm, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("error type = %T, want *errors.Error", err)
			}
			if e.Phase != errors.PhaseLoad || e.Kind != tt.kind {
				t.Errorf("got %s/%s, want load/%s", e.Phase, e.Kind, tt.kind)
			}
		})
	}
}

func TestGuest_StringRoundTrip(t *testing.T) {
	g := loadGuest(t, guestmod.Options{})
	before := live(t, g)

	for _, mode := range []charset.Mode{charset.UTF8, charset.UTF16, charset.UTF32, charset.Legacy} {
		t.Run(mode.String(), func(t *testing.T) {
			opts := marshal.DefaultOptions()
			opts.Mode = mode
			m := g.Marshaler(opts)

			in := "hello"
			if mode != charset.Legacy {
				in = "héllo 世界 😀"
			}
			b, err := m.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := m.Decode(b.Ptr)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if out != in {
				t.Errorf("round trip = %q, want %q", out, in)
			}
			if err := m.Release(b); err != nil {
				t.Fatalf("Release: %v", err)
			}
			if m.Outstanding() != 0 {
				t.Errorf("Outstanding = %d, want 0", m.Outstanding())
			}
		})
	}

	if got := live(t, g); got != before {
		t.Errorf("guest live blocks = %d, want %d", got, before)
	}
}

func TestGuest_ArrayRoundTrip(t *testing.T) {
	g := loadGuest(t, guestmod.Options{})
	m := g.Marshaler(marshal.DefaultOptions())

	in := []string{"__add__", "__sub__", ""}
	b, err := m.EncodeArray(in)
	if err != nil {
		t.Fatalf("EncodeArray: %v", err)
	}
	defer m.Release(b)

	out, err := m.DecodeArray(b.Ptr, len(in))
	if err != nil {
		t.Fatalf("DecodeArray: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("DecodeArray = %q, want %q", out, in)
	}
}

func TestGuest_TypeServiceReporting(t *testing.T) {
	plain := loadGuest(t, guestmod.Options{})
	if _, ok := plain.TypeService().(bridge.LayoutReporter); ok {
		t.Error("guest without type_slot_offset should not report layout")
	}
	reporting := loadGuest(t, guestmod.Options{ReportLayout: true})
	if _, ok := reporting.TypeService().(bridge.LayoutReporter); !ok {
		t.Error("guest with type_slot_offset should report layout")
	}
}

func TestGuest_InstallTypeReleasesSpec(t *testing.T) {
	ctx := context.Background()
	g := loadGuest(t, guestmod.Options{})
	svc := g.TypeService()

	h, err := svc.InstallType(ctx, bridge.TypeSpec{Name: "Vec", Methods: []string{"__add__"}})
	if err != nil {
		t.Fatalf("InstallType: %v", err)
	}
	if h == 0 {
		t.Fatal("InstallType returned null handle")
	}
	// only the type object stays allocated
	if got := live(t, g); got != 1 {
		t.Errorf("live after install = %d, want 1", got)
	}
	if err := svc.DisposeType(ctx, h); err != nil {
		t.Fatalf("DisposeType: %v", err)
	}
	if got := live(t, g); got != 0 {
		t.Errorf("live after dispose = %d, want 0", got)
	}
}

func TestGuest_BridgeCycle(t *testing.T) {
	for _, layout := range []slots.Layout{slots.Wasm32, slots.Wide64} {
		t.Run(layout.Name, func(t *testing.T) {
			ctx := context.Background()
			g := loadGuest(t, guestmod.Options{Layout: layout, ReportLayout: true})
			svc := g.TypeService()

			opts := bridge.DefaultOptions()
			opts.Table = slots.NewTable(layout)
			opts.Lister = reflectlist.New()
			b := bridge.New(svc, g.Memory(), opts)

			if err := b.Initialize(ctx); err != nil {
				t.Fatalf("Initialize: %v", err)
			}

			target, err := svc.InstallType(ctx, bridge.TypeSpec{Name: "Vec"})
			if err != nil {
				t.Fatalf("InstallType: %v", err)
			}
			if err := b.FixupType(target, reflect.TypeOf(Vec{})); err != nil {
				t.Fatalf("FixupType: %v", err)
			}

			want := map[slots.Kind]bool{slots.Add: true, slots.Subtract: true, slots.Multiply: true, slots.Invert: true}
			for _, d := range opts.Table.Definitions() {
				var got uint64
				if layout.PointerSize == 8 {
					got, err = g.Memory().ReadU64(uint32(target) + d.Offset)
				} else {
					var v uint32
					v, err = g.Memory().ReadU32(uint32(target) + d.Offset)
					got = uint64(v)
				}
				if err != nil {
					t.Fatalf("read %s: %v", d.NativeName, err)
				}
				var expect uint64
				if want[d.Kind] {
					expect = guestmod.Trampoline(d.Kind)
				}
				if got != expect {
					t.Errorf("slot %s = %d, want %d", d.NativeName, got, expect)
				}
			}

			if err := svc.DisposeType(ctx, target); err != nil {
				t.Fatalf("DisposeType: %v", err)
			}
			if err := b.Shutdown(ctx); err != nil {
				t.Fatalf("Shutdown: %v", err)
			}
			if got := live(t, g); got != 0 {
				t.Errorf("live after shutdown = %d, want 0", got)
			}
		})
	}
}

func TestGuest_LayoutMismatch(t *testing.T) {
	reported := make([]uint32, slots.Count)
	for i, d := range slots.Default.Definitions() {
		reported[i] = d.Offset
	}
	reported[slots.TrueDivide] += 4

	ctx := context.Background()
	g := loadGuest(t, guestmod.Options{ReportLayout: true, Reported: reported})
	b := bridge.NewWithDefaults(g.TypeService(), g.Memory())

	err := b.Initialize(ctx)
	if err == nil {
		t.Fatal("expected layout mismatch")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLayout, Kind: errors.KindLayoutMismatch}) {
		t.Errorf("error = %v, want layout mismatch", err)
	}
	if b.State() != bridge.Uninitialized {
		t.Errorf("state = %s, want uninitialized", b.State())
	}
	if got := live(t, g); got != 0 {
		t.Errorf("template installed despite mismatch: live = %d", got)
	}
}

func TestAllocator_Free(t *testing.T) {
	g := loadGuest(t, guestmod.Options{})
	a := g.Allocator()

	ptr, err := a.Alloc(32, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if ptr == 0 || ptr%8 != 0 {
		t.Errorf("Alloc = %d, want non-null 8-aligned", ptr)
	}
	if got := live(t, g); got != 1 {
		t.Errorf("live = %d, want 1", got)
	}
	a.Free(ptr, 32, 8)
	a.Free(0, 0, 1)
	if got := live(t, g); got != 0 {
		t.Errorf("live = %d, want 0", got)
	}
}

func TestMemory_Bounds(t *testing.T) {
	g := loadGuest(t, guestmod.Options{})
	mem := g.Memory()
	size := mem.Size()
	if size == 0 {
		t.Fatal("Size = 0")
	}
	if _, err := mem.Read(size-2, 4); err == nil {
		t.Error("Read past end succeeded")
	}
	if err := mem.WriteU32(size-2, 1); err == nil {
		t.Error("WriteU32 past end succeeded")
	}
	if err := mem.WriteU16(size-2, 0xBEEF); err != nil {
		t.Fatalf("WriteU16: %v", err)
	}
	v, err := mem.ReadU16(size - 2)
	if err != nil || v != 0xBEEF {
		t.Errorf("ReadU16 = %#x, %v", v, err)
	}
}

func TestMemory_ReadDoesNotAlias(t *testing.T) {
	g := loadGuest(t, guestmod.Options{})
	mem := g.Memory()

	if err := mem.Write(guestmod.HeapBase, []byte("abcd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := mem.Read(guestmod.HeapBase, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := mem.Write(guestmod.HeapBase, []byte("wxyz")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(got) != "abcd" {
		t.Errorf("earlier Read changed to %q after a write", got)
	}
}

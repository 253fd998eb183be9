// Package guestmod assembles a minimal interpreter guest for tests.
//
// The guest exports linear memory and the ABI the native package expects:
//
//	malloc(size i32) -> i32             bump allocator, 8-byte aligned
//	free(ptr i32)                       counts frees, never reuses memory
//	type_install(name, methods, n i32) -> i32
//	type_dispose(type i32)
//	type_slot_offset(kind i32) -> i32   only when Options.ReportLayout is set
//
// type_install allocates a zeroed type object of Layout.MinTypeSize bytes.
// When n > 0 every operator slot is filled with Trampoline(kind), standing
// in for the interpreter's generic slot functions. The mutable globals
// "heap" and "live" expose the allocator state.
package guestmod

import (
	"encoding/binary"

	"github.com/wippyai/wasm-slotbridge/slots"
)

const (
	i32 = 0x7f
	i64 = 0x7e

	opEnd       = 0x0b
	opIf        = 0x04
	opCall      = 0x10
	opLocalGet  = 0x20
	opLocalSet  = 0x21
	opLocalTee  = 0x22
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Load   = 0x28
	opI32Store  = 0x36
	opI64Store  = 0x37
	opI32Const  = 0x41
	opI64Const  = 0x42
	opI32Add    = 0x6a
	opI32Sub    = 0x6b
	opI32And    = 0x71
	opI32Shl    = 0x74

	blockEmpty = 0x40
)

const (
	// HeapBase is the first address malloc hands out.
	HeapBase = 1024
	// offsetTable holds the reported slot offsets, one u32 per kind.
	offsetTable = 64
	memoryPages = 4
)

const (
	fnMalloc = iota
	fnFree
	fnTypeInstall
	fnTypeDispose
	fnTypeSlotOffset
)

// Options configures the generated guest.
type Options struct {
	Layout slots.Layout
	// ReportLayout exports type_slot_offset.
	ReportLayout bool
	// Reported overrides the offsets type_slot_offset returns. Defaults to
	// the offsets of Layout.
	Reported []uint32
}

// Trampoline is the slot value the guest installs for kind.
func Trampoline(k slots.Kind) uint64 {
	return 100 + uint64(k)
}

// Build returns the guest module binary.
func Build(opts Options) []byte {
	if opts.Layout.PointerSize == 0 {
		opts.Layout = slots.Wasm32
	}
	table := slots.NewTable(opts.Layout)

	w := &writer{}
	w.u32le(0x6d736100) // \0asm
	w.u32le(1)

	types := &writer{}
	types.u32(3)
	types.byte(0x60, 1, i32, 1, i32)           // 0: (i32) -> i32
	types.byte(0x60, 1, i32, 0)                // 1: (i32) -> ()
	types.byte(0x60, 3, i32, i32, i32, 1, i32) // 2: (i32 i32 i32) -> i32
	w.section(1, types)

	funcTypes := []byte{0, 1, 2, 1}
	if opts.ReportLayout {
		funcTypes = append(funcTypes, 0)
	}
	funcs := &writer{}
	funcs.u32(uint32(len(funcTypes)))
	funcs.byte(funcTypes...)
	w.section(3, funcs)

	mem := &writer{}
	mem.u32(1)
	mem.byte(0x00)
	mem.u32(memoryPages)
	w.section(5, mem)

	globals := &writer{}
	globals.u32(2)
	globals.byte(i32, 0x01, opI32Const)
	globals.s32(HeapBase)
	globals.byte(opEnd)
	globals.byte(i32, 0x01, opI32Const)
	globals.s32(0)
	globals.byte(opEnd)
	w.section(6, globals)

	exports := &writer{}
	names := []string{"malloc", "free", "type_install", "type_dispose"}
	if opts.ReportLayout {
		names = append(names, "type_slot_offset")
	}
	exports.u32(uint32(len(names) + 3))
	exports.name("memory")
	exports.byte(0x02, 0)
	exports.name("heap")
	exports.byte(0x03, 0)
	exports.name("live")
	exports.byte(0x03, 1)
	for i, n := range names {
		exports.name(n)
		exports.byte(0x00)
		exports.u32(uint32(i))
	}
	w.section(7, exports)

	code := &writer{}
	code.u32(uint32(len(funcTypes)))
	body(code, []byte{1, 1, i32}, mallocBody())
	body(code, []byte{0}, freeBody())
	body(code, []byte{1, 1, i32}, installBody(table))
	body(code, []byte{0}, disposeBody())
	if opts.ReportLayout {
		body(code, []byte{0}, slotOffsetBody())
	}
	w.section(10, code)

	if opts.ReportLayout {
		reported := opts.Reported
		if reported == nil {
			for _, d := range table.Definitions() {
				reported = append(reported, d.Offset)
			}
		}
		payload := make([]byte, 4*len(reported))
		for i, off := range reported {
			binary.LittleEndian.PutUint32(payload[4*i:], off)
		}
		data := &writer{}
		data.u32(1)
		data.byte(0x00, opI32Const)
		data.s32(offsetTable)
		data.byte(opEnd)
		data.u32(uint32(len(payload)))
		data.byte(payload...)
		w.section(11, data)
	}

	return w.bytes()
}

func body(code *writer, locals []byte, instrs *writer) {
	fn := &writer{}
	fn.byte(locals...)
	fn.byte(instrs.bytes()...)
	fn.byte(opEnd)
	code.u32(uint32(len(fn.bytes())))
	code.byte(fn.bytes()...)
}

// mallocBody: ptr = heap; heap = (ptr + size + 15) & -8; live++; return ptr
func mallocBody() *writer {
	w := &writer{}
	w.byte(opGlobalGet, 0, opLocalTee, 1)
	w.byte(opLocalGet, 0, opI32Add)
	w.byte(opI32Const)
	w.s32(15)
	w.byte(opI32Add, opI32Const)
	w.s32(-8)
	w.byte(opI32And, opGlobalSet, 0)
	liveAdd(w, 1)
	w.byte(opLocalGet, 1)
	return w
}

// freeBody: live--
func freeBody() *writer {
	w := &writer{}
	liveAdd(w, -1)
	return w
}

func liveAdd(w *writer, delta int32) {
	w.byte(opGlobalGet, 1, opI32Const)
	w.s32(delta)
	w.byte(opI32Add, opGlobalSet, 1)
}

// installBody: t = malloc(size); if n { store trampolines }; return t
func installBody(table *slots.Table) *writer {
	layout := table.Layout()
	w := &writer{}
	w.byte(opI32Const)
	w.s32(int32(layout.MinTypeSize()))
	w.byte(opCall, fnMalloc, opLocalSet, 3)
	w.byte(opLocalGet, 2, opIf, blockEmpty)
	for _, d := range table.Definitions() {
		w.byte(opLocalGet, 3)
		if layout.PointerSize == 8 {
			w.byte(opI64Const)
			w.s64(int64(Trampoline(d.Kind)))
			w.byte(opI64Store, 3)
		} else {
			w.byte(opI32Const)
			w.s32(int32(Trampoline(d.Kind)))
			w.byte(opI32Store, 2)
		}
		w.u32(d.Offset)
	}
	w.byte(opEnd)
	w.byte(opLocalGet, 3)
	return w
}

// disposeBody: free(t)
func disposeBody() *writer {
	w := &writer{}
	w.byte(opLocalGet, 0, opCall, fnFree)
	return w
}

// slotOffsetBody: return load32(offsetTable + kind*4)
func slotOffsetBody() *writer {
	w := &writer{}
	w.byte(opLocalGet, 0, opI32Const)
	w.s32(2)
	w.byte(opI32Shl, opI32Load, 2)
	w.u32(offsetTable)
	return w
}

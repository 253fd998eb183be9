// Package simheap is an in-process stand-in for a guest heap.
//
// Heap implements the slotbridge Memory and Allocator interfaces over a
// plain byte slice with a first-fit allocator, and keeps a ledger of live
// blocks so tests can assert on leaks and double frees. Faults can be
// injected into allocation and writes.
package simheap

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// base keeps address 0 unused so it can serve as the null pointer.
const base = 16

// Heap is a simulated guest linear memory with an allocator.
type Heap struct {
	data  []byte
	live  map[uint32]uint32
	holes []span

	next uint32

	// FailAlloc makes every Alloc fail when set.
	FailAlloc bool
	// FailWrite makes Write fail for any range that overlaps the address.
	FailWrite func(offset uint32, length uint32) bool

	Allocs     int
	Frees      int
	BadFrees   int
	WriteCalls int
}

type span struct {
	ptr, size uint32
}

// New creates a heap with size bytes of memory.
func New(size uint32) *Heap {
	return &Heap{
		data: make([]byte, size),
		live: make(map[uint32]uint32),
		next: base,
	}
}

// Size implements slotbridge.MemorySizer.
func (h *Heap) Size() uint32 {
	return uint32(len(h.data))
}

// Live returns the number of outstanding allocations.
func (h *Heap) Live() int {
	return len(h.live)
}

// BlockSize returns the size of a live allocation.
func (h *Heap) BlockSize(ptr uint32) (uint32, bool) {
	size, ok := h.live[ptr]
	return size, ok
}

// Alloc implements slotbridge.Allocator.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if h.FailAlloc {
		return 0, fmt.Errorf("simheap: allocation of %d bytes refused", size)
	}
	if align == 0 {
		align = 1
	}
	need := size
	if need == 0 {
		need = 1
	}

	for i, hole := range h.holes {
		ptr := alignUp(hole.ptr, align)
		if ptr+need <= hole.ptr+hole.size {
			h.holes = append(h.holes[:i], h.holes[i+1:]...)
			return h.commit(ptr, size), nil
		}
	}

	ptr := alignUp(h.next, align)
	if uint64(ptr)+uint64(need) > uint64(len(h.data)) {
		return 0, fmt.Errorf("simheap: out of memory allocating %d bytes", size)
	}
	h.next = ptr + need
	return h.commit(ptr, size), nil
}

func (h *Heap) commit(ptr, size uint32) uint32 {
	clear(h.data[ptr : ptr+size])
	h.live[ptr] = size
	h.Allocs++
	return ptr
}

// Free implements slotbridge.Allocator. Freeing a pointer that is not live
// is counted in BadFrees and otherwise ignored.
func (h *Heap) Free(ptr, size, align uint32) {
	got, ok := h.live[ptr]
	if !ok {
		h.BadFrees++
		return
	}
	delete(h.live, ptr)
	h.Frees++
	if got == 0 {
		got = 1
	}
	h.holes = append(h.holes, span{ptr: ptr, size: got})
	sort.Slice(h.holes, func(i, j int) bool { return h.holes[i].ptr < h.holes[j].ptr })
}

func (h *Heap) bounds(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(h.data)) {
		return fmt.Errorf("memory access out of bounds: offset=%d, length=%d", offset, length)
	}
	return nil
}

// Read implements slotbridge.Memory.
func (h *Heap) Read(offset, length uint32) ([]byte, error) {
	if err := h.bounds(offset, length); err != nil {
		return nil, err
	}
	return h.data[offset : offset+length], nil
}

// Write implements slotbridge.Memory.
func (h *Heap) Write(offset uint32, data []byte) error {
	h.WriteCalls++
	if h.FailWrite != nil && h.FailWrite(offset, uint32(len(data))) {
		return fmt.Errorf("simheap: injected write fault at offset=%d", offset)
	}
	if err := h.bounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(h.data[offset:], data)
	return nil
}

func (h *Heap) ReadU8(offset uint32) (uint8, error) {
	if err := h.bounds(offset, 1); err != nil {
		return 0, err
	}
	return h.data[offset], nil
}

func (h *Heap) ReadU16(offset uint32) (uint16, error) {
	if err := h.bounds(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(h.data[offset:]), nil
}

func (h *Heap) ReadU32(offset uint32) (uint32, error) {
	if err := h.bounds(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(h.data[offset:]), nil
}

func (h *Heap) ReadU64(offset uint32) (uint64, error) {
	if err := h.bounds(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(h.data[offset:]), nil
}

func (h *Heap) WriteU8(offset uint32, value uint8) error {
	return h.Write(offset, []byte{value})
}

func (h *Heap) WriteU16(offset uint32, value uint16) error {
	return h.Write(offset, binary.LittleEndian.AppendUint16(nil, value))
}

func (h *Heap) WriteU32(offset uint32, value uint32) error {
	return h.Write(offset, binary.LittleEndian.AppendUint32(nil, value))
}

func (h *Heap) WriteU64(offset uint32, value uint64) error {
	return h.Write(offset, binary.LittleEndian.AppendUint64(nil, value))
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

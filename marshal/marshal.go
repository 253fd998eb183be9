package marshal

import (
	"math"
	"strconv"

	slotbridge "github.com/wippyai/wasm-slotbridge"
	"github.com/wippyai/wasm-slotbridge/charset"
	"github.com/wippyai/wasm-slotbridge/errors"
)

// Safety limits on guest buffers.
const (
	DefaultMaxUnits = 1 << 24 // longest string Decode will scan for, in code units
	MaxAlloc        = 1 << 30 // default largest single block
)

// Options configures a Marshaler.
type Options struct {
	Mode        charset.Mode
	PointerSize uint32 // 4 or 8; width of pointer slots in array blocks
	MaxUnits    uint32
	MaxBlock    uint32 // largest block Encode or EncodeArray will allocate
}

// DefaultOptions returns the active wide mode with wasm32 pointer slots.
func DefaultOptions() Options {
	return Options{
		Mode:        charset.Active,
		PointerSize: 4,
		MaxUnits:    DefaultMaxUnits,
		MaxBlock:    MaxAlloc,
	}
}

// Block is a guest allocation owned by whoever holds it.
// The zero Block is the null block.
type Block struct {
	Ptr  uint32
	Size uint32
}

// IsNull reports whether b is the null block.
func (b Block) IsNull() bool {
	return b.Ptr == 0
}

type allocation struct {
	size  uint32
	align uint32
}

// ledger tracks every block handed out and not yet released.
type ledger struct {
	live map[uint32]allocation
}

// Marshaler encodes and decodes guest strings under one mode.
type Marshaler struct {
	mem    slotbridge.Memory
	alloc  slotbridge.Allocator
	ledger *ledger
	opts   Options
}

// New creates a Marshaler over the given guest memory and allocator.
func New(mem slotbridge.Memory, alloc slotbridge.Allocator, opts Options) *Marshaler {
	if opts.PointerSize != 8 {
		opts.PointerSize = 4
	}
	if opts.MaxUnits == 0 {
		opts.MaxUnits = DefaultMaxUnits
	}
	if opts.MaxBlock == 0 || opts.MaxBlock > MaxAlloc {
		opts.MaxBlock = MaxAlloc
	}
	return &Marshaler{
		mem:    mem,
		alloc:  alloc,
		ledger: &ledger{live: make(map[uint32]allocation)},
		opts:   opts,
	}
}

// NewWithDefaults creates a Marshaler with DefaultOptions.
func NewWithDefaults(mem slotbridge.Memory, alloc slotbridge.Allocator) *Marshaler {
	return New(mem, alloc, DefaultOptions())
}

// WithMode returns a Marshaler for another mode that shares this one's
// memory, allocator and block ledger. Blocks from either may be released
// through the other.
func (m *Marshaler) WithMode(mode charset.Mode) *Marshaler {
	cp := *m
	cp.opts.Mode = mode
	return &cp
}

// Mode returns the encoding this Marshaler uses.
func (m *Marshaler) Mode() charset.Mode {
	return m.opts.Mode
}

// PointerSize returns the width of pointer slots in array blocks.
func (m *Marshaler) PointerSize() uint32 {
	return m.opts.PointerSize
}

// Outstanding returns the number of blocks handed out and not yet released.
func (m *Marshaler) Outstanding() int {
	return len(m.ledger.live)
}

// Encode copies s into a new guest block with a terminator appended.
func (m *Marshaler) Encode(s string) (Block, error) {
	data, err := m.opts.Mode.Encode(s)
	if err != nil {
		return Block{}, err
	}
	if uint64(len(data)) > uint64(m.opts.MaxBlock) {
		return Block{}, errors.Overflow(errors.PhaseEncode, nil, len(data), "guest block")
	}

	blk, err := m.allocate(uint32(len(data)), m.opts.Mode.Width())
	if err != nil {
		return Block{}, err
	}

	if err := m.mem.Write(blk.Ptr, data); err != nil {
		m.discard(blk)
		return Block{}, errors.New(errors.PhaseEncode, errors.KindOutOfBounds).
			Encoding(m.opts.Mode.String()).
			Detail("copy %d bytes to 0x%x", len(data), blk.Ptr).
			Cause(err).
			Build()
	}
	return blk, nil
}

// EncodePtr is Encode for a nullable string: nil yields the null block.
func (m *Marshaler) EncodePtr(s *string) (Block, error) {
	if s == nil {
		return Block{}, nil
	}
	return m.Encode(*s)
}

// EncodeArray packs ss into a single block: a table of len(ss) pointer
// slots followed by the terminated payloads. A nil or empty slice yields the
// null block.
func (m *Marshaler) EncodeArray(ss []string) (Block, error) {
	if len(ss) == 0 {
		return Block{}, nil
	}

	payloads := make([][]byte, len(ss))
	total := uint64(m.opts.PointerSize) * uint64(len(ss))
	for i, s := range ss {
		data, err := m.opts.Mode.Encode(s)
		if err != nil {
			return Block{}, withPath(err, strconv.Itoa(i))
		}
		payloads[i] = data
		total += uint64(len(data))
	}
	if total > uint64(m.opts.MaxBlock) {
		return Block{}, errors.Overflow(errors.PhaseEncode, nil, total, "guest block")
	}

	blk, err := m.allocate(uint32(total), m.opts.PointerSize)
	if err != nil {
		return Block{}, err
	}

	offset := m.opts.PointerSize * uint32(len(ss))
	for i, data := range payloads {
		slot := blk.Ptr + uint32(i)*m.opts.PointerSize
		if err := m.writePointer(slot, blk.Ptr+offset); err != nil {
			m.discard(blk)
			return Block{}, errors.OutOfBounds(errors.PhaseEncode, slot, m.opts.PointerSize, err)
		}
		if err := m.mem.Write(blk.Ptr+offset, data); err != nil {
			m.discard(blk)
			return Block{}, errors.New(errors.PhaseEncode, errors.KindOutOfBounds).
				Path(strconv.Itoa(i)).
				Encoding(m.opts.Mode.String()).
				Detail("copy %d bytes to 0x%x", len(data), blk.Ptr+offset).
				Cause(err).
				Build()
		}
		offset += uint32(len(data))
	}
	return blk, nil
}

// Decode reads a terminated string starting at ptr. A zero ptr yields "".
func (m *Marshaler) Decode(ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	units, err := m.scan(ptr)
	if err != nil {
		return "", err
	}

	length := units * m.opts.Mode.Width()
	data, err := m.mem.Read(ptr, length)
	if err != nil {
		return "", errors.OutOfBounds(errors.PhaseDecode, ptr, length, err)
	}
	return m.opts.Mode.Decode(data)
}

// DecodePtr is Decode for a nullable result: a zero ptr yields nil.
func (m *Marshaler) DecodePtr(ptr uint32) (*string, error) {
	if ptr == 0 {
		return nil, nil
	}
	s, err := m.Decode(ptr)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeArray reads n pointer slots starting at ptr and decodes the string
// each one points at. A null slot decodes to "".
func (m *Marshaler) DecodeArray(ptr uint32, n int) ([]string, error) {
	if ptr == 0 {
		return nil, nil
	}
	out := make([]string, n)
	for i := range out {
		slot := ptr + uint32(i)*m.opts.PointerSize
		target, err := m.readPointer(slot)
		if err != nil {
			return nil, errors.OutOfBounds(errors.PhaseDecode, slot, m.opts.PointerSize, err)
		}
		s, err := m.Decode(target)
		if err != nil {
			return nil, withPath(err, strconv.Itoa(i))
		}
		out[i] = s
	}
	return out, nil
}

// Release frees a block returned by Encode, EncodePtr or EncodeArray.
// Releasing the null block is a no-op. Releasing a block that is not live
// returns a double_free error and leaves the allocator untouched.
func (m *Marshaler) Release(b Block) error {
	if b.IsNull() {
		return nil
	}
	a, ok := m.ledger.live[b.Ptr]
	if !ok {
		return errors.DoubleFree(b.Ptr)
	}
	delete(m.ledger.live, b.Ptr)
	m.alloc.Free(b.Ptr, a.size, a.align)
	return nil
}

// Bytes returns a copy of the contents of a live block.
func (m *Marshaler) Bytes(b Block) ([]byte, error) {
	if b.IsNull() {
		return nil, nil
	}
	if _, ok := m.ledger.live[b.Ptr]; !ok {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Value(b.Ptr).
			Detail("block 0x%x is not owned by this marshaler", b.Ptr).
			Build()
	}
	data, err := m.mem.Read(b.Ptr, b.Size)
	if err != nil {
		return nil, errors.OutOfBounds(errors.PhaseDecode, b.Ptr, b.Size, err)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Marshaler) allocate(size, align uint32) (Block, error) {
	ptr, err := m.alloc.Alloc(size, align)
	if err != nil {
		return Block{}, errors.AllocationFailed(errors.PhaseEncode, size, align, err)
	}
	if ptr == 0 {
		return Block{}, errors.AllocationFailed(errors.PhaseEncode, size, align, nil)
	}
	m.ledger.live[ptr] = allocation{size: size, align: align}
	return Block{Ptr: ptr, Size: size}, nil
}

// discard frees a block that never reached its caller.
func (m *Marshaler) discard(b Block) {
	if a, ok := m.ledger.live[b.Ptr]; ok {
		delete(m.ledger.live, b.Ptr)
		m.alloc.Free(b.Ptr, a.size, a.align)
	}
}

// scan counts code units before the terminator at ptr.
func (m *Marshaler) scan(ptr uint32) (uint32, error) {
	w := m.opts.Mode.Width()
	limit := m.opts.MaxUnits
	if sizer, ok := m.mem.(slotbridge.MemorySizer); ok {
		size := uint64(sizer.Size())
		if uint64(ptr) >= size {
			return 0, errors.OutOfBounds(errors.PhaseDecode, ptr, w, nil)
		}
		if avail := (size - uint64(ptr)) / uint64(w); avail < uint64(limit) {
			limit = uint32(avail)
		}
	}

	for n := uint32(0); n < limit; n++ {
		at := uint64(ptr) + uint64(n)*uint64(w)
		if at > math.MaxUint32 {
			break
		}
		zero, err := m.isZeroUnit(uint32(at), w)
		if err != nil {
			return 0, errors.New(errors.PhaseDecode, errors.KindFormat).
				Encoding(m.opts.Mode.String()).
				Detail("buffer at 0x%x ends after %d code units without a terminator", ptr, n).
				Cause(err).
				Build()
		}
		if zero {
			return n, nil
		}
	}
	return 0, errors.Unterminated(ptr, limit, m.opts.Mode.String())
}

func (m *Marshaler) isZeroUnit(at, w uint32) (bool, error) {
	switch w {
	case 2:
		v, err := m.mem.ReadU16(at)
		return v == 0, err
	case 4:
		v, err := m.mem.ReadU32(at)
		return v == 0, err
	default:
		v, err := m.mem.ReadU8(at)
		return v == 0, err
	}
}

func (m *Marshaler) writePointer(slot, target uint32) error {
	if m.opts.PointerSize == 8 {
		return m.mem.WriteU64(slot, uint64(target))
	}
	return m.mem.WriteU32(slot, target)
}

func (m *Marshaler) readPointer(slot uint32) (uint32, error) {
	if m.opts.PointerSize == 8 {
		v, err := m.mem.ReadU64(slot)
		if err != nil {
			return 0, err
		}
		if v > math.MaxUint32 {
			return 0, errors.Overflow(errors.PhaseDecode, nil, v, "wasm32 address")
		}
		return uint32(v), nil
	}
	return m.mem.ReadU32(slot)
}

func withPath(err error, elem string) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = append([]string{elem}, e.Path...)
		return e
	}
	return err
}

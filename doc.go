// Package slotbridge connects Go values to an interpreter running as a
// WebAssembly guest.
//
// It covers two boundary concerns: moving text across the guest ABI under
// several code-unit widths without leaking or double-freeing guest memory,
// and making Go operator methods take part in the guest's number protocol by
// copying trampoline pointers from a template type object into the type
// objects of exposed Go types.
//
// # Architecture Overview
//
//	slotbridge/          Root package with core Memory and Allocator interfaces
//	├── charset/         Text encoding modes and the build-time active mode
//	├── marshal/         String and string-array blocks in guest memory
//	├── slots/           Operator slot table and type object layouts
//	├── bridge/          Template lifecycle and slot fixups
//	├── reflectlist/     Go method enumeration for the bridge
//	├── native/          wazero guest loading, memory and allocator adapters
//	├── config/          TOML configuration
//	├── errors/          Structured error types for debugging
//	└── cmd/slotdump/    Template slot table inspector
//
// # Quick Start
//
//	g, err := native.Load(ctx, wasm, &native.Config{Layout: slots.Wasm32})
//	if err != nil {
//		return err
//	}
//	defer g.Close(ctx)
//
//	m := g.Marshaler(marshal.DefaultOptions())
//	blk, err := m.Encode("hello")
//	...
//	defer m.Release(blk)
//
//	opts := bridge.DefaultOptions()
//	opts.Lister = reflectlist.New()
//	b := bridge.New(g.TypeService(), g.Memory(), opts)
//	if err := b.Initialize(ctx); err != nil {
//		return err
//	}
//	defer b.Shutdown(ctx)
//
//	// for every Go type exposed to the guest:
//	err = b.FixupType(typeHandle, reflect.TypeOf(Vec{}))
//
// # Memory Interface
//
// Guest memory is reached through the Memory interface; native.Memory
// adapts wazero, and any implementation with little-endian accessors works.
// Implementations that also satisfy MemorySizer bound string scans by the
// size of linear memory.
//
// # Thread Safety
//
// A Marshaler and a Bridge belong to one guest instance and are not safe for
// concurrent use. Callers serialize access, normally by holding the
// interpreter lock.
package slotbridge

// Package bridge makes Go operator methods reachable through the guest's
// numeric operator protocol.
//
// The guest interpreter dispatches a + b through a function pointer slot in
// the type object of a. For types it creates itself, the interpreter fills
// these slots with generic trampolines that look the operator up by name
// (for example __add__) and call it. Types that represent Go values are laid
// out by the host, so their slots start out empty.
//
// A Bridge fixes this without generating guest code. Initialize installs a
// template type that declares every supported operator method, which makes
// the guest fill in a trampoline for each slot. FixupSlots then copies the
// trampoline pointer for each operator a Go type implements from the
// template into the target type, at the same offset:
//
//	template + off(__add__)  ──copy──▶  target + off(__add__)
//
// # Lifecycle
//
//	Uninitialized ──Initialize──▶ Initialized ──Shutdown──▶ Shutdown
//	                                   ▲                        │
//	                                   └───────Initialize───────┘
//
// FixupSlots and FixupType panic outside Initialized: calling them early or
// late is a bug in the embedding code, not a runtime condition.
//
// # Method Discovery
//
// The Bridge does not walk Go types itself. It takes Method descriptors
// from an injected MethodLister, so tests can use synthetic method sets.
// The reflectlist package provides a reflection based lister.
//
// # Thread Safety
//
// A Bridge performs no locking. All calls must happen under the guest
// interpreter lock, and lifecycle transitions must not race with fixups.
package bridge

// Package marshal moves host strings into guest memory and back.
//
// A Marshaler encodes strings under one charset.Mode into blocks allocated
// from the guest allocator. Every block it hands out has exactly one owner:
// the caller, until it passes the block back to Release. The guest cannot
// collect these blocks, so a block that is never released is leaked for the
// lifetime of the instance.
//
// # Block Layouts
//
// A string block holds the encoded text followed by one zero code unit:
//
//	"hi" in UTF-32:  68 00 00 00  69 00 00 00  00 00 00 00   (12 bytes)
//
// An array block is one allocation holding a table of pointer slots and the
// packed string payloads after it. Each slot holds the guest address of its
// payload inside the same block:
//
//	["a","bb"], UTF-32, 8-byte slots (36 bytes)
//	  +0   slot 0 -> +16
//	  +8   slot 1 -> +24
//	  +16  "a\0"   (8 bytes)
//	  +24  "bb\0"  (12 bytes)
//
// # Failure Handling
//
// Allocation failures are returned as errors of kind allocation. When a
// write into a freshly allocated block fails, the block is freed before the
// error is returned, so a failed Encode or EncodeArray never leaves a live
// allocation behind. Inputs whose encoded block would exceed
// Options.MaxBlock are rejected with an overflow error before allocating.
//
// Decode scans for the terminator with a bounded counter. A buffer with no
// terminator inside Options.MaxUnits code units, or one that runs off the
// end of guest memory, is reported as a format error.
//
// # Thread Safety
//
// A Marshaler is not safe for concurrent use. All calls are expected to run
// while the guest interpreter's global lock is held.
package marshal

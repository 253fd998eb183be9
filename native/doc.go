// Package native runs an interpreter guest in wazero and adapts it to the
// capabilities the marshal and bridge packages consume.
//
// A guest must export its linear memory as "memory", an allocator
// (malloc/free or cabi_realloc) and the type service entry points:
//
//	type_install(name, methods, count i32) -> type i32
//	type_dispose(type i32)
//
// Guests that also export type_slot_offset(kind i32) -> i32 report the
// offsets of their number-methods slots, which the bridge validates
// against its table before installing the template.
//
// Type specs cross the boundary as a NUL-terminated UTF-8 name and a
// pointer array of NUL-terminated UTF-8 method names, both encoded by a
// marshal.Marshaler and released once type_install returns.
package native

// Package charset fixes the text encoding used on the guest string ABI.
//
// The guest interpreter is built with one wide-string code unit width and
// the host must match it. Active is chosen at build time: UTF-32 by
// default, UTF-16 when built with the ucs2 tag:
//
//	go build -tags ucs2 ./...
//
// Two byte-oriented modes are always available next to the active wide
// mode. UTF8 is for guest APIs that take UTF-8 text regardless of the wide
// setting. Legacy passes the bytes of a Go string through unchanged with a
// one byte terminator, for callers that do not care which wide mode is
// active.
//
// Every encoded buffer ends with exactly one zero code unit: W zero bytes
// for a mode of width W.
package charset

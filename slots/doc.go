// Package slots describes where the guest keeps its numeric operator slots.
//
// A guest heap type object embeds a number-methods struct: a run of
// function pointer slots, one per numeric operator, at a fixed offset from
// the start of the type object. The offset and pointer width depend on the
// interpreter release and the target architecture and are captured by a
// Layout. A Table maps each supported operator to its Go method name, its
// guest method name and its slot byte offset under one Layout.
//
// Only the eleven forward binary and unary operators are covered:
//
//	Kind        Go method   guest name     slot index
//	Add         OpAdd       __add__        0
//	Subtract    OpSub       __sub__        1
//	Multiply    OpMul       __mul__        2
//	Remainder   OpMod       __mod__        3
//	Invert      OpInvert    __invert__     10
//	LeftShift   OpLshift    __lshift__     11
//	RightShift  OpRshift    __rshift__     12
//	And         OpAnd       __and__        13
//	Xor         OpXor       __xor__        14
//	Or          OpOr        __or__         15
//	TrueDivide  OpTrueDiv   __truediv__    30
//
// Reflected names are derived with ReverseName; in-place forms are not
// supported.
//
// Offsets must agree with the guest build exactly. A guest that reports its
// layout can be checked with Table.Validate before any slot is written.
package slots

// Package errors provides structured error types for the slot bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the element path, the Go type and text encoding involved,
// and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindAllocation).
//		Path("names", "2").
//		Encoding("utf-32").
//		Detail("guest heap exhausted").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Unterminated(ptr, limit, "utf-16")
//	err := errors.DoubleFree(ptr)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind, so callers can test for a category:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindFormat}) { ... }
package errors

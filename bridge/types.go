package bridge

import (
	"context"
	"reflect"

	"github.com/wippyai/wasm-slotbridge/slots"
)

// Handle is the guest address of a type object.
type Handle uint32

// TypeSpec is the minimal definition of a guest type: a name and the guest
// method names it should carry.
type TypeSpec struct {
	Name    string
	Methods []string
}

// TypeService installs type definitions in the guest.
type TypeService interface {
	InstallType(ctx context.Context, spec TypeSpec) (Handle, error)
	DisposeType(ctx context.Context, h Handle) error
}

// LayoutReporter is implemented by type services that can report the slot
// offsets the guest was compiled with.
type LayoutReporter interface {
	SlotOffset(ctx context.Context, k slots.Kind) (uint32, error)
}

// Method describes one method of a Go type exposed to the guest.
type Method struct {
	Name string
	// Special marks a method that follows the operator method convention.
	Special       bool
	DeclaringType reflect.Type
	// Params excludes the receiver.
	Params []reflect.Type
}

// Forward reports whether m takes its declaring type as first parameter.
// Methods without parameters are forward.
func (m Method) Forward() bool {
	if len(m.Params) == 0 {
		return true
	}
	return m.Params[0] == m.DeclaringType
}

// MethodLister enumerates the methods of a Go type.
type MethodLister interface {
	Methods(t reflect.Type) []Method
}

// State is the bridge lifecycle state.
type State uint8

const (
	Uninitialized State = iota
	Initialized
	Shutdown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Shutdown:
		return "shut down"
	default:
		return "unknown"
	}
}

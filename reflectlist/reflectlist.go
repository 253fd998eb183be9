// Package reflectlist lists the methods of Go types for the bridge.
//
// Operator methods follow a naming convention: an exported method whose
// name is "Op" followed by an upper case letter, such as OpAdd or OpTrueDiv,
// is marked Special. Whether the bridge recognizes it is decided by the slot
// table, not here.
//
// Methods are taken from the pointer method set, so both value and pointer
// receivers are listed. Parameters of type *T, where T is the declaring
// type, are reported as T.
package reflectlist

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wippyai/wasm-slotbridge/bridge"
)

// OperatorPrefix starts every operator method name.
const OperatorPrefix = "Op"

// Lister implements bridge.MethodLister with package reflect.
type Lister struct{}

// New creates a Lister.
func New() *Lister {
	return &Lister{}
}

// Methods lists the exported methods of t, which may be a pointer type.
func (l *Lister) Methods(t reflect.Type) []bridge.Method {
	if t == nil {
		return nil
	}
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	set := reflect.PointerTo(base)

	out := make([]bridge.Method, 0, set.NumMethod())
	for i := 0; i < set.NumMethod(); i++ {
		m := set.Method(i)
		params := make([]reflect.Type, 0, m.Type.NumIn()-1)
		for j := 1; j < m.Type.NumIn(); j++ {
			p := m.Type.In(j)
			if p.Kind() == reflect.Pointer && p.Elem() == base {
				p = base
			}
			params = append(params, p)
		}
		out = append(out, bridge.Method{
			Name:          m.Name,
			Special:       IsOperatorName(m.Name),
			DeclaringType: base,
			Params:        params,
		})
	}
	return out
}

// IsOperatorName reports whether name follows the operator method convention.
func IsOperatorName(name string) bool {
	rest, ok := strings.CutPrefix(name, OperatorPrefix)
	if !ok || rest == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsUpper(r)
}

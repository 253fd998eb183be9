package charset

import (
	"strings"
	"unicode/utf8"

	"github.com/wippyai/wasm-slotbridge/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// Mode is a text encoding on the guest ABI.
type Mode uint8

const (
	Legacy Mode = iota // raw bytes, 1-byte units
	UTF8               // validated UTF-8, 1-byte units
	UTF16              // little-endian UTF-16, 2-byte units
	UTF32              // little-endian UTF-32, 4-byte units
)

var (
	utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	utf32LE = utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
)

// ActiveWidth returns the code unit width of the active wide mode.
func ActiveWidth() uint32 {
	return Active.Width()
}

// Width returns the size of one code unit in bytes.
func (m Mode) Width() uint32 {
	switch m {
	case UTF16:
		return 2
	case UTF32:
		return 4
	default:
		return 1
	}
}

// Wide reports whether the mode uses multi-byte code units.
func (m Mode) Wide() bool {
	return m.Width() > 1
}

func (m Mode) String() string {
	switch m {
	case Legacy:
		return "legacy"
	case UTF8:
		return "utf-8"
	case UTF16:
		return "utf-16"
	case UTF32:
		return "utf-32"
	default:
		return "unknown"
	}
}

// ParseMode maps a configuration name to a Mode. "active" resolves to Active.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "active":
		return Active, nil
	case "legacy", "bytes":
		return Legacy, nil
	case "utf-8", "utf8":
		return UTF8, nil
	case "utf-16", "utf16", "ucs2":
		return UTF16, nil
	case "utf-32", "utf32", "ucs4":
		return UTF32, nil
	}
	return 0, errors.InvalidInput(errors.PhaseConfig, "unknown text encoding "+name)
}

func (m Mode) codec() encoding.Encoding {
	switch m {
	case UTF16:
		return utf16LE
	case UTF32:
		return utf32LE
	}
	return nil
}

// Encode returns s in this mode followed by one zero code unit.
func (m Mode) Encode(s string) ([]byte, error) {
	w := int(m.Width())
	switch m {
	case Legacy:
		out := make([]byte, len(s)+w)
		copy(out, s)
		return out, nil
	case UTF8:
		if !utf8.ValidString(s) {
			return nil, errors.InvalidUTF8(errors.PhaseEncode, nil, []byte(s))
		}
		out := make([]byte, len(s)+w)
		copy(out, s)
		return out, nil
	case UTF16, UTF32:
		if !utf8.ValidString(s) {
			return nil, errors.InvalidUTF8(errors.PhaseEncode, nil, []byte(s))
		}
		data, err := m.codec().NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Encoding(m.String()).
				Cause(err).
				Build()
		}
		out := make([]byte, len(data)+w)
		copy(out, data)
		return out, nil
	}
	return nil, errors.InvalidInput(errors.PhaseEncode, "unknown text encoding "+m.String())
}

// Decode converts data, which must not include the terminator, to a Go string.
func (m Mode) Decode(data []byte) (string, error) {
	if len(data)%int(m.Width()) != 0 {
		return "", errors.New(errors.PhaseDecode, errors.KindFormat).
			Encoding(m.String()).
			Detail("%d bytes is not a whole number of code units", len(data)).
			Build()
	}
	switch m {
	case Legacy:
		return string(data), nil
	case UTF8:
		if !utf8.Valid(data) {
			return "", errors.InvalidUTF8(errors.PhaseDecode, nil, data)
		}
		return string(data), nil
	case UTF16, UTF32:
		out, err := m.codec().NewDecoder().Bytes(data)
		if err != nil {
			return "", errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Encoding(m.String()).
				Cause(err).
				Build()
		}
		return string(out), nil
	}
	return "", errors.InvalidInput(errors.PhaseDecode, "unknown text encoding "+m.String())
}

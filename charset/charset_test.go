package charset

import (
	"bytes"
	"errors"
	"testing"

	slerrors "github.com/wippyai/wasm-slotbridge/errors"
)

var allModes = []Mode{Legacy, UTF8, UTF16, UTF32}

func TestMode_Width(t *testing.T) {
	tests := []struct {
		mode  Mode
		width uint32
		wide  bool
	}{
		{Legacy, 1, false},
		{UTF8, 1, false},
		{UTF16, 2, true},
		{UTF32, 4, true},
	}
	for _, tt := range tests {
		if got := tt.mode.Width(); got != tt.width {
			t.Errorf("%s.Width() = %d, want %d", tt.mode, got, tt.width)
		}
		if got := tt.mode.Wide(); got != tt.wide {
			t.Errorf("%s.Wide() = %v, want %v", tt.mode, got, tt.wide)
		}
	}
}

func TestActive_IsWide(t *testing.T) {
	if !Active.Wide() {
		t.Fatalf("Active = %s, want a wide mode", Active)
	}
	if ActiveWidth() != Active.Width() {
		t.Errorf("ActiveWidth() = %d, want %d", ActiveWidth(), Active.Width())
	}
}

func TestEncode_Terminator(t *testing.T) {
	for _, m := range allModes {
		t.Run(m.String(), func(t *testing.T) {
			data, err := m.Encode("hi")
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			w := int(m.Width())
			if len(data) != 3*w {
				t.Fatalf("len = %d, want %d", len(data), 3*w)
			}
			if !bytes.Equal(data[len(data)-w:], make([]byte, w)) {
				t.Errorf("terminator = %x, want %d zero bytes", data[len(data)-w:], w)
			}
		})
	}
}

func TestEncode_UTF32Layout(t *testing.T) {
	data, err := UTF32.Encode("hi")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{'h', 0, 0, 0, 'i', 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(data, want) {
		t.Errorf("UTF32.Encode(hi) = %x, want %x", data, want)
	}
}

func TestEncode_UTF16SurrogatePair(t *testing.T) {
	data, err := UTF16.Encode("\U0001F600")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x3d, 0xd8, 0x00, 0xde, 0, 0}
	if !bytes.Equal(data, want) {
		t.Errorf("UTF16.Encode = %x, want %x", data, want)
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{"", "a", "hello, world", "héllo", "日本語", "emoji \U0001F600 pair", "tab\tnewline\n"}
	for _, m := range allModes {
		for _, s := range inputs {
			data, err := m.Encode(s)
			if err != nil {
				t.Fatalf("%s.Encode(%q): %v", m, s, err)
			}
			got, err := m.Decode(data[:len(data)-int(m.Width())])
			if err != nil {
				t.Fatalf("%s.Decode(%q): %v", m, s, err)
			}
			if got != s {
				t.Errorf("%s round trip = %q, want %q", m, got, s)
			}
		}
	}
}

func TestEncode_InvalidUTF8(t *testing.T) {
	bad := string([]byte{'a', 0xff, 'b'})
	for _, m := range []Mode{UTF8, UTF16, UTF32} {
		_, err := m.Encode(bad)
		if !errors.Is(err, &slerrors.Error{Phase: slerrors.PhaseEncode, Kind: slerrors.KindInvalidUTF8}) {
			t.Errorf("%s.Encode(invalid) err = %v, want invalid_utf8", m, err)
		}
	}

	data, err := Legacy.Encode(bad)
	if err != nil {
		t.Fatalf("Legacy.Encode: %v", err)
	}
	if !bytes.Equal(data, []byte{'a', 0xff, 'b', 0}) {
		t.Errorf("Legacy.Encode = %x, want passthrough", data)
	}
}

func TestDecode_PartialUnit(t *testing.T) {
	_, err := UTF32.Decode([]byte{'a', 0, 0})
	if !errors.Is(err, &slerrors.Error{Phase: slerrors.PhaseDecode, Kind: slerrors.KindFormat}) {
		t.Errorf("err = %v, want decode format error", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"", Active},
		{"active", Active},
		{"UTF-8", UTF8},
		{"ucs2", UTF16},
		{"utf32", UTF32},
		{"legacy", Legacy},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if err != nil {
			t.Errorf("ParseMode(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseMode("ebcdic"); err == nil {
		t.Error("ParseMode(ebcdic) should fail")
	}
}

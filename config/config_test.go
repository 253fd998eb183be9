package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-slotbridge/charset"
	"github.com/wippyai/wasm-slotbridge/errors"
	"github.com/wippyai/wasm-slotbridge/marshal"
	"github.com/wippyai/wasm-slotbridge/slots"
)

func TestParse_Empty(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(Default(), c); diff != "" {
		t.Errorf("empty config differs from Default (-want +got):\n%s", diff)
	}
}

func TestParse_Full(t *testing.T) {
	data := []byte(`
[guest]
path = "interp.wasm"
memory_limit_pages = 256
layout = "wide64"

[marshal]
encoding = "utf-16"
max_units = 4096

[bridge]
template_name = "vec.template"
`)
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := &Config{
		Guest:   Guest{Path: "interp.wasm", MemoryLimitPages: 256, Layout: "wide64"},
		Marshal: Marshal{Encoding: "utf-16", MaxUnits: 4096},
		Bridge:  Bridge{TemplateName: "vec.template"},
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}

	mo, err := c.MarshalOptions()
	if err != nil {
		t.Fatalf("MarshalOptions: %v", err)
	}
	wantOpts := marshal.Options{Mode: charset.UTF16, PointerSize: 8, MaxUnits: 4096, MaxBlock: marshal.MaxAlloc}
	if diff := cmp.Diff(wantOpts, mo); diff != "" {
		t.Errorf("MarshalOptions mismatch (-want +got):\n%s", diff)
	}

	bo, err := c.BridgeOptions()
	if err != nil {
		t.Fatalf("BridgeOptions: %v", err)
	}
	if bo.TemplateName != "vec.template" {
		t.Errorf("TemplateName = %q", bo.TemplateName)
	}
	if got := bo.Table.ByKind(slots.Add).Offset; got != 440 {
		t.Errorf("add offset = %d, want 440", got)
	}

	nc, err := c.NativeConfig()
	if err != nil {
		t.Fatalf("NativeConfig: %v", err)
	}
	if nc.MemoryLimitPages != 256 || nc.Layout != slots.Wide64 {
		t.Errorf("NativeConfig = %+v", nc)
	}
}

func TestParse_CustomLayout(t *testing.T) {
	c, err := Parse([]byte(`
[guest]
layout = "custom"
pointer_size = 4
number_base = 200
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	l, err := c.Layout()
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	want := slots.Layout{Name: CustomLayout, PointerSize: 4, NumberBase: 200}
	if diff := cmp.Diff(want, l); diff != "" {
		t.Errorf("Layout mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  errors.Kind
	}{
		{"syntax", `[guest`, errors.KindFormat},
		{"unknown key", "[guest]\nlayuot = \"wasm32\"", errors.KindInvalidInput},
		{"unknown layout", "[guest]\nlayout = \"sparc\"", errors.KindNotFound},
		{"unknown encoding", "[marshal]\nencoding = \"ebcdic\"", errors.KindInvalidInput},
		{"custom pointer size", "[guest]\nlayout = \"custom\"\npointer_size = 2\nnumber_base = 200", errors.KindInvalidInput},
		{"custom base", "[guest]\nlayout = \"custom\"\npointer_size = 8\nnumber_base = 220", errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("error type = %T, want *errors.Error", err)
			}
			if e.Phase != errors.PhaseConfig || e.Kind != tt.kind {
				t.Errorf("got %s/%s, want config/%s: %v", e.Phase, e.Kind, tt.kind, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slotbridge.toml")
	if err := os.WriteFile(path, []byte("[guest]\npath = \"guest.wasm\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := c.GuestPath(), filepath.Join(c.Dir, "guest.wasm"); got != want {
		t.Errorf("GuestPath = %q, want %q", got, want)
	}

	_, err = Load(filepath.Join(dir, "missing.toml"))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindNotFound}) {
		t.Errorf("Load missing = %v, want config/not_found", err)
	}
}

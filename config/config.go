// Package config loads slotbridge settings from TOML.
//
// A complete file:
//
//	[guest]
//	path = "interp.wasm"
//	memory_limit_pages = 256
//	layout = "wasm32"        # or "wide64", or "custom" with the two below
//	pointer_size = 4
//	number_base = 220
//
//	[marshal]
//	encoding = "utf-32"      # legacy, utf-8, utf-16, utf-32 or active
//	max_units = 16777216
//
//	[bridge]
//	template_name = "slotbridge.template"
//
// Every key is optional.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/wasm-slotbridge/bridge"
	"github.com/wippyai/wasm-slotbridge/charset"
	"github.com/wippyai/wasm-slotbridge/errors"
	"github.com/wippyai/wasm-slotbridge/marshal"
	"github.com/wippyai/wasm-slotbridge/native"
	"github.com/wippyai/wasm-slotbridge/slots"
)

// CustomLayout names a layout given by pointer_size and number_base.
const CustomLayout = "custom"

// Config is the parsed configuration file.
type Config struct {
	Guest   Guest   `toml:"guest"`
	Marshal Marshal `toml:"marshal"`
	Bridge  Bridge  `toml:"bridge"`

	// Dir is the directory of the loaded file; relative paths resolve
	// against it.
	Dir string `toml:"-"`
}

// Guest selects the guest module and its type object layout.
type Guest struct {
	Path             string `toml:"path"`
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
	Layout           string `toml:"layout"`
	PointerSize      uint32 `toml:"pointer_size"`
	NumberBase       uint32 `toml:"number_base"`
}

// Marshal configures string marshaling.
type Marshal struct {
	Encoding string `toml:"encoding"`
	MaxUnits uint32 `toml:"max_units"`
}

// Bridge configures the operator slot bridge.
type Bridge struct {
	TemplateName string `toml:"template_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Guest:   Guest{Layout: slots.Wasm32.Name},
		Marshal: Marshal{Encoding: charset.Active.String(), MaxUnits: marshal.DefaultMaxUnits},
		Bridge:  Bridge{TemplateName: bridge.DefaultTemplateName},
	}
}

// Load reads and validates a TOML file. Keys absent from the file keep
// their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "resolve "+path)
	}
	c.Dir = abs
	return c, nil
}

// Parse decodes TOML data on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindFormat, err, "parse toml")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(undecoded[0].String()).
			Detail("unknown key").
			Build()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that every named layout and encoding exists.
func (c *Config) Validate() error {
	if _, err := c.Layout(); err != nil {
		return err
	}
	if _, err := charset.ParseMode(c.Marshal.Encoding); err != nil {
		return err
	}
	return nil
}

// Layout resolves the configured type object layout.
func (c *Config) Layout() (slots.Layout, error) {
	if c.Guest.Layout != CustomLayout {
		return slots.LayoutByName(c.Guest.Layout)
	}
	switch c.Guest.PointerSize {
	case 4, 8:
	default:
		return slots.Layout{}, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("guest", "pointer_size").
			Value(c.Guest.PointerSize).
			Detail("pointer size must be 4 or 8").
			Build()
	}
	if c.Guest.NumberBase == 0 || c.Guest.NumberBase%c.Guest.PointerSize != 0 {
		return slots.Layout{}, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("guest", "number_base").
			Value(c.Guest.NumberBase).
			Detail("number base must be a non-zero multiple of the pointer size").
			Build()
	}
	return slots.Layout{
		Name:        CustomLayout,
		PointerSize: c.Guest.PointerSize,
		NumberBase:  c.Guest.NumberBase,
	}, nil
}

// GuestPath returns the guest module path resolved against Dir.
func (c *Config) GuestPath() string {
	if c.Guest.Path == "" || filepath.IsAbs(c.Guest.Path) || c.Dir == "" {
		return c.Guest.Path
	}
	return filepath.Join(c.Dir, c.Guest.Path)
}

// NativeConfig returns the guest loading configuration.
func (c *Config) NativeConfig() (*native.Config, error) {
	layout, err := c.Layout()
	if err != nil {
		return nil, err
	}
	return &native.Config{MemoryLimitPages: c.Guest.MemoryLimitPages, Layout: layout}, nil
}

// MarshalOptions returns marshaler options for the configured encoding.
func (c *Config) MarshalOptions() (marshal.Options, error) {
	mode, err := charset.ParseMode(c.Marshal.Encoding)
	if err != nil {
		return marshal.Options{}, err
	}
	layout, err := c.Layout()
	if err != nil {
		return marshal.Options{}, err
	}
	opts := marshal.DefaultOptions()
	opts.Mode = mode
	opts.PointerSize = layout.PointerSize
	if c.Marshal.MaxUnits > 0 {
		opts.MaxUnits = c.Marshal.MaxUnits
	}
	return opts, nil
}

// BridgeOptions returns bridge options with a slot table for the
// configured layout. The method lister is left for the caller.
func (c *Config) BridgeOptions() (bridge.Options, error) {
	layout, err := c.Layout()
	if err != nil {
		return bridge.Options{}, err
	}
	opts := bridge.DefaultOptions()
	opts.Table = slots.NewTable(layout)
	if c.Bridge.TemplateName != "" {
		opts.TemplateName = c.Bridge.TemplateName
	}
	return opts, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-slotbridge/bridge"
	"github.com/wippyai/wasm-slotbridge/config"
	"github.com/wippyai/wasm-slotbridge/internal/guestmod"
	"github.com/wippyai/wasm-slotbridge/native"
	"github.com/wippyai/wasm-slotbridge/reflectlist"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to interpreter guest wasm file")
		configFile  = flag.String("config", "", "Path to TOML configuration")
		layout      = flag.String("layout", "", "Type object layout (wasm32, wide64); overrides config")
		demo        = flag.Bool("demo", false, "Use the built-in demo guest instead of -wasm")
		verbose     = flag.Bool("v", false, "Log guest and bridge activity")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile, *wasmFile, *layout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.GuestPath() == "" && !*demo {
		fmt.Fprintln(os.Stderr, "Usage: slotdump -wasm <guest.wasm> [-layout wasm32|wide64] [-config file.toml]")
		fmt.Fprintln(os.Stderr, "       slotdump -demo")
		fmt.Fprintln(os.Stderr, "       slotdump -wasm <guest.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			native.SetLogger(l)
			bridge.SetLogger(l)
			defer l.Sync()
		}
	}

	if err := run(cfg, *demo, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path, wasmFile, layout string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if wasmFile != "" {
		cfg.Guest.Path = wasmFile
		cfg.Dir = ""
	}
	if layout != "" {
		cfg.Guest.Layout = layout
	}
	return cfg, cfg.Validate()
}

func run(cfg *config.Config, demo, interactive bool) error {
	ctx := context.Background()

	nc, err := cfg.NativeConfig()
	if err != nil {
		return err
	}

	var data []byte
	if demo {
		data = guestmod.Build(guestmod.Options{Layout: nc.Layout, ReportLayout: true})
	} else {
		if data, err = os.ReadFile(cfg.GuestPath()); err != nil {
			return fmt.Errorf("read file: %w", err)
		}
	}

	g, err := native.Load(ctx, data, nc)
	if err != nil {
		return fmt.Errorf("load guest: %w", err)
	}
	defer g.Close(ctx)

	opts, err := cfg.BridgeOptions()
	if err != nil {
		return err
	}
	opts.Lister = reflectlist.New()
	b := bridge.New(g.TypeService(), g.Memory(), opts)
	if err := b.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize bridge: %w", err)
	}
	defer b.Shutdown(ctx)

	rows, err := templateRows(b, g.Memory())
	if err != nil {
		return err
	}

	if interactive {
		mo, err := cfg.MarshalOptions()
		if err != nil {
			return err
		}
		return runInteractive(newInteractiveModel(guestName(cfg, demo), rows, g.Marshaler(mo)))
	}

	styled := term.IsTerminal(int(os.Stdout.Fd()))
	fmt.Fprint(os.Stdout, renderDump(guestName(cfg, demo), b, rows, styled))
	return nil
}

func guestName(cfg *config.Config, demo bool) string {
	if demo {
		return "demo guest"
	}
	return cfg.GuestPath()
}

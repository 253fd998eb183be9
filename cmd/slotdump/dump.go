package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	slotbridge "github.com/wippyai/wasm-slotbridge"
	"github.com/wippyai/wasm-slotbridge/bridge"
	"github.com/wippyai/wasm-slotbridge/slots"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// slotRow is one operator slot of the template type.
type slotRow struct {
	def        slots.Definition
	reverse    string
	trampoline uint64
}

func templateRows(b *bridge.Bridge, mem slotbridge.Memory) ([]slotRow, error) {
	return slotRows(b.Table(), b.Template(), mem)
}

// slotRows reads the operator slots of the type object at h.
func slotRows(table *slots.Table, h bridge.Handle, mem slotbridge.Memory) ([]slotRow, error) {
	ptrSize := table.Layout().PointerSize
	rows := make([]slotRow, 0, slots.Count)
	for _, d := range table.ByOffset() {
		addr := uint64(h) + uint64(d.Offset)
		if addr+uint64(ptrSize) > math.MaxUint32+1 {
			return nil, fmt.Errorf("slot %s of type 0x%x is past the 32-bit address space", d.NativeName, uint32(h))
		}
		var ptr uint64
		var err error
		if ptrSize == 8 {
			ptr, err = mem.ReadU64(uint32(addr))
		} else {
			var v uint32
			v, err = mem.ReadU32(uint32(addr))
			ptr = uint64(v)
		}
		if err != nil {
			return nil, fmt.Errorf("read slot %s: %w", d.NativeName, err)
		}
		rows = append(rows, slotRow{def: d, reverse: slots.ReverseName(d.NativeName), trampoline: ptr})
	}
	return rows, nil
}

func renderDump(name string, b *bridge.Bridge, rows []slotRow, styled bool) string {
	title, header, fn, help := titleStyle, headerStyle, funcStyle, helpStyle
	if !styled {
		plain := lipgloss.NewStyle()
		title, header, fn, help = plain, plain, plain, plain
	}

	layout := b.Table().Layout()
	var sb strings.Builder
	sb.WriteString(title.Render("Slot Bridge"))
	sb.WriteString(" ")
	sb.WriteString(name)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Layout:   %s (pointer %d, number base %d, min type size %d)\n",
		layout.Name, layout.PointerSize, layout.NumberBase, layout.MinTypeSize())
	fmt.Fprintf(&sb, "Template: 0x%x\n\n", uint32(b.Template()))

	sb.WriteString(header.Render(fmt.Sprintf("%-8s %-12s %-12s %-12s %s", "OFFSET", "GO METHOD", "SLOT", "REFLECTED", "TRAMPOLINE")))
	sb.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, "%-8d %s %-12s %-12s 0x%x\n",
			r.def.Offset,
			fn.Render(fmt.Sprintf("%-12s", r.def.ManagedName)),
			r.def.NativeName,
			r.reverse,
			r.trampoline)
	}
	sb.WriteString("\n")
	sb.WriteString(help.Render(fmt.Sprintf("%d operator slots", len(rows))))
	sb.WriteString("\n")
	return sb.String()
}

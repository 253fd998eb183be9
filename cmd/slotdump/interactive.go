package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-slotbridge/charset"
	"github.com/wippyai/wasm-slotbridge/marshal"
)

var (
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

var modes = []charset.Mode{charset.Legacy, charset.UTF8, charset.UTF16, charset.UTF32}

type modelState int

const (
	stateBrowse modelState = iota
	stateInput
	stateShowResult
)

type interactiveModel struct {
	err      error
	m        *marshal.Marshaler
	name     string
	result   string
	rows     []slotRow
	input    textinput.Model
	selected int
	state    modelState
}

func newInteractiveModel(name string, rows []slotRow, m *marshal.Marshaler) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "text: "
	ti.Placeholder = "string to encode"
	ti.Width = 40
	return &interactiveModel{name: name, rows: rows, m: m, input: ti, state: stateBrowse}
}

func runInteractive(m *interactiveModel) error {
	_, err := tea.NewProgram(m).Run()
	return err
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

type encodedMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInput {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateBrowse && m.selected < len(m.rows)-1 {
				m.selected++
			}

		case "m":
			if m.state == stateBrowse {
				m.m = m.m.WithMode(nextMode(m.m.Mode()))
			}

		case "e":
			if m.state == stateBrowse {
				m.state = stateInput
				m.input.SetValue("")
				return m, m.input.Focus()
			}

		case "enter":
			switch m.state {
			case stateInput:
				m.input.Blur()
				return m, m.encode(m.input.Value())
			case stateShowResult:
				m.state = stateBrowse
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInput:
				m.input.Blur()
				m.state = stateBrowse
			case stateShowResult:
				m.state = stateBrowse
				m.result = ""
				m.err = nil
			}
		}

	case encodedMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func nextMode(cur charset.Mode) charset.Mode {
	for i, mode := range modes {
		if mode == cur {
			return modes[(i+1)%len(modes)]
		}
	}
	return modes[0]
}

// encode round-trips s through guest memory and reports the block.
func (m *interactiveModel) encode(s string) tea.Cmd {
	mar := m.m
	return func() tea.Msg {
		blk, err := mar.Encode(s)
		if err != nil {
			return encodedMsg{err: err}
		}
		defer mar.Release(blk)

		back, err := mar.Decode(blk.Ptr)
		if err != nil {
			return encodedMsg{err: err}
		}
		return encodedMsg{result: formatBlock(mar.Mode(), blk, back, blockBytes(mar, blk))}
	}
}

func blockBytes(mar *marshal.Marshaler, blk marshal.Block) []byte {
	raw, err := mar.Bytes(blk)
	if err != nil {
		return nil
	}
	return raw
}

func formatBlock(mode charset.Mode, blk marshal.Block, back string, raw []byte) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mode:    %s (width %d)\n", mode, mode.Width())
	fmt.Fprintf(&sb, "block:   0x%x, %d bytes\n", blk.Ptr, blk.Size)
	fmt.Fprintf(&sb, "decoded: %q\n\n", back)
	sb.WriteString(hex.Dump(raw))
	return sb.String()
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Slot Bridge"))
	b.WriteString(" ")
	b.WriteString(m.name)
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse:
		b.WriteString("Template operator slots:\n\n")
		for i, r := range m.rows {
			line := fmt.Sprintf("%-5d %-12s %-12s 0x%x", r.def.Offset, r.def.ManagedName, r.def.NativeName, r.trampoline)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		if len(m.rows) > 0 {
			r := m.rows[m.selected]
			b.WriteString("\n")
			fmt.Fprintf(&b, "%s is reflected as %s\n", funcStyle.Render(r.def.ManagedName), funcStyle.Render(r.reverse))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "encoding: %s\n\n", headerStyle.Render(m.m.Mode().String()))
		b.WriteString(helpStyle.Render("↑/↓ select • e encode • m mode • q quit"))

	case stateInput:
		fmt.Fprintf(&b, "Encode as %s\n\n", headerStyle.Render(m.m.Mode().String()))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter encode • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

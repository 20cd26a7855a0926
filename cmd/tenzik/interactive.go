package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	tenzikcore "github.com/Nitefawkes/TenzikCore"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var tabNames = []string{"output", "metrics", "receipt", "access log"}

type inspectorState int

const (
	stateEditInput inspectorState = iota
	stateRunning
	stateShowResult
)

type inspectorModel struct {
	rt       *tenzikcore.Runtime
	filename string
	module   []byte

	input  textinput.Model
	view   viewport.Model
	res    *tenzikcore.RunResult
	runErr error
	tab    int
	width  int
	height int
	ready  bool
	state  inspectorState
}

type ranMsg struct {
	res *tenzikcore.RunResult
	err error
}

func newInspectorModel(rt *tenzikcore.Runtime, filename string, module []byte, input string) *inspectorModel {
	ti := textinput.New()
	ti.Placeholder = `{"name":"Alice"}`
	ti.Prompt = "input: "
	ti.Width = 60
	ti.SetValue(input)
	ti.Focus()

	return &inspectorModel{
		rt:       rt,
		filename: filename,
		module:   module,
		input:    ti,
		state:    stateEditInput,
	}
}

func (m *inspectorModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *inspectorModel) runCapsule() tea.Msg {
	res, err := m.rt.Run(context.Background(), m.module, []byte(m.input.Value()))
	return ranMsg{res: res, err: err}
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		bodyHeight := msg.Height - 7
		if bodyHeight < 3 {
			bodyHeight = 3
		}
		if !m.ready {
			m.view = viewport.New(msg.Width, bodyHeight)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = bodyHeight
		}
		if m.state == stateShowResult {
			m.view.SetContent(m.tabContent())
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateEditInput {
				return m, tea.Quit
			}

		case "esc":
			if m.state == stateShowResult {
				m.showInput()
				return m, textinput.Blink
			}
			return m, tea.Quit

		case "enter":
			switch m.state {
			case stateEditInput:
				m.state = stateRunning
				return m, m.runCapsule
			case stateShowResult:
				m.showInput()
				return m, textinput.Blink
			}

		case "tab", "right":
			if m.state == stateShowResult {
				m.switchTab((m.tab + 1) % len(tabNames))
			}

		case "shift+tab", "left":
			if m.state == stateShowResult {
				m.switchTab((m.tab + len(tabNames) - 1) % len(tabNames))
			}

		case "1", "2", "3", "4":
			if m.state == stateShowResult {
				m.switchTab(int(msg.String()[0] - '1'))
			}
		}

	case ranMsg:
		m.res = msg.res
		m.runErr = msg.err
		m.state = stateShowResult
		m.tab = 0
		if m.ready {
			m.view.SetContent(m.tabContent())
			m.view.GotoTop()
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.state {
	case stateEditInput:
		m.input, cmd = m.input.Update(msg)
	case stateShowResult:
		m.view, cmd = m.view.Update(msg)
	}
	return m, cmd
}

func (m *inspectorModel) showInput() {
	m.state = stateEditInput
	m.res = nil
	m.runErr = nil
	m.input.Focus()
}

func (m *inspectorModel) switchTab(tab int) {
	m.tab = tab
	if m.ready {
		m.view.SetContent(m.tabContent())
		m.view.GotoTop()
	}
}

func (m *inspectorModel) tabContent() string {
	switch m.tab {
	case 0:
		return m.renderOutput()
	case 1:
		return m.renderMetrics()
	case 2:
		return m.renderReceipt()
	case 3:
		return m.renderAccessLog()
	}
	return ""
}

func (m *inspectorModel) renderOutput() string {
	if m.runErr != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.runErr))
	}
	if m.res == nil || len(m.res.Output) == 0 {
		return helpStyle.Render("(empty output)")
	}
	out := m.res.Output
	if textual(out) {
		return string(out)
	}
	return hex.Dump(out)
}

func (m *inspectorModel) renderMetrics() string {
	if m.res == nil {
		return helpStyle.Render("(no metrics; execution never started)")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("fuel used "), m.res.Metrics.FuelUsed)
	fmt.Fprintf(&b, "%s %.3f MB\n", labelStyle.Render("memory    "), m.res.Metrics.MemoryMB)
	fmt.Fprintf(&b, "%s %d ms\n", labelStyle.Render("duration  "), m.res.Metrics.DurationMS)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("host calls"), m.res.Metrics.HostCalls)
	if m.res.Receipt != nil {
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("nonce     "), m.res.Receipt.Nonce)
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("status    "), m.res.Receipt.Status)
	}
	stats := m.rt.CacheStats()
	fmt.Fprintf(&b, "%s %d hits, %d misses, %d cached\n",
		labelStyle.Render("cache     "), stats.Hits, stats.Misses, stats.Entries)
	return b.String()
}

func (m *inspectorModel) renderReceipt() string {
	if m.res == nil || m.res.Receipt == nil {
		return helpStyle.Render("(no receipt was signed for this run)")
	}
	data, err := m.res.Receipt.Encode()
	if err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", err))
	}
	return string(data)
}

func (m *inspectorModel) renderAccessLog() string {
	if m.res == nil || len(m.res.AccessLog) == 0 {
		return helpStyle.Render("(no host calls)")
	}
	var b strings.Builder
	for _, e := range m.res.AccessLog {
		fmt.Fprintf(&b, "#%d  %s  %s", e.Sequence, labelStyle.Render(string(e.Capability)), e.Function)
		if e.Detail != "" {
			fmt.Fprintf(&b, "  %s", helpStyle.Render(e.Detail))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *inspectorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Tenzik Inspector"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("node %s • %.1f KB • fuel limit %d",
		shortID(m.rt.NodeID()), float64(len(m.module))/1024.0, m.rt.Limits().FuelLimit)))
	b.WriteString("\n\n")

	switch m.state {
	case stateEditInput:
		b.WriteString("Run capsule with input:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • esc quit"))

	case stateRunning:
		b.WriteString("Running...")

	case stateShowResult:
		var tabs []string
		for i, name := range tabNames {
			if i == m.tab {
				tabs = append(tabs, activeTabStyle.Render(name))
			} else {
				tabs = append(tabs, tabStyle.Render(name))
			}
		}
		b.WriteString(strings.Join(tabs, " "))
		b.WriteString("\n")
		if m.ready {
			b.WriteString(m.view.View())
		} else {
			b.WriteString(m.tabContent())
		}
		b.WriteString("\n")
		if m.runErr != nil {
			b.WriteString(errorStyle.Render("execution failed"))
		} else {
			b.WriteString(okStyle.Render("execution ok"))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab/←/→ switch • ↑/↓ scroll • enter new input • q quit"))
	}

	return b.String()
}

func textual(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}

func runInteractive(rt *tenzikcore.Runtime, filename string, module []byte, input string) error {
	defer rt.Close(context.Background())
	p := tea.NewProgram(newInspectorModel(rt, filename, module, input), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

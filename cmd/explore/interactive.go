package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/native-bridge/engine"
	"github.com/wippyai/native-bridge/typeinfo"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBrowse modelState = iota
	stateInspect
	stateInputArgs
	stateShowResult
)

type entry struct {
	name    string
	kind    string
	summary string
	info    typeinfo.Info
}

type exploreModel struct {
	eng       *engine.Engine
	namespace string
	hasGuest  bool

	entries  []entry
	selected int

	inputs   []textinput.Model
	params   []typeinfo.Param
	focusIdx int

	detail string
	result string
	failed bool
	err    error
	state  modelState
}

func newExploreModel(eng *engine.Engine, namespace string, hasGuest bool) (*exploreModel, error) {
	ns, ok := eng.Repository().Namespace(namespace)
	if !ok {
		return nil, fmt.Errorf("namespace %s not loaded", namespace)
	}

	m := &exploreModel{
		eng:       eng,
		namespace: namespace,
		hasGuest:  hasGuest,
		state:     stateBrowse,
	}
	for _, name := range ns.Names() {
		info, err := eng.Repository().Resolve(namespace, name)
		if err != nil {
			return nil, err
		}
		m.entries = append(m.entries, entry{
			name:    name,
			kind:    kindOf(info),
			summary: summarize(info),
			info:    info,
		})
	}
	return m, nil
}

type callResultMsg struct {
	err    error
	result string
	failed bool
}

func (m *exploreModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *exploreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateBrowse || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateBrowse && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateBrowse:
				return m.open()

			case stateInputArgs:
				return m, m.callFunction

			case stateInspect, stateShowResult:
				m.reset()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			if m.state != stateBrowse {
				m.reset()
			}
		}

	case callResultMsg:
		m.err = msg.err
		m.result = msg.result
		m.failed = msg.failed
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *exploreModel) reset() {
	m.state = stateBrowse
	m.inputs = nil
	m.params = nil
	m.detail = ""
	m.result = ""
	m.failed = false
	m.err = nil
}

// open acts on the selected descriptor: callables collect arguments,
// everything else shows its detail view.
func (m *exploreModel) open() (tea.Model, tea.Cmd) {
	e := m.entries[m.selected]
	if info, ok := e.info.(*typeinfo.CallableInfo); ok {
		m.prepareInputs(info)
		if len(m.inputs) == 0 {
			return m, m.callFunction
		}
		m.state = stateInputArgs
		return m, textinput.Blink
	}
	m.detail = describe(e.info)
	m.state = stateInspect
	return m, nil
}

func (m *exploreModel) prepareInputs(info *typeinfo.CallableInfo) {
	m.params = nil
	for _, p := range info.Sig.Params {
		if p.Direction == typeinfo.DirIn || p.Direction == typeinfo.DirInOut {
			m.params = append(m.params, p)
		}
	}
	m.inputs = make([]textinput.Model, len(m.params))
	for i, p := range m.params {
		ti := textinput.New()
		ti.Placeholder = p.Type.String()
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *exploreModel) callFunction() tea.Msg {
	info := m.entries[m.selected].info.(*typeinfo.CallableInfo)

	args := make([]any, len(m.inputs))
	for i := range m.inputs {
		v, err := parseArg(strings.TrimSpace(m.inputs[i].Value()), m.params[i].Type)
		if err != nil {
			return callResultMsg{err: fmt.Errorf("argument %s: %w", m.params[i].Name, err)}
		}
		args[i] = v
	}

	handle, err := m.eng.Find(info.Qualified(), "")
	if err != nil {
		return callResultMsg{err: err}
	}
	v, err := m.eng.Get(handle)
	if err != nil {
		return callResultMsg{err: err}
	}
	c, ok := v.(*engine.Callable)
	if !ok {
		return callResultMsg{err: fmt.Errorf("%s is not callable", info.Qualified())}
	}

	res, err := c.Call(context.Background(), args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	if !res.OK {
		return callResultMsg{
			result: fmt.Sprintf("native error %d: %s", res.Err.Code, res.Err.Message),
			failed: true,
		}
	}
	return callResultMsg{result: renderValues(res.Values)}
}

// describe renders the multi-line detail view of a descriptor.
func describe(info typeinfo.Info) string {
	var b strings.Builder
	switch i := info.(type) {
	case *typeinfo.StructInfo:
		fmt.Fprintf(&b, "struct %s (size %d, align %d)\n", i.Qualified(), i.Size, i.Align)
		writeFields(&b, i.Fields)
		writeMethods(&b, i.Methods)

	case *typeinfo.ObjectInfo:
		if i.Parent != nil {
			fmt.Fprintf(&b, "object %s : %s (size %d, gtype %d)\n", i.Qualified(), i.Parent.Qualified(), i.Size, i.GType)
		} else {
			fmt.Fprintf(&b, "object %s (size %d, gtype %d)\n", i.Qualified(), i.Size, i.GType)
		}
		writeFields(&b, i.Fields)
		writeMethods(&b, i.Methods)

	case *typeinfo.EnumInfo:
		fmt.Fprintf(&b, "enum %s : %s\n", i.Qualified(), i.Storage)
		for _, v := range i.Values {
			fmt.Fprintf(&b, "  %s = %d\n", v.Name, v.Value)
		}

	case *typeinfo.ConstantInfo:
		fmt.Fprintf(&b, "const %s %s = %v\n", i.Qualified(), i.Type, i.Value)

	case *typeinfo.CallableInfo:
		fmt.Fprintf(&b, "func %s\n  symbol %s\n", signature(i), i.Symbol)

	default:
		b.WriteString(info.Header().Qualified())
	}
	return b.String()
}

func writeFields(b *strings.Builder, fields []typeinfo.FieldInfo) {
	for _, f := range fields {
		access := ""
		if f.Readable {
			access += "r"
		}
		if f.Writable {
			access += "w"
		}
		fmt.Fprintf(b, "  %s: %s @%d %s\n", f.Name, f.Type, f.Offset, access)
	}
}

func writeMethods(b *strings.Builder, methods []*typeinfo.CallableInfo) {
	for _, m := range methods {
		fmt.Fprintf(b, "  %s\n", signature(m))
	}
}

func (m *exploreModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Explore"))
	b.WriteString(" ")
	b.WriteString(m.namespace)
	if !m.hasGuest {
		b.WriteString(helpStyle.Render("  (no guest attached, calls will fail)"))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse:
		for i, e := range m.entries {
			cursor := "  "
			if i == m.selected {
				cursor = selectedStyle.Render("> ")
			}
			b.WriteString(cursor)
			b.WriteString(kindStyle.Render(fmt.Sprintf("%-7s", e.kind)))
			b.WriteString(" ")
			b.WriteString(e.summary)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • q quit"))

	case stateInspect:
		b.WriteString(m.detail)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back"))

	case stateInputArgs:
		info := m.entries[m.selected].info.(*typeinfo.CallableInfo)
		fmt.Fprintf(&b, "Calling %s\n\n", nameStyle.Render(signature(info)))
		for i := range m.inputs {
			b.WriteString(m.inputs[i].View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		e := m.entries[m.selected]
		fmt.Fprintf(&b, "Result of %s:\n\n", nameStyle.Render(e.name))
		switch {
		case m.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		case m.failed:
			b.WriteString(errorStyle.Render(m.result))
		default:
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter/esc back • ctrl+c quit"))
	}

	return b.String()
}

func runInteractive(eng *engine.Engine, namespace string, hasGuest bool) error {
	m, err := newExploreModel(eng, namespace, hasGuest)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

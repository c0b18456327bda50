package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/execsim/personachat/internal/company"
	"github.com/execsim/personachat/internal/conversation"
	"github.com/execsim/personachat/internal/persona"
	"github.com/execsim/personachat/internal/session"
	"github.com/execsim/personachat/internal/store"
)

// chatScreen tracks which view the TUI is showing.
type chatScreen int

const (
	screenSettings chatScreen = iota
	screenChat
)

// settings item indices
const (
	idxConversation = 0
	idxPersona      = 1
	idxCompany      = 2
	idxStart        = 3
)

const newConversationValue = "__new__"

type settingsOption struct {
	label string
	value string
}

type settingsItem struct {
	label   string
	value   string
	options []settingsOption
	cursor  int
	editing bool
}

// style constants
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Width(14).
			Align(lipgloss.Right).
			MarginRight(2)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	valueDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Italic(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	selectedOptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Bold(true).
				PaddingLeft(2)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 3)

	buttonDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 3)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	userTagStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	personaTagStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)
)

// messages delivered by commands
type summariesMsg struct {
	summaries []store.Summary
	err       error
}

type loadedMsg struct {
	state session.State
	err   error
}

type enrichedMsg struct {
	ref  string
	text string
	err  error
}

type turnDoneMsg struct {
	state session.State
	err   error
}

// chatModel is the Bubble Tea model for the persona chat.
type chatModel struct {
	ctx    context.Context
	rec    *session.Reconciler
	store  *store.Store
	state  session.State
	enrich bool

	screen    chatScreen
	items     []settingsItem
	cursor    int
	summaries []store.Summary

	input   string
	waiting bool
	errMsg  string
	width   int
	height  int
}

func newChatModel(ctx context.Context, rec *session.Reconciler, st *store.Store, state session.State, enrich bool) chatModel {
	m := chatModel{
		ctx:    ctx,
		rec:    rec,
		store:  st,
		state:  state,
		enrich: enrich,
		screen: screenSettings,
		cursor: idxConversation,
	}
	m.items = m.buildSettingsItems()
	return m
}

func personaOptions() []settingsOption {
	var opts []settingsOption
	for _, p := range persona.All() {
		opts = append(opts, settingsOption{
			label: fmt.Sprintf("%s - %s", p, p.Title()),
			value: string(p),
		})
	}
	return opts
}

func (m chatModel) conversationOptions() []settingsOption {
	opts := []settingsOption{{label: "New conversation", value: newConversationValue}}
	for _, s := range m.summaries {
		opts = append(opts, settingsOption{
			label: fmt.Sprintf("%s - %s (%s)", s.CompanyName, s.Persona, shortID(s.ID)),
			value: s.ID,
		})
	}
	return opts
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "…"
	}
	return id
}

func (m chatModel) buildSettingsItems() []settingsItem {
	convValue := newConversationValue
	if m.state.Mode == session.ModeActive {
		convValue = m.state.ID
	}

	items := []settingsItem{
		{label: "Conversation", value: convValue, options: m.conversationOptions()},
		{label: "Persona", value: string(m.state.Persona), options: personaOptions()},
		{label: "Company URL", value: m.state.CompanyRef},
		{label: ">>> Chat <<<"},
	}

	for i := range items {
		for j, opt := range items[i].options {
			if opt.value == items[i].value {
				items[i].cursor = j
				break
			}
		}
	}
	return items
}

// syncSettings refreshes item values from the session state after a
// reconciler operation replaced it.
func (m *chatModel) syncSettings() {
	m.items = m.buildSettingsItems()
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
}

func (m chatModel) fetchSummariesCmd() tea.Cmd {
	return func() tea.Msg {
		summaries, err := m.store.ListAll(m.ctx)
		return summariesMsg{summaries: summaries, err: err}
	}
}

func (m chatModel) loadCmd(id string) tea.Cmd {
	prev := m.state
	return func() tea.Msg {
		next, err := m.rec.Load(m.ctx, prev, id)
		return loadedMsg{state: next, err: err}
	}
}

func (m chatModel) enrichCmd() tea.Cmd {
	ref := m.state.CompanyRef
	return func() tea.Msg {
		text, err := company.FetchDescription(m.ctx, ref)
		return enrichedMsg{ref: ref, text: text, err: err}
	}
}

func (m chatModel) submitCmd(input string) tea.Cmd {
	prev := m.state
	return func() tea.Msg {
		next, err := m.rec.SubmitTurn(m.ctx, prev, input)
		return turnDoneMsg{state: next, err: err}
	}
}

func (m chatModel) Init() tea.Cmd {
	return m.fetchSummariesCmd()
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case summariesMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.summaries = msg.summaries
		m.items[idxConversation].options = m.conversationOptions()
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			// Previous state is intact; just report why the load failed.
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.state = msg.state
		m.errMsg = ""
		m.syncSettings()
		return m, nil

	case enrichedMsg:
		if msg.err != nil || msg.ref != m.state.CompanyRef {
			// Stale or failed enrichment; the fallback background is fine.
			return m, nil
		}
		m.state = m.rec.SetCompanyBackground(m.state, msg.text)
		return m, nil

	case turnDoneMsg:
		m.waiting = false
		// Keep the returned state either way: on failure it still holds
		// the user's pending turn so a resubmission works.
		m.state = msg.state
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		} else {
			m.errMsg = ""
			m.input = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch m.screen {
		case screenSettings:
			return m.updateSettings(msg)
		case screenChat:
			return m.updateChat(msg)
		}
	}
	return m, nil
}

func (m chatModel) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// An open editor captures keys first.
	if m.items[m.cursor].editing {
		return m.updateSettingsEditor(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "enter", " ":
		if m.cursor == idxStart {
			if m.state.Mode == session.ModeFresh {
				m.state = m.rec.StartNew()
				m.syncSettings()
			}
			if m.state.CompanyName == "" {
				m.errMsg = "set a company profile URL before chatting"
				return m, nil
			}
			m.screen = screenChat
			m.errMsg = ""
			if m.enrich && m.state.CompanyBackground == "" {
				return m, m.enrichCmd()
			}
			return m, nil
		}
		m.items[m.cursor].editing = true
		m.errMsg = ""
	}
	return m, nil
}

func (m chatModel) updateSettingsEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	idx := m.cursor
	item := &m.items[idx]

	// Company URL is a free text field.
	if idx == idxCompany {
		switch msg.String() {
		case "enter":
			item.editing = false
			next, err := m.rec.SetCompanyReference(m.state, item.value)
			if err != nil {
				m.errMsg = err.Error()
				item.value = m.state.CompanyRef
				return m, nil
			}
			m.state = next
			m.errMsg = ""
			return m, nil
		case "esc":
			item.editing = false
			item.value = m.state.CompanyRef
			return m, nil
		case "backspace":
			if len(item.value) > 0 {
				item.value = item.value[:len(item.value)-1]
			}
			return m, nil
		case "ctrl+u":
			item.value = ""
			return m, nil
		default:
			if msg.Type == tea.KeyRunes {
				item.value += string(msg.Runes)
			}
			return m, nil
		}
	}

	// Option selector for conversation and persona.
	switch msg.String() {
	case "enter", " ":
		if item.cursor >= 0 && item.cursor < len(item.options) {
			item.value = item.options[item.cursor].value
		}
		item.editing = false

		switch idx {
		case idxConversation:
			if item.value == newConversationValue {
				m.state = m.rec.StartNew()
				m.errMsg = ""
				m.syncSettings()
				return m, nil
			}
			return m, m.loadCmd(item.value)
		case idxPersona:
			p, err := persona.Parse(item.value)
			if err != nil {
				m.errMsg = err.Error()
				return m, nil
			}
			m.state = m.rec.SetPersona(m.state, p)
		}
		return m, nil

	case "esc":
		item.editing = false
		return m, nil

	case "up", "k":
		if item.cursor > 0 {
			item.cursor--
		}

	case "down", "j":
		if item.cursor < len(item.options)-1 {
			item.cursor++
		}
	}
	return m, nil
}

func (m chatModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		if m.waiting {
			return m, nil
		}
		m.screen = screenSettings
		m.errMsg = ""
		m.syncSettings()
		return m, m.fetchSummariesCmd()

	case "enter":
		// One turn at a time: nothing is accepted until the in-flight
		// turn fully resolves.
		if m.waiting || strings.TrimSpace(m.input) == "" {
			return m, nil
		}
		m.waiting = true
		m.errMsg = ""
		return m, m.submitCmd(m.input)

	case "backspace":
		if !m.waiting && len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}

	case "ctrl+u":
		if !m.waiting {
			m.input = ""
		}

	default:
		if !m.waiting && msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		}
	}
	return m, nil
}

func (m chatModel) View() string {
	switch m.screen {
	case screenChat:
		return m.viewChat()
	default:
		return m.viewSettings()
	}
}

func (m chatModel) viewSettings() string {
	var b strings.Builder

	b.WriteString(headerBorder.Render(titleStyle.Render("Persona Chat")))
	b.WriteString("\n")

	for i, item := range m.items {
		isActive := m.cursor == i

		if i == idxStart {
			b.WriteString("\n")
			if isActive {
				b.WriteString("  " + buttonStyle.Render(" Chat "))
			} else {
				b.WriteString("  " + buttonDimStyle.Render(" Chat "))
			}
			b.WriteString("\n")
			continue
		}

		cursor := "  "
		if isActive {
			cursor = cursorStyle.Render("> ")
		}

		var renderedValue string
		switch {
		case item.editing && i == idxCompany:
			renderedValue = valueStyle.Render(item.value + "_")
		case item.value == "" || item.value == newConversationValue && i == idxConversation && m.state.Mode != session.ModeActive:
			placeholder := "(not set)"
			switch i {
			case idxConversation:
				placeholder = "New conversation"
			case idxCompany:
				placeholder = "(https://www.linkedin.com/company/...)"
			}
			renderedValue = valueDimStyle.Render(placeholder)
		default:
			displayVal := item.value
			for _, opt := range item.options {
				if opt.value == item.value {
					displayVal = opt.label
					break
				}
			}
			if i == idxCompany && m.state.CompanyName != "" {
				displayVal = fmt.Sprintf("%s (%s)", item.value, m.state.CompanyName)
			}
			renderedValue = valueStyle.Render(displayVal)
		}

		b.WriteString(cursor + labelStyle.Render(item.label) + " " + renderedValue + "\n")

		if item.editing && len(item.options) > 0 {
			for j, opt := range item.options {
				if j == item.cursor {
					b.WriteString(selectedOptionStyle.Render("> "+opt.label) + "\n")
				} else {
					b.WriteString(optionStyle.Render("  "+opt.label) + "\n")
				}
			}
		}
	}

	if m.errMsg != "" {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.errMsg) + "\n")
	}

	b.WriteString(helpStyle.Render("  j/k or arrows to navigate | enter to edit | q to quit"))
	b.WriteString("\n")
	return b.String()
}

func (m chatModel) viewChat() string {
	var b strings.Builder

	header := fmt.Sprintf("%s @ %s", m.state.Persona, m.state.CompanyName)
	if m.state.Mode == session.ModeActive {
		header += valueDimStyle.Render("  " + shortID(m.state.ID))
	}
	b.WriteString(headerBorder.Render(titleStyle.Render(header)))
	b.WriteString("\n")

	width := m.width
	if width <= 0 {
		width = 80
	}
	wrap := lipgloss.NewStyle().Width(width - 4).PaddingLeft(2)

	if len(m.state.Messages) == 0 {
		b.WriteString(valueDimStyle.Render("  No messages yet. Say hello.") + "\n")
	}
	for _, t := range m.state.Messages {
		tag := userTagStyle.Render("You")
		if t.Role == conversation.RoleAssistant {
			tag = personaTagStyle.Render(string(m.state.Persona))
		}
		b.WriteString("  " + tag + "\n")
		b.WriteString(wrap.Render(t.Content) + "\n\n")
	}

	if m.waiting {
		b.WriteString(valueDimStyle.Render("  thinking...") + "\n")
	} else {
		b.WriteString("  " + valueStyle.Render("> "+m.input+"_") + "\n")
	}

	if m.errMsg != "" {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.errMsg) + "\n")
	}

	b.WriteString(helpStyle.Render("  enter to send | esc for settings | ctrl+c to quit"))
	b.WriteString("\n")
	return b.String()
}

func runChatTUI(ctx context.Context, rec *session.Reconciler, st *store.Store, state session.State, enrich bool) error {
	m := newChatModel(ctx, rec, st, state, enrich)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

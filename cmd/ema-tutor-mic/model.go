package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/transport"
	"github.com/muesli/reflow/wordwrap"
)

var (
	tutorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	learnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 1)
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238"))
)

type lineKind int

const (
	lineTutor lineKind = iota
	lineLearner
	lineNotice
	lineError
)

type line struct {
	kind lineKind
	text string
}

// controlSender is the part of the session socket the view writes to.
type controlSender interface {
	SendControl(message transport.Message) error
}

type model struct {
	sender controlSender

	viewport viewport.Model
	input    textinput.Model
	ready    bool
	width    int

	lines []line
	// pending is the tutor reply streaming in before its final text arrives.
	pending   string
	state     string
	listening bool
	closed    bool
}

func newModel(sender controlSender) model {
	input := textinput.New()
	input.Placeholder = "speak, or type a message and press enter"
	input.CharLimit = 500
	input.Focus()

	return model{
		sender: sender,
		input:  input,
		state:  "connecting",
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - 5
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = height
		}
		m.input.Width = msg.Width - 4
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if !m.closed && m.sender != nil {
				_ = m.sender.SendControl(transport.CloseRequest{})
			}
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if text != "" && !m.closed && m.sender != nil {
				if err := m.sender.SendControl(transport.FinalTranscript{Text: text}); err != nil {
					m.appendLine(lineError, fmt.Sprintf("send failed: %v", err))
				}
			}
			m.refresh()
			return m, nil
		}

	case serverEventMsg:
		m.applyEvent(msg)
		m.refresh()

	case disconnectedMsg:
		m.closed = true
		m.state = "closed"
		if msg.err != nil {
			m.appendLine(lineError, fmt.Sprintf("disconnected: %v", msg.err))
		} else {
			m.appendLine(lineNotice, "session closed")
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) applyEvent(event serverEventMsg) {
	payload := event.payload
	switch event.kind {
	case events.KindSessionStateChanged:
		m.state = payload.To
	case events.KindUserSpeechStarted:
		m.listening = true
	case events.KindUserUtteranceDiscarded:
		m.listening = false
		m.appendLine(lineNotice, "didn't catch that ("+payload.Reason+")")
	case events.KindUserTranscriptFinal:
		m.listening = false
		m.appendLine(lineLearner, payload.Transcript)
	case events.KindAssistantResponseSegment:
		m.pending += payload.Text
	case events.KindAssistantResponseFinal:
		m.pending = ""
		m.appendLine(lineTutor, payload.Text)
	case events.KindTurnFailed:
		m.pending = ""
		m.appendLine(lineError, "turn failed: "+payload.Reason)
	case events.KindSessionError:
		m.appendLine(lineError, payload.Message)
	}
}

func (m *model) appendLine(kind lineKind, text string) {
	m.lines = append(m.lines, line{kind: kind, text: text})
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m model) renderConversation() string {
	width := m.viewport.Width - 2
	if width < 10 {
		width = 10
	}

	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(renderLine(l, width))
		b.WriteString("\n")
	}
	if m.pending != "" {
		b.WriteString(renderLine(line{kind: lineTutor, text: m.pending + "…"}, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderLine(l line, width int) string {
	switch l.kind {
	case lineTutor:
		return tutorStyle.Render("Ema") + "\n" + wordwrap.String(l.text, width)
	case lineLearner:
		return learnerStyle.Render("You") + "\n" + wordwrap.String(l.text, width)
	case lineError:
		return errorStyle.Render(wordwrap.String(l.text, width))
	default:
		return noticeStyle.Render(wordwrap.String(l.text, width))
	}
}

func (m model) View() string {
	if !m.ready {
		return "connecting..."
	}

	status := "state: " + m.state
	if m.listening {
		status += "  ● listening"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		frameStyle.Render(m.viewport.View()),
		statusStyle.Render(status),
		m.input.View(),
	)
}

// Package ui is the terminal page of the wave portal.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/waveportal-go/internal/contract"
	"github.com/comigor/waveportal-go/internal/portal"
	"github.com/comigor/waveportal-go/internal/wallet"
)

const timeLayout = "Mon Jan 2 2006 15:04:05"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	bioStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	waveStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			MarginBottom(1)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("118"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// Portal is the view state the page renders and drives. *portal.Controller
// satisfies it.
type Portal interface {
	View() portal.View
	Updates() <-chan portal.View
	Connect()
	Disconnect()
	SetDraft(text string)
	Send()
}

type viewMsg portal.View

// withdrawnMsg reports that the prompt answered through reply gave up.
type withdrawnMsg struct{ reply chan error }

// Model is the bubbletea model of the page.
type Model struct {
	portal   Portal
	requests <-chan Request

	view     portal.View
	input    textarea.Model
	spinner  spinner.Model
	viewport viewport.Model
	notice   string

	active *huh.Form
	reply  chan error
}

// NewModel builds the page over p. requests carries wallet prompts, see
// NewFormPrompter; it may be nil.
func NewModel(p Portal, requests <-chan Request) Model {
	in := textarea.New()
	in.Placeholder = "Write your message here"
	in.ShowLineNumbers = false
	in.CharLimit = 280
	in.SetHeight(3)
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	return Model{
		portal:   p,
		requests: requests,
		view:     p.View(),
		input:    in,
		spinner:  sp,
		viewport: viewport.New(80, 12),
	}
}

func waitForView(ch <-chan portal.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return viewMsg(v)
	}
}

func waitForRequest(ch <-chan Request) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		req, ok := <-ch
		if !ok {
			return nil
		}
		return req
	}
}

func waitForWithdrawal(req Request) tea.Cmd {
	if req.Done == nil {
		return nil
	}
	return func() tea.Msg {
		<-req.Done
		return withdrawnMsg{reply: req.Reply}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textarea.Blink, waitForView(m.portal.Updates()), waitForRequest(m.requests))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case viewMsg:
		m = m.applyView(portal.View(msg))
		return m, waitForView(m.portal.Updates())

	case Request:
		if msg.Form == nil {
			m.notice = msg.Notice
			return m, waitForRequest(m.requests)
		}
		m.active = msg.Form
		m.reply = msg.Reply
		m.input.Blur()
		return m, tea.Batch(m.active.Init(), waitForRequest(m.requests), waitForWithdrawal(msg))

	case withdrawnMsg:
		if m.active != nil && m.reply == msg.reply {
			m.active, m.reply = nil, nil
			m.input.Focus()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.input.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-12, 3)
		m.viewport.SetContent(m.renderWaves())
		return m, nil
	}

	if m.active != nil {
		return m.updateForm(msg)
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		if next, cmd, handled := m.handleKey(key); handled {
			return next, cmd
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)
	if m.view.State.Online() {
		before := m.input.Value()
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		if after := m.input.Value(); after != before {
			m.portal.SetDraft(after)
		}
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(key tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch key.String() {
	case "ctrl+c":
		return m, tea.Quit, true
	}

	switch m.view.State {
	case portal.StateDisconnected:
		switch key.String() {
		case "c", "enter":
			m.notice = ""
			m.portal.Connect()
			return m, nil, true
		case "q", "esc":
			return m, tea.Quit, true
		}
	case portal.StateConnectedEmpty, portal.StateConnectedWithMessages:
		switch key.String() {
		case "ctrl+s":
			m.portal.SetDraft(m.input.Value())
			m.portal.Send()
			return m, nil, true
		case "ctrl+d":
			m.portal.Disconnect()
			return m, nil, true
		}
	case portal.StateSubmitting:
		if key.String() == "ctrl+d" {
			m.portal.Disconnect()
			return m, nil, true
		}
	}
	return m, nil, false
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	fm, cmd := m.active.Update(msg)
	if f, ok := fm.(*huh.Form); ok {
		m.active = f
	}

	var result error
	switch m.active.State {
	case huh.StateCompleted:
	case huh.StateAborted:
		result = wallet.ErrCancelled
	default:
		return m, cmd
	}

	reply := m.reply
	m.active, m.reply = nil, nil
	m.input.Focus()
	if reply != nil {
		reply <- result
	}
	// the form's own quit command would end the program
	return m, nil
}

func (m Model) applyView(v portal.View) Model {
	if m.view.State == portal.StateSubmitting && v.State != portal.StateSubmitting && v.Draft == "" {
		m.input.Reset()
	}
	if !v.State.Online() {
		m.input.Reset()
	} else {
		m.notice = ""
	}
	m.view = v
	m.viewport.SetContent(m.renderWaves())
	m.viewport.GotoBottom()
	return m
}

func (m Model) View() string {
	if m.active != nil {
		return m.active.View()
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("👋 Hey there!"))
	b.WriteString("\n")
	b.WriteString(bioStyle.Render("Connect your wallet and wave at me!"))
	b.WriteString("\n\n")

	switch m.view.State {
	case portal.StateDisconnected:
		b.WriteString("Connect Wallet\n")
		b.WriteString(helpStyle.Render("c connect • q quit"))
	case portal.StateConnecting:
		b.WriteString(m.spinner.View() + " Connecting...")
	default:
		b.WriteString(labelStyle.Render("Connected as ") + m.view.Address.Hex() + "\n")
		b.WriteString(m.input.View() + "\n")
		if m.view.State == portal.StateSubmitting {
			b.WriteString(m.spinner.View() + " Mining...\n")
		}
		b.WriteString(helpStyle.Render("ctrl+s wave at me • ctrl+d disconnect • ctrl+c quit"))
	}
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.notice) + "\n")
	}
	if m.view.LastError != nil {
		b.WriteString("\n" + errorStyle.Render("Error: ") + m.view.LastError.Error() + "\n")
	}
	if len(m.view.Messages) > 0 {
		b.WriteString("\n" + m.viewport.View())
	}
	return b.String()
}

func (m Model) renderWaves() string {
	if len(m.view.Messages) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.view.Messages))
	for _, msg := range m.view.Messages {
		parts = append(parts, waveStyle.Render(renderWave(msg)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderWave(msg contract.Message) string {
	return fmt.Sprintf("%s %s\n%s %s\n%s %s",
		labelStyle.Render("Address:"), msg.Sender.Hex(),
		labelStyle.Render("Time:"), msg.SentAt.Format(timeLayout),
		labelStyle.Render("Message:"), msg.Text,
	)
}

// Run shows the page until the user quits or ctx is cancelled.
func Run(ctx context.Context, p Portal, requests <-chan Request) error {
	prog := tea.NewProgram(NewModel(p, requests), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}

// Package tui is the interactive chat surface: one workspace, one
// agent session, answers streamed into a scrollable panel.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PanelID identifies a panel.
type PanelID int

const (
	PanelAnswer PanelID = iota
	PanelLogs
)

// --- Tea messages ---

// AnswerPartMsg carries one message part's full text so far.
type AnswerPartMsg struct {
	PartID string
	Text   string
}

// AnswerDoneMsg ends the current answer. Err is the stream's terminal
// failure, if any.
type AnswerDoneMsg struct{ Err error }

// LogMsg appends a line to the logs panel.
type LogMsg struct{ Text string }

// SessionInfoMsg updates the sidebar after a (re)connect.
type SessionInfoMsg struct {
	ID   string
	Port int
}

// App is the main Bubble Tea model.
type App struct {
	width  int
	height int

	activePanel PanelID
	answerView  viewport.Model
	logsView    viewport.Model

	input        textarea.Model
	inputFocused bool

	workspaceKey string
	members      []string
	provider     string
	model        string
	sessionID    string
	port         int

	// transcript holds finished turns; parts hold the in-flight answer
	transcript string
	logContent string
	partOrder  []string
	partText   map[string]string
	streaming  bool
	lastError  string

	theme Theme
	keys  KeyMap

	// onSubmit ships the question to the session; wired by Run.
	onSubmit func(text string)
}

// NewApp builds the model for one open session.
func NewApp(workspaceKey string, members []string, provider, model, sessionID string, port int) App {
	ta := textarea.New()
	ta.Placeholder = "Ask about " + workspaceKey + " (enter to send)"
	ta.CharLimit = 8192
	ta.SetHeight(3)
	ta.Focus()

	return App{
		activePanel:  PanelAnswer,
		input:        ta,
		inputFocused: true,
		workspaceKey: workspaceKey,
		members:      members,
		provider:     provider,
		model:        model,
		sessionID:    sessionID,
		port:         port,
		partText:     map[string]string{},
		theme:        DarkTheme(),
		keys:         DefaultKeyMap(),
	}
}

func (a App) Init() tea.Cmd {
	return textarea.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "tab":
			a.activePanel = (a.activePanel + 1) % 2
			return a, nil
		case "enter":
			if !a.streaming {
				a.submit()
				return a, nil
			}
		case "esc":
			if a.streaming {
				a.streaming = false
				a.appendLog("answer interrupted")
			}
			return a, nil
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case AnswerPartMsg:
		a.streaming = true
		if _, seen := a.partText[msg.PartID]; !seen {
			a.partOrder = append(a.partOrder, msg.PartID)
		}
		a.partText[msg.PartID] = msg.Text
		a.refreshAnswer()
		return a, nil

	case AnswerDoneMsg:
		a.streaming = false
		if msg.Err != nil {
			a.lastError = msg.Err.Error()
			a.appendTranscript("error: " + msg.Err.Error())
			a.appendLog("error: " + msg.Err.Error())
		} else {
			a.flushParts()
		}
		a.resetParts()
		return a, nil

	case LogMsg:
		a.appendLog(msg.Text)
		return a, nil

	case SessionInfoMsg:
		a.sessionID = msg.ID
		a.port = msg.Port
		return a, nil
	}

	if a.inputFocused {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Connecting..."
	}

	sidebarWidth := a.width * 25 / 100
	if sidebarWidth < 18 {
		sidebarWidth = 18
	}
	if sidebarWidth > 36 {
		sidebarWidth = 36
	}
	if a.width < 80 {
		sidebarWidth = 0
	}

	mainWidth := a.width - sidebarWidth
	if sidebarWidth > 0 {
		mainWidth--
	}

	inputHeight := 5
	statusHeight := 1
	tabHeight := 1
	panelHeight := a.height - inputHeight - statusHeight - tabHeight
	if panelHeight < 3 {
		panelHeight = 3
	}

	tabs := a.renderTabs()
	panel := a.renderActivePanel(mainWidth, panelHeight)
	inputBox := a.theme.InputStyle.Width(mainWidth).Render(a.input.View())

	main := lipgloss.JoinVertical(lipgloss.Left, tabs, panel, inputBox)
	if sidebarWidth > 0 {
		sidebar := a.renderSidebar(sidebarWidth, a.height-statusHeight)
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, sidebar)
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, a.renderStatusBar(a.width))
}

// --- internal ---

func (a *App) submit() {
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		return
	}
	a.input.Reset()
	a.appendTranscript("you: " + text)
	a.streaming = true
	if a.onSubmit != nil {
		a.onSubmit(text)
	}
}

func (a *App) relayout() {
	mainWidth := a.width
	panelHeight := a.height - 8
	if panelHeight < 3 {
		panelHeight = 3
	}

	a.answerView = viewport.New(mainWidth, panelHeight)
	a.refreshAnswer()

	a.logsView = viewport.New(mainWidth, panelHeight)
	a.logsView.SetContent(a.logContent)

	a.input.SetWidth(mainWidth - 4)
}

func (a *App) appendTranscript(text string) {
	a.transcript += text + "\n\n"
	a.refreshAnswer()
}

func (a *App) appendLog(text string) {
	a.logContent += text + "\n"
	a.logsView.SetContent(a.logContent)
}

// currentParts joins the in-flight answer parts in first-seen order.
func (a *App) currentParts() string {
	out := make([]string, 0, len(a.partOrder))
	for _, id := range a.partOrder {
		if t := strings.TrimSpace(a.partText[id]); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n\n")
}

func (a *App) refreshAnswer() {
	content := a.transcript
	if parts := a.currentParts(); parts != "" {
		content += parts
	}
	a.answerView.SetContent(content)
	a.answerView.GotoBottom()
}

func (a *App) flushParts() {
	if parts := a.currentParts(); parts != "" {
		rendered := RenderMarkdown(parts, a.answerView.Width)
		if rendered == "" {
			rendered = parts
		}
		a.transcript += rendered + "\n\n"
	}
	a.answerView.SetContent(a.transcript)
	a.answerView.GotoBottom()
}

func (a *App) resetParts() {
	a.partOrder = nil
	a.partText = map[string]string{}
}

func (a App) renderTabs() string {
	tabs := []struct {
		id   PanelID
		name string
	}{
		{PanelAnswer, "Answers"},
		{PanelLogs, "Logs"},
	}

	var parts []string
	for _, tab := range tabs {
		style := a.theme.InactiveTabStyle
		if tab.id == a.activePanel {
			style = a.theme.ActiveTabStyle
		}
		parts = append(parts, style.Render(tab.name))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a App) renderActivePanel(width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height)

	var content string
	switch a.activePanel {
	case PanelAnswer:
		content = a.answerView.View()
	case PanelLogs:
		if a.logContent == "" {
			content = a.theme.MutedStyle.Render("  No logs yet")
		} else {
			content = a.logsView.View()
		}
	}
	return style.Render(content)
}

func (a App) renderSidebar(width, height int) string {
	var parts []string

	parts = append(parts, a.theme.TitleStyle.Render(" bctx"))
	parts = append(parts, "")

	parts = append(parts, a.theme.TitleStyle.Render(" Workspace"))
	parts = append(parts, "  "+a.workspaceKey)
	parts = append(parts, "")

	if len(a.members) > 0 {
		parts = append(parts, a.theme.TitleStyle.Render(" Repositories"))
		for _, m := range a.members {
			parts = append(parts, "  @"+m)
		}
		parts = append(parts, "")
	}

	parts = append(parts, a.theme.TitleStyle.Render(" Model"))
	parts = append(parts, "  "+a.provider+"/"+a.model)
	parts = append(parts, "")

	if a.port > 0 {
		parts = append(parts, a.theme.TitleStyle.Render(" Backend"))
		parts = append(parts, fmt.Sprintf("  127.0.0.1:%d", a.port))
	}

	return a.theme.SidebarStyle.Width(width).Height(height).Render(strings.Join(parts, "\n"))
}

func (a App) renderStatusBar(width int) string {
	status := "ready"
	if a.streaming {
		status = "thinking..."
	}
	if a.lastError != "" && !a.streaming {
		status = "error"
	}

	left := fmt.Sprintf(" %s · %s · %s", a.workspaceKey, a.model, status)
	right := fmt.Sprintf("%s  ", a.sessionID)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return a.theme.StatusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/seqexport/pkg/export"
)

// Progress view styles
var (
	barFilledStyle = lipgloss.NewStyle().Foreground(colorCyan)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(colorDim)
	stageStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	hintStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	maxBarWidth = 40
	minBarWidth = 10
)

// =============================================================================
// ExportModel - Interactive export progress
// =============================================================================

// progressMsg carries one pipeline progress event into the program.
type progressMsg export.Progress

// exportDoneMsg ends the program with the job outcome.
type exportDoneMsg struct {
	result *export.Result
	err    error
}

// ExportModel is the bubbletea model that follows a running export.
type ExportModel struct {
	Title   string
	Format  string
	Stage   export.Stage
	Current int
	Total   int
	Width   int

	Result     *export.Result
	Err        error
	Cancelling bool

	cancel func()
	done   bool
}

// NewExportModel creates a progress model. cancel is called when the user
// presses q or ctrl+c; the model keeps running until the job reports back.
func NewExportModel(title, format string, cancel func()) ExportModel {
	return ExportModel{
		Title:  title,
		Format: format,
		Stage:  export.StageIdle,
		Width:  80,
		cancel: cancel,
	}
}

func (m ExportModel) Init() tea.Cmd {
	return nil
}

func (m ExportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.Cancelling && m.cancel != nil {
				m.cancel()
			}
			m.Cancelling = true
		}
	case progressMsg:
		m.Stage = msg.Stage
		if msg.Stage == export.StageCapturing {
			m.Current = msg.Current
			m.Total = msg.Total
		}
	case exportDoneMsg:
		m.Result = msg.result
		m.Err = msg.err
		m.done = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.Width = msg.Width
	}
	return m, nil
}

func (m ExportModel) View() string {
	var b strings.Builder

	title := m.Title
	if title == "" {
		title = "Untitled sequence"
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString(" ")
	b.WriteString(StyleDim.Render(m.Format))
	b.WriteString("\n\n")

	stage := string(m.Stage)
	if m.Cancelling && !m.done {
		stage = "cancelling"
	}
	b.WriteString(stageStyle.Render(fmt.Sprintf("%-12s", stage)))
	b.WriteString(" ")
	b.WriteString(m.bar())
	if m.Total > 0 {
		b.WriteString(StyleDim.Render(fmt.Sprintf("  %d/%d frames", m.Current, m.Total)))
	}
	b.WriteString("\n\n")

	if !m.done && !m.Stage.Terminal() {
		b.WriteString(hintStyle.Render("q cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

// bar renders the capture progress. Encoding and later stages show a full
// bar since their duration is not measured.
func (m ExportModel) bar() string {
	width := m.Width - 40
	if width > maxBarWidth {
		width = maxBarWidth
	}
	if width < minBarWidth {
		width = minBarWidth
	}

	filled := 0
	switch {
	case m.Stage == export.StageCapturing && m.Total > 0:
		filled = width * m.Current / m.Total
	case m.Stage == export.StageEncoding, m.Stage == export.StageTranscoding, m.Stage == export.StageComplete:
		filled = width
	}
	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

// runInteractive runs job under a bubbletea progress view on stderr. The
// job receives a progress callback that feeds the view.
func runInteractive(ctx context.Context, model ExportModel, job func(ctx context.Context, onProgress export.ProgressFunc) (*export.Result, error)) (*export.Result, error) {
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(os.Stderr))

	done := make(chan exportDoneMsg, 1)
	go func() {
		res, err := job(ctx, func(ev export.Progress) { p.Send(progressMsg(ev)) })
		msg := exportDoneMsg{result: res, err: err}
		done <- msg
		p.Send(msg)
	}()

	final, runErr := p.Run()
	outcome := <-done
	if m, ok := final.(ExportModel); ok && m.done {
		return m.Result, m.Err
	}
	if outcome.err == nil && runErr != nil && ctx.Err() == nil {
		return outcome.result, runErr
	}
	return outcome.result, outcome.err
}

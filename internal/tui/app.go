// Package tui renders planning progress and the allocation summary in the
// terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/rackplan/internal/planner"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	stageStyle = lipgloss.NewStyle().
			Foreground(cyanColor).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// maxLogLines bounds the step log kept in memory.
const maxLogLines = 200

type stageMsg struct {
	name  string
	total int
}

type stepMsg struct{ text string }

type doneMsg struct{ err error }

type resultMsg struct {
	res *planner.Result
	err error
}

// App is the progress model of one planning run.
type App struct {
	bar      progress.Model
	spin     spinner.Model
	log      viewport.Model
	lines    []string
	stage    string
	total    int
	count    int
	width    int
	height   int
	finished bool
	err      error
	result   *planner.Result
	tasks    []planner.TaskSpec
	cancel   context.CancelFunc
}

// New creates the progress model. tasks labels the summary; cancel is
// called when the user quits early and may be nil.
func New(tasks []planner.TaskSpec, cancel context.CancelFunc) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)
	return &App{
		bar:    progress.New(progress.WithDefaultGradient()),
		spin:   s,
		log:    viewport.New(80, 10),
		tasks:  tasks,
		cancel: cancel,
	}
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return a.spin.Tick
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !a.finished && a.cancel != nil {
				a.cancel()
			}
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.bar.Width = max(10, msg.Width-20)
		a.log.Width = msg.Width - 4
		a.log.Height = max(3, msg.Height-12)

	case stageMsg:
		a.stage, a.total, a.count = msg.name, msg.total, 0
		a.appendLine(stageStyle.Render("== " + msg.name))

	case stepMsg:
		a.count++
		a.appendLine(msg.text)

	case doneMsg:
		a.err = msg.err

	case resultMsg:
		a.finished = true
		a.result = msg.res
		if msg.err != nil {
			a.err = msg.err
		}
		return a, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.log, cmd = a.log.Update(msg)
	return a, cmd
}

func (a *App) appendLine(line string) {
	a.lines = append(a.lines, line)
	if len(a.lines) > maxLogLines {
		a.lines = a.lines[len(a.lines)-maxLogLines:]
	}
	a.log.SetContent(strings.Join(a.lines, "\n"))
	a.log.GotoBottom()
}

// Percent is the completed fraction of the current stage.
func (a *App) Percent() float64 {
	if a.total <= 0 {
		return 0
	}
	return min(1, float64(a.count)/float64(a.total))
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("rackplan") + "\n\n")

	if a.finished {
		if a.err != nil {
			b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Render("Planning failed: "+a.err.Error()) + "\n")
		} else {
			b.WriteString(RenderSummary(a.result, a.tasks))
		}
		return b.String()
	}

	stage := a.stage
	if stage == "" {
		stage = "starting"
	}
	b.WriteString(fmt.Sprintf("%s %s  %d/%d\n", a.spin.View(), stageStyle.Render(stage), a.count, a.total))
	b.WriteString(a.bar.ViewAs(a.Percent()) + "\n\n")
	b.WriteString(panelStyle.Render(a.log.View()) + "\n")

	status := " q/Ctrl+C: cancel"
	if a.width > 0 {
		b.WriteString(statusBarStyle.Width(a.width).Render(status))
	} else {
		b.WriteString(helpStyle.Render(status))
	}
	return b.String()
}

// Result returns the run outcome once the program has exited.
func (a *App) Result() (*planner.Result, error) {
	return a.result, a.err
}

// ProgramReporter forwards planner progress to a running program.
type ProgramReporter struct {
	program *tea.Program
}

// NewProgramReporter wraps p.
func NewProgramReporter(p *tea.Program) *ProgramReporter {
	return &ProgramReporter{program: p}
}

func (r *ProgramReporter) Stage(name string, total int) { r.program.Send(stageMsg{name, total}) }
func (r *ProgramReporter) Step(msg string)              { r.program.Send(stepMsg{msg}) }
func (r *ProgramReporter) Done(err error)               { r.program.Send(doneMsg{err}) }

// Run drives build with a live progress view. build receives the
// reporter to hand to the planner and a context cancelled when the user
// quits.
func Run(ctx context.Context, tasks []planner.TaskSpec, build func(ctx context.Context, r planner.Reporter) (*planner.Result, error)) (*planner.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := New(tasks, cancel)
	p := tea.NewProgram(app)
	rep := NewProgramReporter(p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := build(ctx, rep)
		p.Send(resultMsg{res: res, err: err})
	}()

	_, runErr := p.Run()
	// The build stops at its next context check once the view is gone.
	cancel()
	<-done
	if runErr != nil {
		return nil, runErr
	}
	res, err := app.Result()
	if err == nil && res == nil {
		return nil, context.Canceled
	}
	return res, err
}

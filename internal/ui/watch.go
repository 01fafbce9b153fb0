package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/iotctl/internal/device"
)

// ProcessWatcher is the part of a device session the watch screen needs
type ProcessWatcher interface {
	WaitReady(ctx context.Context) error
	PollInterval() time.Duration
	State() device.State
	WatchProcesses(ctx context.Context, fn device.ProcessHandler) error
}

// Message types for the watch screen
type (
	sessionReadyMsg struct{ state device.State }
	processesMsg    struct{ procs []device.Process }
	streamEndMsg    struct{ err error }
)

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Sort key.Binding
	More key.Binding
	Less key.Binding
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Sort, k.More, k.Less, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Sort, k.More, k.Less}, {k.Quit}}
}

// WatchModel renders a live process table fed by a device stream
type WatchModel struct {
	Address string
	State   device.State
	Ready   bool
	Procs   []device.Process
	Frames  int
	Updated time.Time
	Order   SortOrder
	Limit   int
	Err     error
	Done    bool

	Spinner spinner.Model
	Help    help.Model
	Keys    watchKeyMap
	Width   int
}

// NewWatchModel creates the watch screen for address
func NewWatchModel(address string, limit int) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	if limit <= 0 {
		limit = 20
	}

	return WatchModel{
		Address: address,
		Limit:   limit,
		Spinner: s,
		Help:    help.New(),
		Width:   GetTerminalWidth(),
		Keys: watchKeyMap{
			Sort: key.NewBinding(
				key.WithKeys("s"),
				key.WithHelp("s", "sort"),
			),
			More: key.NewBinding(
				key.WithKeys("+", "="),
				key.WithHelp("+", "more rows"),
			),
			Less: key.NewBinding(
				key.WithKeys("-"),
				key.WithHelp("-", "fewer rows"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "ctrl+c", "esc"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// WithTick sets the spinner's frame interval. Non-positive values keep the
// spinner's own rate.
func (m WatchModel) WithTick(d time.Duration) WatchModel {
	if d > 0 {
		m.Spinner.Spinner.FPS = d
	}
	return m
}

// Init starts the spinner
func (m WatchModel) Init() tea.Cmd {
	return m.Spinner.Tick
}

// Update handles key presses and stream messages
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			m.Done = true
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Sort):
			m.Order = m.Order.Next()
		case key.Matches(msg, m.Keys.More):
			m.Limit += 5
		case key.Matches(msg, m.Keys.Less):
			if m.Limit > 5 {
				m.Limit -= 5
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)
		m.Help.Width = m.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case sessionReadyMsg:
		m.Ready = true
		m.State = msg.state
		return m, nil

	case processesMsg:
		m.Procs = msg.procs
		m.Frames++
		m.Updated = time.Now()
		return m, nil

	case streamEndMsg:
		m.Err = msg.err
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the watch screen
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderTitleStyle.Render("PROCESSES"))
	b.WriteString(HeaderCommandStyle.Render(m.Address))
	if m.Ready && !m.State.Authenticated {
		b.WriteString(StepNoteStyle.Render("  (anonymous)"))
	}
	b.WriteString("\n\n")

	switch {
	case m.Err != nil:
		b.WriteString(ErrorMessageStyle.Render("  " + device.ShortMessage(m.Err)))
		b.WriteString("\n")
	case !m.Ready:
		b.WriteString(fmt.Sprintf("  %s Probing device...\n", m.Spinner.View()))
	case m.Frames == 0:
		b.WriteString(fmt.Sprintf("  %s Waiting for process data...\n", m.Spinner.View()))
	default:
		b.WriteString(RenderProcessTable(m.Procs, m.Order, m.Limit))
		b.WriteString(StepNoteStyle.Render(fmt.Sprintf("  %d processes, sorted by %s, updated %s",
			len(m.Procs), m.Order, m.Updated.Format("15:04:05"))))
		b.WriteString("\n")
	}

	if !m.Done {
		b.WriteString("\n")
		b.WriteString(m.Help.View(m.Keys))
		b.WriteString("\n")
	}

	return b.String()
}

// RunWatch runs the watch screen until the user quits, the stream ends or
// ctx is cancelled. Returns the stream error, if any.
func RunWatch(ctx context.Context, w ProcessWatcher, address string, out io.Writer, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(out)}, opts...)
	p := tea.NewProgram(NewWatchModel(address, 0).WithTick(w.PollInterval()), opts...)

	go func() {
		if err := w.WaitReady(ctx); err != nil {
			p.Send(streamEndMsg{err: err})
			return
		}
		p.Send(sessionReadyMsg{state: w.State()})

		err := w.WatchProcesses(ctx, func(procs []device.Process) error {
			p.Send(processesMsg{procs: procs})
			return nil
		})
		p.Send(streamEndMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return err
	}

	if m, ok := final.(WatchModel); ok && m.Err != nil {
		return m.Err
	}
	return nil
}

package browse

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kenjobs/jobsync/internal/model"
)

// ErrCancelled is returned when the user aborts a search in progress.
var ErrCancelled = errors.New("cancelled")

const searchTimeout = 2 * time.Minute

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))

type searchDoneMsg struct {
	result model.Result
	err    error
}

type spinnerTickMsg struct{}

type loaderModel struct {
	label  string
	fetch  func(ctx context.Context) (model.Result, error)
	frame  int
	result model.Result
	err    error
	done   bool
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(m.doFetch(), tick())
}

func (m loaderModel) doFetch() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		result, err := fetch(ctx)
		return searchDoneMsg{result: result, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case searchDoneMsg:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinnerTickMsg:
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = ErrCancelled
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Searching %s...\n", spinnerStyle.Render(spinnerFrames[m.frame]), m.label)
}

// RunLoader shows a spinner while fetch runs. It renders inline (no alt screen).
func RunLoader(label string, fetch func(ctx context.Context) (model.Result, error)) (model.Result, error) {
	m := loaderModel{
		label: label,
		fetch: fetch,
	}
	p := tea.NewProgram(m)
	result, err := p.Run()
	if err != nil {
		return model.Result{}, err
	}
	final := result.(loaderModel)
	return final.result, final.err
}

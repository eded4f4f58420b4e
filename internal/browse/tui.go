// Package browse is the interactive terminal UI for search results.
package browse

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/kenjobs/jobsync/internal/model"
)

// Lines per job item in the list pane (title + subtitle + blank separator).
const jobItemHeight = 3

type pane int

const (
	paneList pane = iota
	paneDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39"))

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("0"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	jobTitleStyle = lipgloss.NewStyle().
			Bold(true)

	jobSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedJobTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedJobSubtitleStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("252")).
					Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(10)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15"))

	descDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	descBodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var badgeColors = map[model.Provenance]lipgloss.Color{
	model.ProvenanceCache:         lipgloss.Color("42"),
	model.ProvenanceLive:          lipgloss.Color("39"),
	model.ProvenanceStaleFallback: lipgloss.Color("214"),
}

// Options configure the browser.
type Options struct {
	// Title describes the search in the banner.
	Title string
	// Fetch loads another page of the same search.
	Fetch func(ctx context.Context, page int) (model.Result, error)
	// Save toggles a job in the user's saved list. Nil hides the action.
	Save func(ctx context.Context, job model.Job) (bool, error)
	// Now is the clock for relative times. Defaults to time.Now.
	Now func() time.Time
}

type pageLoadedMsg struct {
	result model.Result
	err    error
}

type savedMsg struct {
	jobID string
	saved bool
	err   error
}

type browseModel struct {
	opts    Options
	result  model.Result
	cursor  int
	focus   pane
	list    viewport.Model
	detail  viewport.Model
	width   int
	height  int
	ready   bool
	loading bool
	status  string
	saved   map[string]bool
}

func newBrowseModel(result model.Result, opts Options) browseModel {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return browseModel{
		opts:   opts,
		result: result,
		saved:  make(map[string]bool),
	}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case pageLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("loading page failed: %v", msg.err)
			return m, nil
		}
		m.status = ""
		m.result = msg.result
		m.cursor = 0
		m.list.SetYOffset(0)
		m.recalcContent()
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("save failed: %v", msg.err)
			return m, nil
		}
		m.saved[msg.jobID] = msg.saved
		if msg.saved {
			m.status = "saved"
		} else {
			m.status = "removed from saved jobs"
		}
		m.recalcContent()
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m browseModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "left", "right":
		if m.focus == paneList {
			m.focus = paneDetail
		} else {
			m.focus = paneList
		}
		return m, nil
	case "enter":
		m.focus = paneDetail
		return m, nil
	case "n":
		if m.loading || m.opts.Fetch == nil || m.result.Page >= m.result.TotalPages {
			return m, nil
		}
		return m.loadPage(m.result.Page + 1)
	case "p":
		if m.loading || m.opts.Fetch == nil || m.result.Page <= 1 {
			return m, nil
		}
		return m.loadPage(m.result.Page - 1)
	case "o":
		if job, ok := m.selected(); ok && job.ExternalURL != nil {
			openURL(*job.ExternalURL)
		}
		return m, nil
	case "s":
		job, ok := m.selected()
		if !ok || m.opts.Save == nil {
			return m, nil
		}
		return m, saveCmd(m.opts.Save, job)
	}

	if m.focus == paneList {
		switch msg.String() {
		case "up", "k":
			m.moveCursor(-1)
			return m, nil
		case "down", "j":
			m.moveCursor(1)
			return m, nil
		}
	}

	// Forward other keys (pgup/pgdn/home/end, or arrows in the detail pane).
	var cmd tea.Cmd
	if m.focus == paneList {
		m.list, cmd = m.list.Update(msg)
	} else {
		m.detail, cmd = m.detail.Update(msg)
	}
	return m, cmd
}

func (m browseModel) loadPage(page int) (tea.Model, tea.Cmd) {
	m.loading = true
	m.status = fmt.Sprintf("loading page %d...", page)
	fetch := m.opts.Fetch
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		result, err := fetch(ctx, page)
		return pageLoadedMsg{result: result, err: err}
	}
}

func saveCmd(save func(context.Context, model.Job) (bool, error), job model.Job) tea.Cmd {
	return func() tea.Msg {
		saved, err := save(context.Background(), job)
		return savedMsg{jobID: job.ID, saved: saved, err: err}
	}
}

func (m browseModel) selected() (model.Job, bool) {
	if len(m.result.Jobs) == 0 {
		return model.Job{}, false
	}
	return m.result.Jobs[m.cursor], true
}

func (m *browseModel) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(len(m.result.Jobs)-1, 0))
	m.recalcContent()
	m.detail.SetYOffset(0)
	m.ensureCursorVisible()
}

func (m *browseModel) ensureCursorVisible() {
	cursorTop := m.cursor * jobItemHeight
	cursorBottom := cursorTop + jobItemHeight - 1

	if cursorTop < m.list.YOffset {
		m.list.SetYOffset(cursorTop)
	} else if cursorBottom >= m.list.YOffset+m.list.Height {
		m.list.SetYOffset(cursorBottom - m.list.Height + 1)
	}
}

func (m *browseModel) recalcLayout() {
	// 2 border chars per pane + 1 gap; the list gets two fifths of the width.
	listWidth := max((m.width-5)*2/5, 20)
	detailWidth := max(m.width-5-listWidth, 20)

	// Banner (1 line) + border top/bottom (2) + status bar (1).
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.list = viewport.New(listWidth, paneHeight)
		m.detail = viewport.New(detailWidth, paneHeight)
		m.ready = true
	} else {
		m.list.Width = listWidth
		m.list.Height = paneHeight
		m.detail.Width = detailWidth
		m.detail.Height = paneHeight
	}

	m.recalcContent()
}

func (m *browseModel) recalcContent() {
	m.list.SetContent(renderJobs(m.result.Jobs, m.cursor, m.saved, m.opts.Now()))
	if job, ok := m.selected(); ok {
		m.detail.SetContent(renderDetail(job, m.saved[job.ID], m.detail.Width, m.opts.Now()))
	} else {
		m.detail.SetContent("")
	}
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	listBorder, detailBorder := activeBorderStyle, inactiveBorderStyle
	if m.focus == paneDetail {
		listBorder, detailBorder = inactiveBorderStyle, activeBorderStyle
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		listBorder.Width(m.list.Width).Render(m.list.View()),
		" ",
		detailBorder.Width(m.detail.Width).Render(m.detail.View()),
	)

	statusText := m.helpText()
	if m.status != "" {
		statusText = " " + m.status + "   " + statusText
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return banner(m.result, m.opts.Title) + "\n" + panes + "\n" + statusBar
}

func (m browseModel) helpText() string {
	keys := []string{"↑/↓ move", "tab switch pane", "o open"}
	if m.opts.Save != nil {
		keys = append(keys, "s save")
	}
	if m.opts.Fetch != nil && m.result.TotalPages > 1 {
		keys = append(keys, "n/p page")
	}
	keys = append(keys, "q quit")
	return strings.Join(keys, "  ")
}

// banner renders the provenance badge and the result counts.
func banner(r model.Result, title string) string {
	label := provenanceLabel(r.Source)
	color, ok := badgeColors[r.Source]
	if !ok {
		color = lipgloss.Color("245")
	}
	badge := badgeStyle.Background(color).Render(label)

	page := fmt.Sprintf("page %d/%d", r.Page, max(r.TotalPages, 1))
	info := fmt.Sprintf("%s · %s · %s", title, humanize.Comma(int64(r.Total))+" jobs", page)
	return badge + bannerStyle.Render(info)
}

func provenanceLabel(p model.Provenance) string {
	switch p {
	case model.ProvenanceCache:
		return "CACHED"
	case model.ProvenanceLive:
		return "LIVE"
	case model.ProvenanceStaleFallback:
		return "STALE"
	}
	return strings.ToUpper(string(p))
}

func renderJobs(jobs []model.Job, cursor int, saved map[string]bool, now time.Time) string {
	if len(jobs) == 0 {
		return "  (no jobs)"
	}

	var b strings.Builder
	for i, j := range jobs {
		titleSt := jobTitleStyle
		subtitleSt := jobSubtitleStyle
		prefix := "  "
		if i == cursor {
			titleSt = selectedJobTitleStyle
			subtitleSt = selectedJobSubtitleStyle
			prefix = "> "
		}

		title := j.Title
		if saved[j.ID] {
			title = "★ " + title
		}
		b.WriteString(prefix)
		b.WriteString(titleSt.Render(title))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s · %s", j.CompanyName, j.Location, relative(j.PostedAt, now))))
		b.WriteByte('\n')

		if i < len(jobs)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func renderDetail(j model.Job, saved bool, width int, now time.Time) string {
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	title := j.Title
	if saved {
		title = "★ " + title
	}
	b.WriteString(detailTitleStyle.Render(title) + "\n\n")

	addField("Company", j.CompanyName)
	addField("Location", j.Location)
	addField("Type", j.JobType)
	addField("Salary", j.SalaryRange)
	addField("Source", j.Source)
	if !j.PostedAt.IsZero() {
		addField("Posted", fmt.Sprintf("%s (%s)", relative(j.PostedAt, now), j.PostedAt.Format("2006-01-02")))
	}
	if j.ExternalURL != nil {
		addField("URL", *j.ExternalURL)
	} else if !j.IsExternal {
		addField("Apply", "on the job board")
	}

	if j.Description != "" {
		wrapWidth := max(width-2, 20)
		label := "── Description "
		fill := strings.Repeat("─", max(wrapWidth-len([]rune(label)), 3))
		b.WriteByte('\n')
		b.WriteString(descDividerStyle.Render(label+fill) + "\n\n")
		b.WriteString(descBodyStyle.Render(wordWrap(j.Description, wrapWidth)) + "\n")
	}

	return b.String()
}

func relative(t, now time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len([]rune(line))+1+len([]rune(w)) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run shows result in the full-screen browser until the user quits.
func Run(result model.Result, opts Options) error {
	p := tea.NewProgram(newBrowseModel(result, opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running browser: %w", err)
	}
	return nil
}

// ErrorView renders a one-line error the way the browser shows failures.
func ErrorView(err error) string {
	return errorStyle.Render("⚠ " + err.Error())
}

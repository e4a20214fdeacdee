package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/reaksim/internal/config"
	"github.com/san-kum/reaksim/internal/experiment"
	"github.com/san-kum/reaksim/internal/partition"
	"github.com/san-kum/reaksim/internal/state"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

type view int

const (
	viewMenu view = iota
	viewRun
)

type preset struct {
	database, name string
}

func (p preset) String() string { return p.database + "/" + p.name }

type model struct {
	view    view
	cursor  int
	presets []preset

	exp     *experiment.Experiment
	title   string
	paused  bool
	speed   float64
	history []float64
	label   string
	err     error

	width  int
	height int
}

func newModel() model {
	m := model{speed: 1, width: 80, height: 24}
	for _, db := range config.ListDatabases() {
		for _, name := range config.ListPresets(db) {
			m.presets = append(m.presets, preset{db, name})
		}
	}
	return m
}

// newRunModel starts directly in the run view with a prepared experiment.
func newRunModel(exp *experiment.Experiment, title string) (model, error) {
	m := newModel()
	if err := m.start(exp, title); err != nil {
		return m, err
	}
	return m, nil
}

func (m model) Init() tea.Cmd {
	if m.view == viewRun {
		return tick()
	}
	return nil
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.view != viewRun {
			return m, nil
		}
		if !m.paused && m.err == nil && !m.exp.Done() {
			m.advance()
		}
		return m, tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch m.view {
	case viewMenu:
		return m.menuKey(msg)
	case viewRun:
		return m.runKey(msg)
	}
	return m, nil
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.presets)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.presets) == 0 {
			return m, nil
		}
		p := m.presets[m.cursor]
		exp, err := experiment.New(config.GetPreset(p.database, p.name))
		if err != nil {
			m.err = err
			return m, nil
		}
		if err := m.start(exp, p.String()); err != nil {
			m.err = err
			return m, nil
		}
		return m, tea.Batch(tea.ClearScreen, tick())
	}
	return m, nil
}

func (m model) runKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "esc":
		if len(m.presets) == 0 {
			return m, tea.Quit
		}
		m.view = viewMenu
		m.exp = nil
		m.err = nil
		return m, tea.ClearScreen
	case " ", "p":
		m.paused = !m.paused
	case "r":
		m.err = m.exp.Reset()
		m.history = m.history[:0]
		m.record()
		return m, tea.ClearScreen
	case "+", "=":
		m.speed = math.Min(m.speed*2, 64)
	case "-", "_":
		m.speed = math.Max(m.speed/2, 1)
	case "0":
		m.speed = 1
	}
	return m, nil
}

func (m *model) start(exp *experiment.Experiment, title string) error {
	if err := exp.Begin(); err != nil {
		return err
	}
	m.exp = exp
	m.title = title
	m.view = viewRun
	m.paused = false
	m.speed = 1
	m.err = nil
	m.history = make([]float64, 0, 240)
	m.label = ""
	if outputs := exp.Config().Outputs; len(outputs) > 0 {
		m.label = outputs[0]
	}
	m.record()
	return nil
}

// advance takes speed accepted steps, stopping at the end time or on the
// first failure.
func (m *model) advance() {
	for i := 0; i < int(m.speed) && !m.exp.Done(); i++ {
		if _, err := m.exp.Advance(); err != nil {
			m.err = err
			return
		}
		m.record()
	}
}

func (m *model) record() {
	if m.label == "" {
		return
	}
	v, err := state.Extract(m.exp.State(), m.label)
	if err != nil {
		return
	}
	m.history = append(m.history, v)
	if len(m.history) > 240 {
		m.history = m.history[1:]
	}
}

func (m model) View() string {
	switch m.view {
	case viewMenu:
		return m.viewMenu()
	case viewRun:
		return m.viewRun()
	}
	return ""
}

func (m model) viewMenu() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("           " + cyan.Render("r e a k s i m") + "\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("\n")

	for i, p := range m.presets {
		desc := config.GetPreset(p.database, p.name).Name
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-24s", p)) + dim.Render(desc) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-24s", p)) + dimmer.Render(desc) + "\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n      " + red.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(dim.Render("      ↑↓ select   enter start   q quit") + "\n")
	return b.String()
}

func (m model) viewRun() string {
	var b strings.Builder
	t0, t1, _ := m.exp.Span()
	t := m.exp.Time()

	statusIcon, statusText := green.Render("●"), green.Render("running")
	switch {
	case m.err != nil:
		statusIcon, statusText = red.Render("✕"), red.Render("failed")
	case m.exp.Done():
		statusIcon, statusText = cyan.Render("■"), cyan.Render("done")
	case m.paused:
		statusIcon, statusText = yellow.Render("○"), yellow.Render("paused")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n", statusIcon, cyan.Render(m.title), statusText))

	progress := 1.0
	if t1 > t0 {
		progress = math.Min((t-t0)/(t1-t0), 1)
	}
	barWidth := 36
	filled := int(progress * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	solver := m.exp.Solver()
	info := fmt.Sprintf("t=%.4gs/%.4gs  steps=%d  h=%.3g  x%.0f", t, t1, solver.Steps(), solver.StepSize(), m.speed)
	b.WriteString(fmt.Sprintf("   %s %s\n\n", bar, dim.Render(info)))

	b.WriteString(m.amountBars(m.width - 8))

	if len(m.history) > 1 {
		spark := sparkline(m.history, 40)
		last := m.history[len(m.history)-1]
		b.WriteString(fmt.Sprintf("\n   %s %s %s\n", dim.Render(m.label), cyan.Render(spark), white.Render(fmt.Sprintf("%.4g", last))))
	}

	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dim.Render("   space pause  ±speed  r reset  q back") + "\n")
	return b.String()
}

// amountBars draws one bar per species on a log scale spanning twelve
// decades below the largest amount.
func (m model) amountBars(width int) string {
	const decades = 12
	st := m.exp.State()
	sys := st.System()
	n := st.SpeciesAmounts()
	part := m.exp.Solver().Partition()

	top := 0.0
	for _, v := range n {
		top = math.Max(top, v)
	}
	barWidth := width - 40
	if barWidth < 10 {
		barWidth = 10
	}

	var b strings.Builder
	for i, v := range n {
		fill := 0
		if top > 0 && v > 0 {
			frac := 1 + math.Log10(v/top)/decades
			fill = int(math.Max(0, math.Min(1, frac)) * float64(barWidth))
		}
		role := part.Role(i)
		style := cyan
		switch role {
		case partition.Kinetic:
			style = magenta
		case partition.Inert:
			style = dim
		}
		b.WriteString(fmt.Sprintf("   %-14s %s%s %s %s\n",
			sys.Species(i).Name,
			style.Render(strings.Repeat("█", fill)),
			dimmer.Render(strings.Repeat("─", barWidth-fill)),
			white.Render(fmt.Sprintf("%10.4g", v)),
			dimmer.Render(role.String()[:3]),
		))
	}
	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	var sb strings.Builder
	for _, v := range data {
		idx := int((v - minVal) / rang * 7)
		idx = max(0, min(idx, 7))
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

// RunInteractive opens the preset menu.
func RunInteractive() error {
	p := tea.NewProgram(newModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunLive steps exp in the live view until the user quits.
func RunLive(exp *experiment.Experiment, title string) error {
	m, err := newRunModel(exp, title)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

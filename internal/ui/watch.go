package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/store"
)

// maxRows caps how many recent jobs the watch view shows.
const maxRows = 12

// keyMap defines the key bindings for the watch view.
type keyMap struct {
	refresh key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.refresh, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.refresh, k.quit}}
}

type tickMsg time.Time

type jobsLoadedMsg struct {
	jobs []*models.Job
	err  error
}

// Model represents the watch view state.
type Model struct {
	ctx      context.Context
	jobs     *store.JobStore
	interval time.Duration
	rows     []*models.Job
	bar      progress.Model
	help     help.Model
	keys     keyMap
	width    int
	err      error
}

// NewModel creates a watch model polling the job store at the given interval.
func NewModel(ctx context.Context, jobs *store.JobStore, interval time.Duration) *Model {
	if interval <= 0 {
		interval = time.Second
	}
	return &Model{
		ctx:      ctx,
		jobs:     jobs,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadJobs, m.tick())
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) loadJobs() tea.Msg {
	jobs, err := m.jobs.List("", maxRows)
	return jobsLoadedMsg{jobs: jobs, err: err}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.refresh):
			return m, m.loadJobs
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 8
		m.help.Width = msg.Width

	case tickMsg:
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		return m, tea.Batch(m.loadJobs, m.tick())

	case jobsLoadedMsg:
		m.rows = msg.jobs
		m.err = msg.err
	}

	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("Transfer Jobs"))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("store error: %v", m.err)))
		b.WriteString("\n")
	}

	if len(m.rows) == 0 {
		b.WriteString(styles.help.Render("No jobs yet. Create one with `fitx jobs create`."))
		b.WriteString("\n")
	}

	for _, job := range m.rows {
		b.WriteString(m.renderRow(job))
		b.WriteString("\n")

		if job.Status == models.StatusRunning && job.Counts.Total > 0 {
			ratio := float64(job.Counts.Processed()) / float64(job.Counts.Total)
			b.WriteString("  " + m.bar.ViewAs(ratio))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderRow(job *models.Job) string {
	status := statusStyle(job.Status).Render(fmt.Sprintf("%-9s", job.Status))
	counts := fmt.Sprintf("%d✓ %d≈ %d✗ of %d",
		job.Counts.Succeeded, job.Counts.Skipped, job.Counts.Failed, job.Counts.Total)

	row := fmt.Sprintf("%s  %s  %s  %s", shortID(job.ID), status, job.Range, counts)
	if job.Error != "" {
		row += "  " + styles.err.Render(job.Error)
	}
	return row
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Watch runs the watch view until quit or context cancellation.
func Watch(ctx context.Context, jobs *store.JobStore, interval time.Duration) error {
	program := tea.NewProgram(NewModel(ctx, jobs, interval), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

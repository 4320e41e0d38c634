package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/leadwatch/internal/client"
	"github.com/raphaelgruber/leadwatch/internal/job"
	"github.com/raphaelgruber/leadwatch/internal/logbuf"
	"github.com/raphaelgruber/leadwatch/internal/models"
	"github.com/raphaelgruber/leadwatch/internal/monitor"
)

const (
	tickInterval = time.Second
	logTailLines = 8
	minTableRows = 5
)

// Theme holds the color scheme for the dashboard.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
	Live    lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Warn:    lipgloss.Color("#FFD75F"), // yellow
	Error:   lipgloss.Color("#FF005F"), // red
	Live:    lipgloss.Color("#AF87FF"), // purple
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warn)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) liveStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Live)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true)
}

// phaseBadge renders the job phase as a colored tag.
func (t Theme) phaseBadge(p job.Progress) string {
	label := fmt.Sprintf("[%s]", p.Phase)
	switch p.Phase {
	case job.PhaseRunning:
		return t.statusStyle().Render(label)
	case job.PhaseStopping:
		return t.warnStyle().Render(label)
	case job.PhaseDone:
		if p.Stopped() {
			return t.warnStyle().Render("[stopped]")
		}
		return t.completedStyle().Render(label)
	case job.PhaseError:
		return t.errorStyle().Render(label)
	default:
		return t.hintStyle().Render(label)
	}
}

func (t Theme) levelStyle(l logbuf.Level) lipgloss.Style {
	switch l {
	case logbuf.LevelWarn:
		return t.warnStyle()
	case logbuf.LevelError:
		return t.errorStyle()
	case logbuf.LevelSuccess:
		return lipgloss.NewStyle().Foreground(t.Success)
	default:
		return lipgloss.NewStyle()
	}
}

// tickMsg re-renders the clock-driven figures (elapsed, rate, ETA).
type tickMsg time.Time

// updateMsg reports that the monitor's snapshot changed.
type updateMsg struct{}

// authRejectedMsg ends the dashboard after the backend refused the token.
type authRejectedMsg struct{ err error }

// startedMsg carries the outcome of the start request.
type startedMsg struct {
	sessionID string
	err       error
}

// stopSentMsg carries the outcome of the stop request.
type stopSentMsg struct{ err error }

// queryMsg carries the outcome of a page change or refresh.
type queryMsg struct{ err error }

// dashboardOptions selects what the dashboard follows.
type dashboardOptions struct {
	workspace models.Workspace
	listID    string
	target    int
	// start, when set, is requested as soon as the stream is connected.
	start *models.ScrapeConfig
}

// dashboardModel is the bubbletea model of the live job dashboard. All job
// state lives in the monitor; the model only keeps the last snapshot.
type dashboardModel struct {
	ctx      context.Context
	mon      *monitor.JobMonitor
	api      *client.Client
	opts     dashboardOptions
	snap     monitor.Snapshot
	progress progress.Model
	theme    Theme
	height   int

	startRequested bool
	notice         string
	quitting       bool
	err            error
}

func newDashboardModel(ctx context.Context, mon *monitor.JobMonitor, c *client.Client, opts dashboardOptions) dashboardModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	m := dashboardModel{
		ctx:      ctx,
		mon:      mon,
		api:      c,
		opts:     opts,
		progress: prog,
		theme:    defaultTheme,
	}
	if mon != nil {
		m.snap = mon.Snapshot()
	}
	return m
}

// Init starts the clock and the snapshot subscription.
func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.waitForUpdate(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "s":
			return m, m.stopJob()
		case "n", "right":
			return m, m.changePage(1)
		case "p", "left":
			return m, m.changePage(-1)
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.snap = m.mon.Snapshot()
		return m, tickCmd()

	case updateMsg:
		m.snap = m.mon.Snapshot()
		if m.opts.start != nil && !m.startRequested && m.snap.Connected {
			m.startRequested = true
			m.notice = "requesting job..."
			return m, tea.Batch(m.waitForUpdate(), m.startJob())
		}
		return m, m.waitForUpdate()

	case startedMsg:
		if msg.err != nil {
			m.notice = m.theme.errorStyle().Render("start failed: " + msg.err.Error())
		} else {
			m.notice = fmt.Sprintf("job requested (session %s)", msg.sessionID)
		}
		return m, nil

	case stopSentMsg:
		switch {
		case errors.Is(msg.err, monitor.ErrNotRunning):
			m.notice = "no running job to stop"
		case msg.err != nil:
			m.notice = m.theme.warnStyle().Render("stop request failed; waiting for the job to report")
		default:
			m.notice = "stop requested"
		}
		m.snap = m.mon.Snapshot()
		return m, nil

	case queryMsg:
		if msg.err != nil {
			m.notice = m.theme.warnStyle().Render("could not load leads: " + msg.err.Error())
		}
		m.snap = m.mon.Snapshot()
		return m, nil

	case authRejectedMsg:
		m.err = fmt.Errorf("%w: run 'leadwatch login'", msg.err)
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the dashboard.
func (m dashboardModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string from the last snapshot.
func (m dashboardModel) renderContent() string {
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}
	if m.quitting {
		return m.finalView()
	}

	var b strings.Builder
	m.renderHeader(&b)
	m.renderProgress(&b)
	m.renderLogs(&b)
	m.renderRecords(&b)

	if m.notice != "" {
		b.WriteString("\n" + m.notice + "\n")
	}
	b.WriteString(m.theme.hintStyle().Render("q quit (job keeps running) • s stop • n/p page • r refresh"))
	b.WriteString("\n")
	return b.String()
}

func (m dashboardModel) renderHeader(b *strings.Builder) {
	p := m.snap.Progress

	link := m.theme.completedStyle().Render("● live")
	if !m.snap.Connected {
		link = m.theme.errorStyle().Render("○ offline")
		if m.snap.LinkErr != nil {
			link += m.theme.hintStyle().Render(" (reconnecting)")
		}
	}

	title := m.theme.headerStyle().Render("◉ " + m.opts.workspace.Name)
	fmt.Fprintf(b, "%s %s %s", title, m.theme.phaseBadge(p), link)

	if s := p.LastSearch; s != nil {
		if s.Blocked {
			b.WriteString(" " + m.theme.errorStyle().Render("⚠ blocked"))
		} else {
			b.WriteString(" " + m.theme.hintStyle().Render(fmt.Sprintf("%d urls", s.ResultsFound)))
		}
		if s.Source != "" {
			b.WriteString(m.theme.hintStyle().Render(" via " + s.Source))
		}
	}
	b.WriteString("\n")

	if p.Phase == job.PhaseError && p.Error != "" {
		b.WriteString(m.theme.errorStyle().Render("✗ "+p.Error) + "\n")
	}
}

func (m dashboardModel) renderProgress(b *strings.Builder) {
	p, d := m.snap.Progress, m.snap.Derived

	bar := m.progress.ViewAs(float64(d.ProgressPct) / 100)
	fmt.Fprintf(b, "%s %3d%%  %d/%d leads\n", bar, d.ProgressPct, p.LeadsFound, m.snap.Target)

	where := ""
	if p.CurrentSector != "" {
		where = "  " + p.CurrentSector
		if p.CurrentCountry != "" {
			where += " • " + p.CurrentCountry
		}
	}
	fmt.Fprintf(b, "Sites %s  Queries %s%s\n",
		formatCount(p.ProcessedDomains, p.TotalDomains),
		formatCount(p.ProcessedQueries, p.TotalQueries),
		where)

	rate := "—"
	if d.RateAvailable {
		rate = fmt.Sprintf("%.1f", d.RatePerMinute)
	}
	errs := fmt.Sprintf("%d", p.ErrorsCount)
	if p.ErrorsCount > 10 {
		errs = m.theme.errorStyle().Render(errs)
	}
	fmt.Fprintf(b, "Leads/min %s  ETA %s  Elapsed %s  Errors %s  Dupes %d\n",
		rate, formatETA(d.ETASeconds, d.ETAKnown), formatDuration(p.Elapsed), errs, p.Duplicates)

	if p.Phase.Active() && p.CurrentDomain != "" {
		b.WriteString(m.theme.hintStyle().Render("→ "+p.CurrentDomain) + "\n")
	}
}

func (m dashboardModel) renderLogs(b *strings.Builder) {
	logs := m.snap.Logs
	if len(logs) == 0 {
		return
	}
	if len(logs) > logTailLines {
		logs = logs[len(logs)-logTailLines:]
	}
	b.WriteString("\n")
	for _, e := range logs {
		line := fmt.Sprintf("%s %s", e.Time.Format("15:04:05"), e.Message)
		b.WriteString(m.theme.levelStyle(e.Level).Render(line) + "\n")
	}
}

func (m dashboardModel) renderRecords(b *strings.Builder) {
	v := m.snap.Records
	b.WriteString("\n")

	if len(v.Records) == 0 {
		switch {
		case v.Loading:
			b.WriteString(m.theme.hintStyle().Render("Loading leads...") + "\n")
		default:
			b.WriteString(m.theme.hintStyle().Render("No leads yet.") + "\n")
		}
	} else {
		fmt.Fprintf(b, "  %-28s %-26s %-30s %5s\n", "DOMAIN", "COMPANY", "EMAIL", "SCORE")
		rows := v.Records
		if limit := m.tableRows(); len(rows) > limit {
			rows = rows[:limit]
		}
		for i, l := range rows {
			line := fmt.Sprintf("%-28s %-26s %-30s %5d",
				truncate(l.Key(), 28), truncate(l.DisplayName(), 26), truncate(l.Email, 30), l.Score)
			if i < v.LiveOnly {
				b.WriteString(m.theme.liveStyle().Render("● "+line) + "\n")
			} else {
				b.WriteString("  " + line + "\n")
			}
		}
	}

	footer := fmt.Sprintf("Page %d/%d • %d leads", v.Query.Page, max(1, v.Pages), v.Total)
	if v.LiveOnly > 0 {
		footer += m.theme.liveStyle().Render(fmt.Sprintf(" • +%d live", v.LiveOnly))
	}
	if v.Err != nil {
		footer += m.theme.warnStyle().Render(" • stale")
	}
	b.WriteString(footer + "\n")
}

// tableRows fits the lead table to the terminal height.
func (m dashboardModel) tableRows() int {
	if m.height == 0 {
		return models.DefaultPageSize
	}
	used := 12 + min(len(m.snap.Logs), logTailLines)
	return max(minTableRows, m.height-used)
}

// finalView renders the goodbye message.
func (m dashboardModel) finalView() string {
	p := m.snap.Progress
	switch {
	case p.Phase.Active():
		return m.theme.hintStyle().Render("\nThe job continues in the background.\nUse 'leadwatch watch' to follow it again.\n")
	case p.Phase.Terminal():
		state := string(p.Phase)
		if p.Stopped() {
			state = "stopped"
		}
		return m.theme.hintStyle().Render(fmt.Sprintf("\nLast job %s: %d leads in %s.\n", state, p.LeadsFound, formatDuration(p.Elapsed)))
	}
	return ""
}

// waitForUpdate blocks until the monitor reports a change.
func (m dashboardModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.mon.Updates():
			return updateMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m dashboardModel) startJob() tea.Cmd {
	return func() tea.Msg {
		id, err := m.mon.Start(m.ctx, m.api, m.opts.listID, *m.opts.start)
		return startedMsg{sessionID: id, err: err}
	}
}

func (m dashboardModel) stopJob() tea.Cmd {
	return func() tea.Msg {
		return stopSentMsg{err: m.mon.Stop(m.ctx, m.api)}
	}
}

func (m dashboardModel) changePage(delta int) tea.Cmd {
	q := m.snap.Records.Query
	next := q.Page + delta
	if next < 1 || (m.snap.Records.Pages > 0 && next > m.snap.Records.Pages) {
		return nil
	}
	q.Page = next
	return func() tea.Msg {
		return queryMsg{err: m.mon.SetQuery(m.ctx, q)}
	}
}

func (m dashboardModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return queryMsg{err: m.mon.Refresh(m.ctx)}
	}
}

// tickCmd returns a command that sends a tick after the tick interval.
func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

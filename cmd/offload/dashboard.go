package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"offload/pkg/protocol"
)

// recordSource is what the dashboard reads from.
type recordSource interface {
	List() ([]protocol.StatusRecord, error)
	Active() ([]protocol.StatusRecord, error)
}

// tickMsg triggers a periodic refresh in case a change notification was
// dropped.
type tickMsg time.Time

// recordsMsg carries a fresh snapshot of status records.
type recordsMsg struct {
	recs []protocol.StatusRecord
	err  error
}

// changeMsg is sent when the status directory changed. ok is false once
// the watcher has stopped.
type changeMsg struct{ ok bool }

func tickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchRecordsCmd(src recordSource, all bool) tea.Cmd {
	return func() tea.Msg {
		var (
			recs []protocol.StatusRecord
			err  error
		)
		if all {
			recs, err = src.List()
		} else {
			recs, err = src.Active()
		}
		return recordsMsg{recs: recs, err: err}
	}
}

func waitForChangeCmd(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		_, ok := <-changes
		return changeMsg{ok: ok}
	}
}

//nolint:gochecknoglobals // read-only
var dashColumns = []table.Column{
	{Title: "ID", Width: 8},
	{Title: "Status", Width: 10},
	{Title: "Task", Width: 24},
	{Title: "Model", Width: 20},
	{Title: "Message", Width: 44},
	{Title: "Updated", Width: 8},
}

// dashModel is the Bubble Tea model for offload dash.
type dashModel struct {
	src     recordSource
	changes <-chan struct{}
	showAll bool
	detail  bool

	recs    []protocol.StatusRecord
	err     error
	table   table.Model
	spinner spinner.Model
	styles  Styles
	width   int
	height  int
}

func newDashModel(src recordSource, changes <-chan struct{}, showAll bool) dashModel {
	t := table.New(
		table.WithColumns(dashColumns),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	t.SetStyles(ts)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	return dashModel{
		src:     src,
		changes: changes,
		showAll: showAll,
		table:   t,
		spinner: sp,
		styles:  NewStyles(DefaultTheme()),
	}
}

// Init implements tea.Model.
func (m dashModel) Init() tea.Cmd {
	return tea.Batch(
		fetchRecordsCmd(m.src, m.showAll),
		waitForChangeCmd(m.changes),
		tickCmd(),
		m.spinner.Tick,
	)
}

// Update implements tea.Model.
func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "a":
			m.showAll = !m.showAll
			return m, fetchRecordsCmd(m.src, m.showAll)
		case "enter":
			m.detail = !m.detail
			return m, nil
		case "esc":
			m.detail = false
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if h := msg.Height - 8; h > 3 {
			m.table.SetHeight(h)
		}

	case recordsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.recs = msg.recs
			m.table.SetRows(recordRows(msg.recs))
		}
		return m, nil

	case changeMsg:
		if !msg.ok {
			m.changes = nil
			return m, nil
		}
		return m, tea.Batch(fetchRecordsCmd(m.src, m.showAll), waitForChangeCmd(m.changes))

	case tickMsg:
		return m, tea.Batch(fetchRecordsCmd(m.src, m.showAll), tickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m dashModel) View() string {
	var b strings.Builder

	scope := "active"
	if m.showAll {
		scope = "all"
	}
	header := m.styles.Title.Render("offload") + " " + m.styles.Muted.Render(fmt.Sprintf("%d package(s), %s", len(m.recs), scope))
	if m.processing() {
		header += "  " + m.spinner.View() + " processing"
	}
	b.WriteString(header + "\n\n")

	if m.err != nil {
		b.WriteString(m.styles.Fail.Render("error: "+m.err.Error()) + "\n\n")
	}

	if m.detail {
		if rec, ok := m.selected(); ok {
			renderRecord(&b, m.styles, rec)
		} else {
			b.WriteString(m.styles.Muted.Render("nothing selected") + "\n")
		}
	} else {
		b.WriteString(m.table.View() + "\n")
	}

	b.WriteString("\n" + m.styles.Muted.Render("↑/↓ move • enter details • a toggle all/active • q quit"))
	return b.String()
}

func (m dashModel) processing() bool {
	for _, r := range m.recs {
		if r.Status == protocol.StatusProcessing {
			return true
		}
	}
	return false
}

func (m dashModel) selected() (protocol.StatusRecord, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.recs) {
		return protocol.StatusRecord{}, false
	}
	return m.recs[i], true
}

func recordRows(recs []protocol.StatusRecord) []table.Row {
	rows := make([]table.Row, 0, len(recs))
	for _, r := range recs {
		id := shortID(r.PackageID)
		updated := ""
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.Local().Format("15:04:05")
		}
		rows = append(rows, table.Row{id, string(r.Status), string(r.TaskType), r.Model, r.Message, updated})
	}
	return rows
}

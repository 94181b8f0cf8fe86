// Package viewer renders an observed sequence as a sectioned list in the
// terminal.
//
// The model runs inside the bubbletea event loop, which is the only
// goroutine touching the sequence while the program runs. Work that
// originates elsewhere, such as socket events, is delivered as an Exec
// message.
package viewer

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/observed"
	"github.com/specialistvlad/observedseq/internal/txn"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Store receives the writes the viewer makes.
type Store interface {
	Insert(ctx context.Context, values map[string]any) error
	Delete(ctx context.Context, key string) error
}

// Options configures a Model.
type Options struct {
	Title string
	// Interval between inserted rows. Zero disables the ticker.
	Interval time.Duration
	// NewRow builds the values inserted on every tick.
	NewRow func(now time.Time) map[string]any
	// Key is the row attribute holding the store key. Defaults to "id".
	Key string
}

type tickMsg time.Time

type execMsg func()

// Exec wraps fn in a message that runs it on the event loop.
func Exec(fn func()) tea.Msg {
	return execMsg(fn)
}

// Model is the bubbletea model of the list.
type Model struct {
	ctx     context.Context
	rows    *observed.Sequence[cty.Value]
	headers lazy.Seq[cty.Value]
	store   Store
	opts    Options
	sub     *observed.Subscription

	cursor    index.Path
	height    int
	batches   int
	status    string
	statusErr bool
}

// New creates a model over rows and subscribes to its changes. headers and
// store may be nil.
func New(ctx context.Context, rows *observed.Sequence[cty.Value], headers lazy.Seq[cty.Value], store Store, opts Options) *Model {
	if opts.Key == "" {
		opts.Key = "id"
	}
	m := &Model{ctx: ctx, rows: rows, headers: headers, store: store, opts: opts}
	m.sub = rows.Subscribe(txn.SinkFuncs{
		ApplyFunc:  m.follow,
		ReloadFunc: func() { m.cursor = m.clamp(m.cursor) },
	})
	m.cursor = m.clamp(m.cursor)
	return m
}

// Close stops following the sequence.
func (m *Model) Close() {
	m.sub.Unsubscribe()
}

// follow keeps the cursor on the same row across a batch.
func (m *Model) follow(tx txn.Transaction) error {
	m.batches++
	if p, ok := tx.Remap().Path(m.cursor); ok {
		m.cursor = p
	}
	m.cursor = m.clamp(m.cursor)
	return nil
}

// clamp moves p onto the nearest existing row. It returns the zero path
// when the sequence is empty.
func (m *Model) clamp(p index.Path) index.Path {
	n := m.rows.SectionCount()
	if n == 0 {
		return index.Path{}
	}
	section := min(max(p.Section, 0), n-1)
	for s := section; s >= 0; s-- {
		if count := m.rows.RowCount(s); count > 0 {
			if s != section {
				return index.P(s, count-1)
			}
			return index.P(s, min(max(p.Row, 0), count-1))
		}
	}
	for s := section + 1; s < n; s++ {
		if m.rows.RowCount(s) > 0 {
			return index.P(s, 0)
		}
	}
	return index.Path{}
}

func (m *Model) empty() bool {
	for s := range m.rows.SectionCount() {
		if m.rows.RowCount(s) > 0 {
			return false
		}
	}
	return true
}

// Init starts the ticker.
func (m *Model) Init() tea.Cmd {
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	if m.opts.Interval <= 0 || m.store == nil || m.opts.NewRow == nil {
		return nil
	}
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles one message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case execMsg:
		msg()
		return m, nil
	case tickMsg:
		if err := m.store.Insert(m.ctx, m.opts.NewRow(time.Time(msg))); err != nil {
			m.setError(fmt.Sprintf("Insert failed: %v", err))
		}
		return m, m.tick()
	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.cursor = m.step(-1)
	case "down", "j":
		m.cursor = m.step(1)
	case "enter", "d":
		m.deleteSelected()
	}
	return m, nil
}

// step returns the row delta rows away from the cursor, crossing sections.
func (m *Model) step(delta int) index.Path {
	if m.empty() {
		return m.cursor
	}
	p := m.cursor
	p.Row += delta
	for p.Row < 0 {
		if p.Section == 0 {
			return m.cursor
		}
		p.Section--
		p.Row += m.rows.RowCount(p.Section)
	}
	for p.Row >= m.rows.RowCount(p.Section) {
		if p.Section == m.rows.SectionCount()-1 {
			return m.cursor
		}
		p.Row -= m.rows.RowCount(p.Section)
		p.Section++
	}
	return p
}

func (m *Model) deleteSelected() {
	if m.store == nil || m.empty() {
		return
	}
	v, ok := m.rows.Get(m.cursor)
	if !ok {
		m.setError("Selected row is not available.")
		return
	}
	key, ok := keyOf(v, m.opts.Key)
	if !ok {
		m.setError(fmt.Sprintf("Selected row has no %q attribute.", m.opts.Key))
		return
	}
	if err := m.store.Delete(m.ctx, key); err != nil {
		m.setError(fmt.Sprintf("Delete failed: %v", err))
		return
	}
	m.status = "Deleted " + key + "."
	m.statusErr = false
}

func (m *Model) setError(msg string) {
	m.status = msg
	m.statusErr = true
}

// View renders the list around the cursor.
func (m *Model) View() string {
	var lines []string
	selected := 0
	rows := 0
	for s := range m.rows.SectionCount() {
		lines = append(lines, headerStyle.Render(m.header(s)))
		for r := range m.rows.RowCount(s) {
			rows++
			p := index.P(s, r)
			text := "-"
			if v, ok := m.rows.Get(p); ok {
				text = render(v)
			}
			if p == m.cursor {
				selected = len(lines)
				lines = append(lines, selectedStyle.Render("> "+text))
				continue
			}
			lines = append(lines, "  "+text)
		}
	}
	if rows == 0 {
		lines = append(lines, "  (empty)")
	}

	// title and status take two lines
	if visible := m.height - 2; visible > 0 && len(lines) > visible {
		start := min(max(selected-visible/2, 0), len(lines)-visible)
		lines = lines[start : start+visible]
	}

	status := fmt.Sprintf("%d rows in %d sections, %d batches", rows, m.rows.SectionCount(), m.batches)
	if m.status != "" {
		msg := m.status
		if m.statusErr {
			msg = errorStyle.Render(msg)
		}
		status += "  " + msg
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.opts.Title))
	b.WriteString("\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(status))
	return b.String()
}

func (m *Model) header(section int) string {
	if m.headers != nil && section < m.headers.Count() {
		if v, ok := m.headers.Get(section); ok {
			return render(v)
		}
	}
	return fmt.Sprintf("Section %d", section)
}

// render shows a value's title attribute when it has one.
func render(v cty.Value) string {
	if v.IsNull() || !v.IsWhollyKnown() {
		return "-"
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString()
	case ty.IsObjectType() && ty.HasAttribute("title"):
		if t := v.GetAttr("title"); t.Type() == cty.String && !t.IsNull() {
			return t.AsString()
		}
	}
	raw, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
	if err != nil {
		return v.GoString()
	}
	return string(raw)
}

func keyOf(v cty.Value, attr string) (string, bool) {
	if v.IsNull() || !v.Type().IsObjectType() || !v.Type().HasAttribute(attr) {
		return "", false
	}
	k := v.GetAttr(attr)
	if k.IsNull() || !k.IsKnown() {
		return "", false
	}
	switch k.Type() {
	case cty.String:
		return k.AsString(), true
	case cty.Number:
		return k.AsBigFloat().Text('f', -1), true
	}
	return "", false
}

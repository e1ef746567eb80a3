package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/pkg/browser"

	"gposes/internal/controller"
	"gposes/internal/query"
	"gposes/internal/view"
)

// scrollSettleDelay gives a re-rendered folder time to fill before the
// saved cursor is restored
const scrollSettleDelay = 150 * time.Millisecond

const logPaneHeight = 6

// regionMsg is sent when the content region changed
type regionMsg struct{}

// restoreMsg restores the cursor saved for a location
type restoreMsg struct {
	gen    uint64
	cursor int
}

type logEntry struct {
	time  time.Time
	text  string
	style string
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	pathStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	urlStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")).Bold(true)
	folderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Bold(true)
	pictureStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB"))
	actionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	borderStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")).
			Padding(0, 1)

	logTimeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4B5563"))
	logInfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB"))
	logSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	logErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	logWarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
)

// TUI model
type model struct {
	app *app
	ctx context.Context

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	logs     []logEntry
	maxLogs  int
	logChan  chan logMsg
	redraw   chan struct{}

	snap   view.Snapshot
	gen    uint64
	chrome view.Chrome

	cursor      int
	stripCursor int
	// cursors remembers the cursor per location for scroll restore
	cursors     map[string]int
	restoreNext bool

	commanding bool
	quitting   bool
	width      int
	height     int
}

func initialModel(ctx context.Context, a *app, logChan chan logMsg, redraw chan struct{}) model {
	ti := textinput.New()
	ti.Placeholder = "/help for commands"
	ti.CharLimit = 256
	ti.Width = 60
	ti.Prompt = ": "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5E7EB"))

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	vp := viewport.New(80, logPaneHeight)
	vp.SetContent("")

	return model{
		app:      a,
		ctx:      ctx,
		input:    ti,
		spinner:  s,
		viewport: vp,
		maxLogs:  100,
		logChan:  logChan,
		redraw:   redraw,
		cursors:  make(map[string]int),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.listenForLogs(),
		// the first regionMsg starts listenForRedraw
		func() tea.Msg { return regionMsg{} },
	)
}

func (m model) listenForLogs() tea.Cmd {
	return func() tea.Msg {
		return <-m.logChan
	}
}

func (m model) listenForRedraw() tea.Cmd {
	return func() tea.Msg {
		<-m.redraw
		return regionMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		if m.commanding {
			return m.updateCommandLine(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = logPaneHeight

	case regionMsg:
		cmds = append(cmds, m.applySnapshot(), m.listenForRedraw())

	case restoreMsg:
		if msg.gen == m.gen {
			m.cursor = m.clampCursor(msg.cursor)
		}

	case logMsg:
		m.addLog(msg.text, msg.style)
		m.updateViewportContent()
		cmds = append(cmds, m.listenForLogs())

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// applySnapshot takes the latest region state. A new render pass resets
// the cursor and, after a back navigation, schedules its restore.
func (m *model) applySnapshot() tea.Cmd {
	m.snap = m.app.region.Snapshot()
	m.chrome = m.snap.Chrome
	if m.snap.Generation == m.gen {
		m.cursor = m.clampCursor(m.cursor)
		return nil
	}
	m.gen = m.snap.Generation
	m.cursor = 0
	m.stripCursor = 0
	if !m.restoreNext {
		return nil
	}
	m.restoreNext = false
	saved, ok := m.cursors[m.app.session.Location().String()]
	if !ok || saved == 0 {
		return nil
	}
	gen := m.gen
	return tea.Tick(scrollSettleDelay, func(time.Time) tea.Msg {
		return restoreMsg{gen: gen, cursor: saved}
	})
}

func (m model) clampCursor(c int) int {
	if n := len(m.snap.Nodes); c >= n {
		c = n - 1
	}
	if c < 0 {
		return 0
	}
	return c
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case ":", "/":
		m.commanding = true
		m.input.Focus()
		if msg.String() == "/" {
			m.input.SetValue("/")
			m.input.CursorEnd()
		}
		return m, textinput.Blink
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "left", "h":
		m.moveStrip(-1)
	case "right", "l":
		m.moveStrip(1)
	case "enter":
		return m.activate()
	case "backspace":
		m.rememberCursor()
		m.restoreNext = true
		return m, m.run("up", m.app.ctrl.Up)
	case "H":
		m.rememberCursor()
		return m, m.run("home", m.app.ctrl.Home)
	case "[":
		m.rememberCursor()
		m.restoreNext = true
		return m, m.run("back", func() error { m.app.session.Back(); return nil })
	case "]":
		m.rememberCursor()
		m.restoreNext = true
		return m, m.run("forward", func() error { m.app.session.Forward(); return nil })
	case "s":
		return m, m.setFilter(false)
	case "n":
		return m, m.setFilter(true)
	case "d":
		return m, m.download()
	}
	return m, nil
}

func (m model) updateCommandLine(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.commanding = false
		m.input.SetValue("")
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		input := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		m.input.Blur()
		m.commanding = false
		if input == "" {
			return m, nil
		}
		return m.handleCommand(input)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// selectable reports whether the cursor may rest on node i
func (m model) selectable(i int) bool {
	return m.snap.Nodes[i].Kind != view.KindSeparator
}

func (m *model) moveCursor(delta int) {
	n := len(m.snap.Nodes)
	for c := m.cursor + delta; c >= 0 && c < n; c += delta {
		if m.selectable(c) {
			m.cursor = c
			m.stripCursor = 0
			return
		}
	}
}

func (m *model) moveStrip(delta int) {
	node, ok := m.current()
	if !ok || node.Kind != view.KindRecent {
		return
	}
	c := m.stripCursor + delta
	if c >= 0 && c < len(node.Items) {
		m.stripCursor = c
	}
}

func (m model) current() (view.Node, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Nodes) {
		return view.Node{}, false
	}
	return m.snap.Nodes[m.cursor], true
}

func (m model) rememberCursor() {
	m.cursors[m.app.session.Location().String()] = m.cursor
}

func (m model) activate() (tea.Model, tea.Cmd) {
	node, ok := m.current()
	if !ok {
		return m, nil
	}
	switch node.Kind {
	case view.KindRecent:
		if m.stripCursor >= len(node.Items) {
			return m, nil
		}
		item := node.Items[m.stripCursor]
		m.rememberCursor()
		return m, m.run("open", func() error { return m.app.ctrl.Navigate(item.Target) })
	case view.KindSource, view.KindFolder:
		m.rememberCursor()
		return m, m.run("open", func() error { return m.app.ctrl.Activate(node) })
	case view.KindPicture:
		link := node.Link
		return m, func() tea.Msg {
			if err := browser.OpenURL(link); err != nil {
				return logMsg{text: fmt.Sprintf("Failed to open picture: %v", err), style: "error"}
			}
			return logMsg{text: "Opened " + link, style: "success"}
		}
	case view.KindDownload:
		return m, m.download()
	}
	return m, nil
}

// run performs a controller action off the UI goroutine
func (m model) run(label string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return logMsg{text: fmt.Sprintf("%s: %v", label, err), style: "error"}
		}
		return nil
	}
}

func (m model) setFilter(nsfw bool) tea.Cmd {
	if !m.chrome.ShowFilter {
		return nil
	}
	return m.run("filter", func() error { return m.app.ctrl.SetNsfw(nsfw) })
}

func (m model) download() tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		err := m.app.ctrl.Download(ctx)
		switch {
		case err == nil:
			return logMsg{text: "Download started", style: "success"}
		case errors.Is(err, controller.ErrNotInFolder):
			return logMsg{text: "Open a folder to download it", style: "warn"}
		default:
			// already logged by the controller
			return nil
		}
	}
}

func (m model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	arg := strings.TrimSpace(strings.TrimPrefix(input, parts[0]))

	switch cmd {
	case "help", "h", "?":
		return m, m.cmdHelp()
	case "quit", "q", "exit":
		m.quitting = true
		return m, tea.Quit
	case "home":
		m.rememberCursor()
		return m, m.run("home", m.app.ctrl.Home)
	case "up", "u":
		m.rememberCursor()
		m.restoreNext = true
		return m, m.run("up", m.app.ctrl.Up)
	case "go", "g":
		m.rememberCursor()
		return m, m.run("go", func() error { return m.app.ctrl.Navigate(query.SplitPath(arg)) })
	case "sfw":
		return m, m.setFilter(false)
	case "nsfw":
		return m, m.setFilter(true)
	case "download", "d":
		return m, m.download()
	case "bookmark", "b":
		return m, m.cmdBookmark(arg)
	case "bookmarks", "bs":
		return m, m.cmdBookmarks()
	case "jump", "j":
		if arg == "" {
			return m, logCmd("Usage: /jump <name>", "warn")
		}
		m.rememberCursor()
		return m, m.run("jump", func() error { return m.app.jump(m.ctx, arg) })
	case "copy", "c":
		return m, m.cmdCopy()
	case "url":
		return m, m.cmdURL()
	case "clear":
		m.logs = nil
		m.viewport.SetContent("")
		return m, nil
	}
	return m, logCmd(fmt.Sprintf("Unknown command: /%s (try /help)", cmd), "error")
}

func logCmd(text, style string) tea.Cmd {
	return func() tea.Msg {
		return logMsg{text: text, style: style}
	}
}

func (m model) cmdHelp() tea.Cmd {
	help := `Keys:
  ↑/↓ j/k         Move          ←/→ h/l   Move in recent strip
  enter           Open          backspace Up one folder
  H               Home          [ / ]     Back / forward
  s / n           SFW / NSFW    d         Download folder
  :               Command       q         Quit
Commands:
  /home           Go to the welcome page
  /up             Up one folder
  /go <a/b>       Open a folder path
  /sfw, /nsfw     Set the filter (when shown)
  /download       Download the current folder
  /bookmark [n]   Bookmark the current folder
  /bookmarks      List bookmarks
  /jump <name>    Open a bookmark
  /copy           Copy the share link
  /url            Show the share link
  /clear          Clear event log
  /quit           Exit (Ctrl+C also works)`
	return logCmd(help, "info")
}

func (m model) cmdBookmark(name string) tea.Cmd {
	return func() tea.Msg {
		b, err := m.app.addBookmark(m.ctx, name)
		if err != nil {
			return logMsg{text: fmt.Sprintf("Bookmark failed: %v", err), style: "error"}
		}
		return logMsg{text: fmt.Sprintf("Bookmarked %q", b.Name), style: "success"}
	}
}

func (m model) cmdBookmarks() tea.Cmd {
	return func() tea.Msg {
		if m.app.store == nil {
			return logMsg{text: "Bookmarks unavailable", style: "warn"}
		}
		list, err := m.app.store.List(m.ctx)
		if err != nil {
			return logMsg{text: fmt.Sprintf("Bookmarks: %v", err), style: "error"}
		}
		if len(list) == 0 {
			return logMsg{text: "No bookmarks yet (/bookmark [name])", style: "info"}
		}
		lines := []string{"Bookmarks:"}
		for _, b := range list {
			folder := b.Folder
			if folder == "" {
				folder = query.WelcomeTitle
			}
			lines = append(lines, fmt.Sprintf("  %-16s %s  %s", b.Name, folder, humanize.Time(b.Created)))
		}
		return logMsg{text: strings.Join(lines, "\n"), style: "info"}
	}
}

func (m model) cmdCopy() tea.Cmd {
	link := m.app.shareLink()
	return func() tea.Msg {
		if link == "" {
			return logMsg{text: "Share links need the control server (serve: true)", style: "warn"}
		}
		if err := clipboard.WriteAll(link); err != nil {
			return logMsg{text: fmt.Sprintf("Clipboard: %v", err), style: "error"}
		}
		return logMsg{text: "Copied " + link, style: "success"}
	}
}

func (m model) cmdURL() tea.Cmd {
	link := m.app.shareLink()
	if link == "" {
		link = m.app.session.Location().String()
	}
	return logCmd(link, "info")
}

func (m *model) updateViewportContent() {
	var lines []string
	for _, entry := range m.logs {
		timestamp := logTimeStyle.Render(entry.time.Format("15:04:05"))
		var textStyled string
		switch entry.style {
		case "success":
			textStyled = logSuccessStyle.Render(entry.text)
		case "error":
			textStyled = logErrorStyle.Render(entry.text)
		case "warn":
			textStyled = logWarnStyle.Render(entry.text)
		default:
			textStyled = logInfoStyle.Render(entry.text)
		}
		lines = append(lines, fmt.Sprintf("%s  %s", timestamp, textStyled))
	}

	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *model) addLog(text, style string) {
	m.logs = append(m.logs, logEntry{time: time.Now(), text: text, style: style})
	if len(m.logs) > m.maxLogs {
		m.logs = m.logs[1:]
	}
}

// filterRadio renders the SFW/NSFW radio
func filterRadio(nsfw bool) string {
	safeLabel, unsafeLabel := "(•) SFW", "( ) NSFW"
	if nsfw {
		safeLabel, unsafeLabel = "( ) SFW", "(•) NSFW"
	}
	return safeLabel + "  " + unsafeLabel
}

// nodeLine renders one node of the content region
func (m model) nodeLine(i int, width int) string {
	n := m.snap.Nodes[i]
	selected := i == m.cursor
	marker := "  "
	if selected {
		marker = selectedStyle.Render("❯ ")
	}
	fit := func(s string) string {
		return runewidth.Truncate(s, width-4, "…")
	}

	switch n.Kind {
	case view.KindRecent:
		var cards []string
		for j, it := range n.Items {
			label := runewidth.Truncate(it.Label, 18, "…")
			if selected && j == m.stripCursor {
				label = selectedStyle.Render("[" + label + "]")
			} else {
				label = dimStyle.Render(label)
			}
			cards = append(cards, label)
		}
		return marker + actionStyle.Render("Recent ") + strings.Join(cards, dimStyle.Render(" · "))
	case view.KindSeparator:
		return dimStyle.Render(strings.Repeat("─", max(width-2, 1)))
	case view.KindPicture:
		label := n.Label
		if label == "" {
			label = n.Link
		}
		return marker + pictureStyle.Render("◦ "+fit(label))
	case view.KindDownload:
		return marker + actionStyle.Render("⤓ "+fit(n.Label))
	default:
		icon := "▣ "
		if n.GenericIcon {
			icon = "▢ "
		}
		if selected {
			return marker + selectedStyle.Render(icon+fit(n.Label))
		}
		return marker + folderStyle.Render(icon+fit(n.Label))
	}
}

// contentLines renders the region inside height lines, keeping the cursor visible
func (m model) contentLines(width, height int) []string {
	if len(m.snap.Nodes) == 0 {
		if m.snap.Busy {
			return []string{dimStyle.Render("  Loading…")}
		}
		return []string{dimStyle.Render("  Nothing here")}
	}
	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}
	end := min(start+height, len(m.snap.Nodes))
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, m.nodeLine(i, width))
	}
	return lines
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	totalHeight := m.height
	if totalHeight == 0 {
		totalHeight = 24
	}

	header := titleStyle.Render(m.app.documentTitle())
	if m.snap.Busy {
		header += " " + m.spinner.View()
	}
	crumbs := pathStyle.Render(m.app.breadcrumb())
	if m.chrome.ShowFilter {
		crumbs += dimStyle.Render("  •  ") + filterRadio(m.chrome.Nsfw)
	}

	// header 2, blank 1, logs box, input 1, status 1
	contentHeight := totalHeight - 2 - 1 - (logPaneHeight + 2) - 1 - 1 - 1
	if contentHeight < 3 {
		contentHeight = 3
	}
	lines := m.contentLines(width, contentHeight)
	for len(lines) < contentHeight {
		lines = append(lines, "")
	}

	var bottom string
	if m.commanding {
		bottom = m.input.View()
	} else {
		bottom = dimStyle.Render("enter: open • backspace: up • [/]: back/forward • d: download • :: command • q: quit")
	}

	status := dimStyle.Render(fmt.Sprintf("%s v%s  •  %s navigation", appName, version, m.app.bus.Mode()))
	if link := m.app.shareLink(); link != "" {
		status += dimStyle.Render("  •  ") + urlStyle.Render(link)
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n%s\n%s",
		header,
		crumbs,
		strings.Join(lines, "\n"),
		borderStyle.Width(width-2).Render(m.viewport.View()),
		bottom,
		status)
}

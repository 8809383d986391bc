// Package ui provides the Bubble Tea-based terminal interface for Finch.
package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/async"
	"github.com/finch-chat/finch/internal/poll"
	"github.com/finch-chat/finch/internal/prefs"
	"github.com/finch-chat/finch/internal/session"
	"github.com/finch-chat/finch/internal/threads"
)

// View represents the current active view.
type View int

const (
	ViewThreads View = iota
	ViewCalendar
)

// mode is the modal input state of the UI.
type mode int

const (
	modeNormal mode = iota
	modeLogin
	modeCompose
)

// Options configures the UI.
type Options struct {
	Context     context.Context
	Client      *api.Client
	Coordinator *session.Coordinator
	Collection  *threads.Collection
	Loop        *threads.SyncLoop
	Calendar    *poll.Poller[api.Calendar]
	ThemeName   string
	PrefsPath   string
	PollTick    time.Duration
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx         context.Context
	client      *api.Client
	coordinator *session.Coordinator
	coll        *threads.Collection
	loop        *threads.SyncLoop
	calendar    *poll.Poller[api.Calendar]
	prefsPath   string
	pollTick    time.Duration

	// UI state
	theme       Theme
	currentView View
	inputMode   mode
	width       int
	height      int
	ready       bool
	showHelp    bool
	spin        spinner.Model
	statusMsg   string
	busy        bool

	// Data state
	threads     []api.Thread
	calendarDat api.Calendar
	hasCalendar bool
	loopState   threads.LoopState
	sessionUser string
	lastUpdated time.Time

	// Thread list state
	selectedRow int

	// Login form
	loginInputs [2]textinput.Model
	loginFocus  int

	// Compose form: recipient, subject, body
	composeInputs [3]textinput.Model
	composeFocus  int
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = "Dracula"
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:         ctx,
		client:      opts.Client,
		coordinator: opts.Coordinator,
		coll:        opts.Collection,
		loop:        opts.Loop,
		calendar:    opts.Calendar,
		prefsPath:   prefsPath,
		pollTick:    pollTick,
		theme:       GetTheme(themeName),
		currentView: ViewThreads,
		spin:        sp,
	}
	m.initForms()
	return m
}

func (m *Model) initForms() {
	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 64
	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 128
	m.loginInputs = [2]textinput.Model{username, password}

	recipient := textinput.New()
	recipient.Placeholder = "recipient"
	recipient.CharLimit = 64
	subject := textinput.New()
	subject.Placeholder = "subject"
	subject.CharLimit = 120
	body := textinput.New()
	body.Placeholder = "message"
	body.CharLimit = 500
	m.composeInputs = [3]textinput.Model{recipient, subject, body}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
		m.spin.Tick,
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case tickMsg:
		m.refreshSnapshot()
		return m, tickCmd(m.pollTick)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case credsDoneMsg:
		return m.handleCredsDone(async.Snapshot[*api.Credentials](msg))

	case threadSentMsg:
		return m.handleThreadSent(async.Snapshot[api.Thread](msg))
	}

	return m, nil
}

// refreshSnapshot pulls the latest data from the background components.
func (m *Model) refreshSnapshot() {
	if m.coll != nil {
		m.threads = m.coll.Snapshot()
		if m.selectedRow >= len(m.threads) {
			m.selectedRow = max(0, len(m.threads)-1)
		}
	}
	if m.loop != nil {
		m.loopState = m.loop.State()
	}
	if m.calendar != nil {
		if cal, ok := m.calendar.Latest(); ok {
			m.calendarDat = cal
			m.hasCalendar = true
		} else {
			m.hasCalendar = false
		}
	}
	if m.coordinator != nil {
		if creds := m.coordinator.Session(); creds != nil {
			m.sessionUser = creds.AccountID
		} else {
			m.sessionUser = ""
		}
	}
	m.lastUpdated = time.Now()
}

func (m Model) handleCredsDone(snap async.Snapshot[*api.Credentials]) (tea.Model, tea.Cmd) {
	m.busy = false
	switch snap.State {
	case async.Succeeded:
		if snap.Value != nil {
			m.statusMsg = "signed in"
			m.inputMode = modeNormal
			m.savePrefs()
		} else {
			m.statusMsg = "signed out"
		}
	case async.Failed:
		m.statusMsg = "sign-in failed: " + snap.Err.Error()
	case async.Canceled:
		m.statusMsg = ""
	}
	m.refreshSnapshot()
	return m, nil
}

func (m Model) handleThreadSent(snap async.Snapshot[api.Thread]) (tea.Model, tea.Cmd) {
	m.busy = false
	switch snap.State {
	case async.Succeeded:
		m.statusMsg = "sent"
		m.inputMode = modeNormal
		if m.loop != nil {
			m.loop.RequestUpdate()
		}
	case async.Failed:
		m.statusMsg = "send failed: " + snap.Err.Error()
	case async.Canceled:
		m.statusMsg = ""
	}
	return m, nil
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	_ = prefs.Save(m.prefsPath, prefs.Prefs{
		Theme:        m.theme.Name,
		LastUsername: m.loginInputs[0].Value(),
	})
}

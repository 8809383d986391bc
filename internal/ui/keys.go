package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/prefs"
)

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch m.inputMode {
	case modeLogin:
		return m.handleLoginKey(msg)
	case modeCompose:
		return m.handleComposeKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "?", "h":
		m.showHelp = true
		return m, nil

	case "T":
		// Cycle theme
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		return m, nil

	case "tab":
		if m.currentView == ViewThreads {
			m.currentView = ViewCalendar
		} else {
			m.currentView = ViewThreads
		}
		return m, nil

	case "r":
		// Manual refresh of both the feed and the calendar
		if m.loop != nil {
			m.loop.RequestUpdate()
		}
		if m.calendar != nil {
			m.calendar.Kick()
		}
		m.statusMsg = "refreshing"
		return m, nil

	case "t":
		// Toggle whether the live feed is on screen and syncing
		if m.coll != nil {
			m.coll.SetActive(!m.coll.Active())
		}
		return m, nil

	case "l":
		if m.sessionUser == "" && !m.busy {
			m.enterLogin()
		}
		return m, nil

	case "L":
		if m.coordinator != nil && !m.busy {
			m.busy = true
			m.statusMsg = "signing out"
			return m, waitCredsCmd(m.coordinator.Logout())
		}
		return m, nil

	case "n":
		if m.sessionUser != "" && !m.busy {
			m.enterCompose()
		}
		return m, nil

	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
		return m, nil

	case "down", "j":
		if m.selectedRow < len(m.threads)-1 {
			m.selectedRow++
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) enterLogin() {
	m.inputMode = modeLogin
	m.loginFocus = 0
	if m.loginInputs[0].Value() == "" {
		if p, err := prefs.Load(m.prefsPath); err == nil {
			m.loginInputs[0].SetValue(p.LastUsername)
		}
	}
	m.loginInputs[1].SetValue("")
	m.loginInputs[0].Focus()
	m.loginInputs[1].Blur()
}

func (m *Model) enterCompose() {
	m.inputMode = modeCompose
	m.composeFocus = 0
	for i := range m.composeInputs {
		m.composeInputs[i].SetValue("")
		m.composeInputs[i].Blur()
	}
	m.composeInputs[0].Focus()
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.inputMode = modeNormal
		return m, nil

	case "ctrl+c":
		return m, tea.Quit

	case "tab", "shift+tab":
		m.loginInputs[m.loginFocus].Blur()
		m.loginFocus = (m.loginFocus + 1) % len(m.loginInputs)
		m.loginInputs[m.loginFocus].Focus()
		return m, nil

	case "enter":
		username := strings.TrimSpace(m.loginInputs[0].Value())
		password := m.loginInputs[1].Value()
		if username == "" || password == "" {
			m.statusMsg = "username and password required"
			return m, nil
		}
		m.busy = true
		m.statusMsg = "signing in"
		return m, waitCredsCmd(m.coordinator.Login(username, password))
	}

	var cmd tea.Cmd
	m.loginInputs[m.loginFocus], cmd = m.loginInputs[m.loginFocus].Update(msg)
	return m, cmd
}

func (m Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.inputMode = modeNormal
		return m, nil

	case "ctrl+c":
		return m, tea.Quit

	case "tab", "shift+tab":
		m.composeInputs[m.composeFocus].Blur()
		m.composeFocus = (m.composeFocus + 1) % len(m.composeInputs)
		m.composeInputs[m.composeFocus].Focus()
		return m, nil

	case "enter":
		recipient := strings.TrimSpace(m.composeInputs[0].Value())
		subject := strings.TrimSpace(m.composeInputs[1].Value())
		body := strings.TrimSpace(m.composeInputs[2].Value())
		if recipient == "" || body == "" {
			m.statusMsg = "recipient and message required"
			return m, nil
		}
		if m.client == nil {
			return m, nil
		}
		m.busy = true
		m.statusMsg = "sending"
		return m, waitThreadCmd(m.client.SendNewThread(api.NewThread{
			Recipients: []string{recipient},
			Subject:    subject,
			Body:       body,
		}))
	}

	var cmd tea.Cmd
	m.composeInputs[m.composeFocus], cmd = m.composeInputs[m.composeFocus].Update(msg)
	return m, cmd
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/finch-chat/finch/internal/threads"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	switch m.inputMode {
	case modeLogin:
		return m.renderLogin()
	case modeCompose:
		return m.renderCompose()
	}

	return m.renderMain()
}

func (m Model) renderMain() string {
	styles := m.theme.Styles()

	var body string
	switch m.currentView {
	case ViewCalendar:
		body = m.renderCalendar(styles)
	default:
		body = lipgloss.JoinHorizontal(
			lipgloss.Top,
			m.renderThreadList(styles),
			m.renderThreadDetail(styles),
		)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		styles.Title.Render("finch"),
		body,
		m.renderStatusBar(styles),
	)
}

func (m Model) renderThreadList(styles Styles) string {
	var b strings.Builder
	b.WriteString(styles.AccentText.Render("Threads"))
	b.WriteString("\n")

	if !m.feedActive() {
		b.WriteString(styles.MutedText.Render("feed paused (t to resume)"))
		b.WriteString("\n")
	}
	if len(m.threads) == 0 {
		b.WriteString(styles.MutedText.Render("no threads"))
	}
	for i, th := range m.threads {
		line := fmt.Sprintf("%s  %s", th.UpdatedAt.Local().Format("Jan 02 15:04"), th.Subject)
		if i == m.selectedRow {
			line = styles.Selected.Render(line)
		} else {
			line = styles.Text.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	pane := styles.Pane
	if m.currentView == ViewThreads {
		pane = styles.FocusPane
	}
	return pane.Width(m.paneWidth()).Render(b.String())
}

func (m Model) renderThreadDetail(styles Styles) string {
	var b strings.Builder
	if m.selectedRow < len(m.threads) {
		th := m.threads[m.selectedRow]
		b.WriteString(styles.AccentText.Render(th.Subject))
		b.WriteString("\n")
		b.WriteString(styles.MutedText.Render(strings.Join(th.Participants, ", ")))
		b.WriteString("\n\n")
		for _, msg := range th.Messages {
			b.WriteString(styles.Text.Render(fmt.Sprintf("%s %s", msg.SentAt.Local().Format("15:04"), msg.Sender)))
			b.WriteString("\n")
			b.WriteString(styles.Text.Render(msg.Body))
			b.WriteString("\n\n")
		}
	} else {
		b.WriteString(styles.MutedText.Render("select a thread"))
	}
	return styles.Pane.Width(m.paneWidth()).Render(b.String())
}

func (m Model) renderCalendar(styles Styles) string {
	var b strings.Builder
	b.WriteString(styles.AccentText.Render("Calendar"))
	b.WriteString("\n")

	if !m.hasCalendar {
		if err := m.calendarError(); err != nil {
			b.WriteString(styles.Danger.Render("calendar unavailable: " + err.Error()))
		} else {
			b.WriteString(styles.MutedText.Render("no calendar yet"))
		}
	} else {
		profile := m.calendarDat.Profile
		b.WriteString(styles.Text.Render(fmt.Sprintf("%s (%s)", profile.DisplayName, profile.Username)))
		b.WriteString("\n")
		if profile.Status != "" {
			b.WriteString(styles.MutedText.Render(profile.Status))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if len(m.calendarDat.Entries) == 0 {
			b.WriteString(styles.MutedText.Render("nothing scheduled"))
		}
		for _, entry := range m.calendarDat.Entries {
			b.WriteString(styles.Text.Render(fmt.Sprintf(
				"%s - %s  %s",
				entry.Start.Local().Format("Jan 02 15:04"),
				entry.End.Local().Format("15:04"),
				entry.Title,
			)))
			b.WriteString("\n")
		}
	}

	return styles.FocusPane.Width(m.contentWidth()).Render(b.String())
}

func (m Model) renderStatusBar(styles Styles) string {
	parts := make([]string, 0, 4)

	if m.sessionUser != "" {
		parts = append(parts, "account "+m.sessionUser)
	} else {
		parts = append(parts, "logged out (l to sign in)")
	}

	switch m.loopState {
	case threads.Fetching:
		parts = append(parts, m.spin.View()+"syncing")
	case threads.Delaying:
		parts = append(parts, "synced")
	case threads.WaitingForActivation:
		parts = append(parts, "sync parked")
	default:
		parts = append(parts, "sync idle")
	}

	if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	}
	if !m.lastUpdated.IsZero() {
		parts = append(parts, "updated "+m.lastUpdated.Format("15:04:05"))
	}

	return styles.StatusBar.Width(m.contentWidth()).Render(strings.Join(parts, " | "))
}

func (m Model) renderLogin() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.Title.Render("Sign in"))
	b.WriteString("\n\n")
	b.WriteString(m.loginInputs[0].View())
	b.WriteString("\n")
	b.WriteString(m.loginInputs[1].View())
	b.WriteString("\n\n")
	b.WriteString(styles.MutedText.Render("enter to sign in, tab to switch, esc to cancel"))
	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(styles.Warning.Render(m.statusMsg))
	}
	return styles.FocusPane.Render(b.String())
}

func (m Model) renderCompose() string {
	styles := m.theme.Styles()
	labels := [3]string{"To", "Subject", "Message"}
	var b strings.Builder
	b.WriteString(styles.Title.Render("New thread"))
	b.WriteString("\n\n")
	for i := range m.composeInputs {
		b.WriteString(styles.MutedText.Render(labels[i]))
		b.WriteString("\n")
		b.WriteString(m.composeInputs[i].View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render("enter to send, tab to switch, esc to cancel"))
	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(styles.Warning.Render(m.statusMsg))
	}
	return styles.FocusPane.Render(b.String())
}

func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	rows := []string{
		"?        this help",
		"tab      switch threads/calendar view",
		"j/k      select thread",
		"r        refresh now",
		"t        pause/resume live feed",
		"n        new thread",
		"l        sign in",
		"L        sign out",
		"T        cycle theme",
		"q        quit",
	}
	return styles.Pane.Render(
		styles.Title.Render("Keys") + "\n\n" + styles.Text.Render(strings.Join(rows, "\n")),
	)
}

func (m Model) feedActive() bool {
	return m.coll != nil && m.coll.Active()
}

func (m Model) calendarError() error {
	if m.calendar == nil {
		return nil
	}
	return m.calendar.LastError()
}

func (m Model) paneWidth() int {
	if m.width <= 0 {
		return 40
	}
	w := m.width/2 - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return w
}

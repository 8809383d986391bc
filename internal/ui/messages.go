package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/async"
)

type tickMsg time.Time

// credsDoneMsg carries the terminal snapshot of a credential operation.
type credsDoneMsg async.Snapshot[*api.Credentials]

// threadSentMsg carries the terminal snapshot of a thread send.
type threadSentMsg async.Snapshot[api.Thread]

func tickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitCredsCmd(res *async.Result[*api.Credentials]) tea.Cmd {
	return func() tea.Msg {
		return credsDoneMsg(res.Wait())
	}
}

func waitThreadCmd(res *async.Result[api.Thread]) tea.Cmd {
	return func() tea.Msg {
		return threadSentMsg(res.Wait())
	}
}

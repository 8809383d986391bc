// Package ui implements the Finch terminal interface with Bubble Tea.
//
// # Overview
//
// The UI is a thin presentation layer over the background components:
// it never talks to the service directly except to submit user-initiated
// operations (sign in, sign out, new thread). Data arrives by sampling
// the thread collection, the sync loop, the calendar poller, and the
// session coordinator on a fixed tick.
//
// # Views
//
//   - Threads: live message-thread list with a detail pane
//   - Calendar: profile header plus upcoming entries
//
// Modal states (sign-in form, compose form, help overlay) capture input
// until dismissed.
//
// # Async operations
//
// User-initiated operations return async results; the UI wraps each one
// in a command that waits for the terminal snapshot and reports it back
// as a message. The model never blocks in Update.
//
// # Theming
//
// Themes are named palettes rendered through Lipgloss. The active theme
// is persisted to the preferences file when cycled.
package ui

package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/threads"
)

func sizedModel(t *testing.T, opts Options) Model {
	t.Helper()
	m := New(opts)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model)
}

func pressKey(t *testing.T, m Model, key string) Model {
	t.Helper()
	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	if key == "tab" {
		msg = tea.KeyMsg{Type: tea.KeyTab}
	}
	updated, _ := m.Update(msg)
	return updated.(Model)
}

func TestViewBeforeFirstSizeShowsLoading(t *testing.T) {
	m := New(Options{})
	if got := m.View(); got != "Loading..." {
		t.Fatalf("View = %q, want Loading...", got)
	}
}

func TestTabSwitchesViews(t *testing.T) {
	m := sizedModel(t, Options{Collection: threads.NewCollection()})
	if m.currentView != ViewThreads {
		t.Fatalf("initial view = %v", m.currentView)
	}
	m = pressKey(t, m, "tab")
	if m.currentView != ViewCalendar {
		t.Fatalf("view after tab = %v, want ViewCalendar", m.currentView)
	}
	m = pressKey(t, m, "tab")
	if m.currentView != ViewThreads {
		t.Fatalf("view after second tab = %v, want ViewThreads", m.currentView)
	}
}

func TestTickPullsCollectionSnapshot(t *testing.T) {
	coll := threads.NewCollection()
	coll.Replace([]api.Thread{
		{ID: "t1", Subject: "hello", UpdatedAt: time.Now()},
		{ID: "t2", Subject: "world", UpdatedAt: time.Now()},
	})

	m := sizedModel(t, Options{Collection: coll})
	updated, _ := m.Update(tickMsg(time.Now()))
	m = updated.(Model)

	if len(m.threads) != 2 {
		t.Fatalf("threads = %d, want 2", len(m.threads))
	}
	if !strings.Contains(m.View(), "hello") {
		t.Fatal("rendered view does not contain thread subject")
	}
}

func TestSelectionStaysInBounds(t *testing.T) {
	coll := threads.NewCollection()
	coll.Replace([]api.Thread{{ID: "t1"}, {ID: "t2"}})

	m := sizedModel(t, Options{Collection: coll})
	updated, _ := m.Update(tickMsg(time.Now()))
	m = updated.(Model)

	m = pressKey(t, m, "k")
	if m.selectedRow != 0 {
		t.Fatalf("selectedRow = %d after up at top", m.selectedRow)
	}
	m = pressKey(t, m, "j")
	m = pressKey(t, m, "j")
	m = pressKey(t, m, "j")
	if m.selectedRow != 1 {
		t.Fatalf("selectedRow = %d, want 1", m.selectedRow)
	}

	// Shrinking the collection clamps the selection.
	coll.Replace([]api.Thread{{ID: "t1"}})
	updated, _ = m.Update(tickMsg(time.Now()))
	m = updated.(Model)
	if m.selectedRow != 0 {
		t.Fatalf("selectedRow = %d after shrink, want 0", m.selectedRow)
	}
}

func TestFeedToggleFlipsActivation(t *testing.T) {
	coll := threads.NewCollection()
	m := sizedModel(t, Options{Collection: coll})

	m = pressKey(t, m, "t")
	if !coll.Active() {
		t.Fatal("collection not active after toggle")
	}
	m = pressKey(t, m, "t")
	if coll.Active() {
		t.Fatal("collection still active after second toggle")
	}
}

func TestHelpOverlayTogglesAndCloses(t *testing.T) {
	m := sizedModel(t, Options{})
	m = pressKey(t, m, "?")
	if !m.showHelp {
		t.Fatal("help not shown")
	}
	if !strings.Contains(m.View(), "Keys") {
		t.Fatal("help view missing key table")
	}
	m = pressKey(t, m, "x")
	if m.showHelp {
		t.Fatal("help not dismissed by key press")
	}
}

func TestThemeCycleKey(t *testing.T) {
	prefsPath := t.TempDir() + "/prefs.toml"
	m := sizedModel(t, Options{PrefsPath: prefsPath})
	before := m.theme.Name
	m = pressKey(t, m, "T")
	if m.theme.Name == before {
		t.Fatalf("theme did not change from %q", before)
	}
}

func TestLoginModeRequiresNoSession(t *testing.T) {
	m := sizedModel(t, Options{PrefsPath: t.TempDir() + "/prefs.toml"})
	m = pressKey(t, m, "l")
	if m.inputMode != modeLogin {
		t.Fatalf("inputMode = %v, want modeLogin", m.inputMode)
	}
	if !strings.Contains(m.View(), "Sign in") {
		t.Fatal("login view missing title")
	}

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	if m.inputMode != modeNormal {
		t.Fatalf("inputMode = %v after esc, want modeNormal", m.inputMode)
	}
}

func TestComposeRequiresSession(t *testing.T) {
	m := sizedModel(t, Options{})
	m = pressKey(t, m, "n")
	if m.inputMode != modeNormal {
		t.Fatal("compose opened without a session")
	}

	m.sessionUser = "acct-1"
	m = pressKey(t, m, "n")
	if m.inputMode != modeCompose {
		t.Fatalf("inputMode = %v, want modeCompose", m.inputMode)
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/config"
	"github.com/finch-chat/finch/internal/photocache"
	"github.com/finch-chat/finch/internal/poll"
	"github.com/finch-chat/finch/internal/prefs"
	"github.com/finch-chat/finch/internal/session"
	"github.com/finch-chat/finch/internal/store"
	"github.com/finch-chat/finch/internal/threads"
	"github.com/finch-chat/finch/internal/ui"
)

// Options configure the Finch application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/finch/prefs.toml
	PollEvery  int    // seconds; zero uses the config value
}

// Run boots the Finch TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = time.Duration(opts.PollEvery) * time.Second
	}

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	client, err := api.NewClient(cfg.ServiceURL)
	if err != nil {
		return fmt.Errorf("init service client: %w", err)
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("init data store: %w", err)
	}

	photos, err := photocache.NewWorkQueue(st)
	if err != nil {
		return fmt.Errorf("init photo cache: %w", err)
	}
	defer photos.Close()

	coll := threads.NewCollection()
	loop := threads.NewSyncLoop(coll, client.RefreshThreads, cfg.SyncStep, cfg.SyncMax)
	calendar := poll.New("calendar", cfg.PollInterval, client.GetCalendar)

	coordinator := session.NewCoordinator(client, st, coll, loop, calendar)

	calendar.Start(ctx)

	// Keep avatars warm for everyone visible in the feed.
	stopPhotos := watchPhotos(coll, photos, client.FetchPhoto)
	defer stopPhotos()

	// Revive a stored session before the UI starts so the first frame
	// reflects it. A dead or missing session just leaves us logged out.
	coordinator.Restore().Wait()

	model := ui.New(ui.Options{
		Context:     ctx,
		Client:      client,
		Coordinator: coordinator,
		Collection:  coll,
		Loop:        loop,
		Calendar:    calendar,
		ThemeName:   userPrefs.Theme,
		PrefsPath:   opts.PrefsPath,
		PollTick:    time.Second,
	})

	program := tea.NewProgram(model, tea.WithContext(ctx))
	_, err = program.Run()
	loop.Cancel()
	if err != nil && ctx.Err() != nil {
		// Shutdown via signal, not a UI failure.
		return nil
	}
	return err
}

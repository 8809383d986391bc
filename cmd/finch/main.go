package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/finch-chat/finch/internal/app"
)

func main() {
	var configPath string
	var prefsPath string
	var pollSeconds int

	rootCmd := &cobra.Command{
		Use:   "finch",
		Short: "Finch - terminal client for the Perch messaging service",
		Long: `Finch keeps a live terminal view of your Perch account: the
message-thread feed, your calendar, and your profile, with cached
avatars for everyone you talk to.

Running finch with no subcommand starts the interactive TUI.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return app.Run(ctx, app.Options{
				ConfigPath: configPath,
				PrefsPath:  prefsPath,
				PollEvery:  pollSeconds,
			})
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "override config path (optional)")
	rootCmd.PersistentFlags().StringVar(&prefsPath, "prefs", "", "override preferences path (optional)")
	rootCmd.Flags().IntVar(&pollSeconds, "poll", 0, "calendar refresh interval in seconds (optional)")

	rootCmd.AddCommand(createLoginCmd(&configPath))
	rootCmd.AddCommand(createLogoutCmd(&configPath))
	rootCmd.AddCommand(createWhoamiCmd(&configPath))
	rootCmd.AddCommand(createProfileCmd(&configPath))
	rootCmd.AddCommand(createSearchCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

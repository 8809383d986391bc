package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/async"
	"github.com/finch-chat/finch/internal/config"
	"github.com/finch-chat/finch/internal/store"
)

// openSession loads config and builds the client and store the
// one-shot commands share.
func openSession(configPath string) (*api.Client, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	client, err := api.NewClient(cfg.ServiceURL)
	if err != nil {
		return nil, nil, fmt.Errorf("init service client: %w", err)
	}
	st, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init data store: %w", err)
	}
	return client, st, nil
}

func createLoginCmd(configPath *string) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and store the session for later runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, st, err := openSession(*configPath)
			if err != nil {
				return err
			}

			username := args[0]
			if password == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Password for %s: ", username)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			snap := client.Login(username, password).Wait()
			if snap.State != async.Succeeded {
				color.Red("sign-in failed")
				return snap.Err
			}
			if err := st.SaveCredentials(snap.Value); err != nil {
				return fmt.Errorf("store session: %w", err)
			}
			color.Green("signed in as %s", username)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password (prompts when omitted)")
	return cmd
}

func createLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, st, err := openSession(*configPath)
			if err != nil {
				return err
			}

			creds, err := st.RestoreCredentials()
			if err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
			if creds == nil {
				color.Yellow("not signed in")
				return nil
			}

			client.SetCredentials(creds)
			if snap := client.Logout().Wait(); snap.State == async.Failed {
				// The local session goes away regardless.
				color.Yellow("remote sign-out failed: %v", snap.Err)
			}
			if err := st.SaveCredentials(nil); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
			color.Green("signed out")
			return nil
		},
	}
}

func createWhoamiCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account behind the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, st, err := openSession(*configPath)
			if err != nil {
				return err
			}

			creds, err := st.RestoreCredentials()
			if err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
			if creds == nil {
				color.Yellow("not signed in")
				return nil
			}

			client.SetCredentials(creds)
			snap := client.GetAuthenticatedUser().Wait()
			if snap.State != async.Succeeded {
				return snap.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", snap.Value.Username, snap.Value.DisplayName)
			return nil
		},
	}
}

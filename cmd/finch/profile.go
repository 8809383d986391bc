package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/finch-chat/finch/internal/api"
	"github.com/finch-chat/finch/internal/async"
	"github.com/finch-chat/finch/internal/photocache"
	"github.com/finch-chat/finch/internal/store"
)

func createProfileCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "View or change the signed-in profile",
	}
	cmd.AddCommand(createProfileSetCmd(configPath))
	cmd.AddCommand(createProfileAvatarCmd(configPath))
	return cmd
}

func createProfileSetCmd(configPath *string) *cobra.Command {
	var displayName string
	var status string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update display name and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if displayName == "" && status == "" {
				return fmt.Errorf("nothing to change: pass --name and/or --status")
			}

			client, _, err := openAuthenticated(*configPath)
			if err != nil {
				return err
			}

			current := client.GetAuthenticatedUser().Wait()
			if current.State != async.Succeeded {
				return current.Err
			}

			profile := api.Profile{
				Username:    current.Value.Username,
				DisplayName: current.Value.DisplayName,
			}
			if displayName != "" {
				profile.DisplayName = displayName
			}
			if status != "" {
				profile.Status = status
			}

			snap := client.UpdateProfile(profile).Wait()
			if snap.State != async.Succeeded {
				return snap.Err
			}
			color.Green("profile updated")
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "new display name")
	cmd.Flags().StringVar(&status, "status", "", "new status line")
	return cmd
}

func createProfileAvatarCmd(configPath *string) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "avatar [image-file]",
		Short: "Upload a new avatar, or reset it with --reset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset == (len(args) == 1) {
				return fmt.Errorf("pass an image file or --reset, not both")
			}

			client, st, err := openAuthenticated(*configPath)
			if err != nil {
				return err
			}

			var snap async.Snapshot[api.PhotoUpdate]
			if reset {
				snap = client.ResetAvatar().Wait()
			} else {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				snap = client.UploadAvatar(data).Wait()
			}
			if snap.State != async.Succeeded {
				return snap.Err
			}

			// Drop the now-stale cached copy so the next run refetches.
			photos, err := photocache.NewWorkQueue(st)
			if err != nil {
				return fmt.Errorf("open photo cache: %w", err)
			}
			photos.RecordRemoteUpdate(snap.Value.Username, snap.Value.UpdatedAt)
			photos.Close()

			if reset {
				color.Green("avatar reset")
			} else {
				color.Green("avatar updated")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "remove the custom avatar")
	return cmd
}

func createSearchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Search for users",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := openAuthenticated(*configPath)
			if err != nil {
				return err
			}

			snap := client.SearchUsers(args[0]).Wait()
			if snap.State != async.Succeeded {
				return snap.Err
			}
			if len(snap.Value) == 0 {
				color.Yellow("no matches")
				return nil
			}
			for _, user := range snap.Value {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", user.Username, user.DisplayName)
			}
			return nil
		},
	}
}

// openAuthenticated is openSession plus the stored credentials installed;
// it fails when no session is stored.
func openAuthenticated(configPath string) (*api.Client, *store.Store, error) {
	client, st, err := openSession(configPath)
	if err != nil {
		return nil, nil, err
	}
	creds, err := st.RestoreCredentials()
	if err != nil {
		return nil, nil, fmt.Errorf("restore session: %w", err)
	}
	if creds == nil {
		return nil, nil, fmt.Errorf("not signed in: run finch login first")
	}
	client.SetCredentials(creds)
	return client, st, nil
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leonletto/carlot/internal/cli"
	"github.com/leonletto/carlot/internal/daemon/rpc"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login USER_ID",
		Short: "Start a session as a user",
		Long: `Create a session for a user and save its token in .carlot/var/session.

Later commands use the saved token unless --token or
CARLOT_SESSION_TOKEN is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			sess, err := cli.Login(context.Background(), client, flagDir, args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(sess)
			}
			if !flagQuiet {
				fmt.Printf("✓ Logged in as %s (expires %s)\n", sess.UserID, sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := cli.ResolveToken(flagDir, flagToken)
			if err != nil {
				return err
			}
			client, err := getClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			if err := cli.Logout(context.Background(), client, flagDir, token); err != nil {
				return err
			}
			if !flagQuiet && !flagJSON {
				fmt.Println("✓ Logged out")
			}
			return nil
		},
	}
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage user profiles",
	}

	upsert := &cobra.Command{
		Use:   "set DISPLAY_NAME",
		Short: "Create or update a profile",
		Long: `Create or update a user profile. Without --id a new user id is
generated. Only available over the local socket.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			image, _ := cmd.Flags().GetString("image")

			client, err := getClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			p, err := cli.UpsertProfile(context.Background(), client, rpc.ProfileUpsertRequest{
				UserID:          id,
				DisplayName:     args[0],
				ProfileImageURL: image,
			})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(p)
			}
			fmt.Printf("Profile  %s  %s\n", p.UserID, p.DisplayName)
			return nil
		},
	}
	upsert.Flags().String("id", "", "User id to update")
	upsert.Flags().String("image", "", "Profile image URL")

	cmd.AddCommand(upsert)
	return cmd
}

func listingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listing",
		Short: "Manage listings",
	}

	upsert := &cobra.Command{
		Use:   "set TITLE",
		Short: "Create or update a listing",
		Long: `Create or update a listing owned by --owner. Without --id a new
listing id is generated. Only available over the local socket.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			owner, _ := cmd.Flags().GetString("owner")

			client, err := getClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			l, err := cli.UpsertListing(context.Background(), client, rpc.ListingUpsertRequest{
				ID:     id,
				UserID: owner,
				Title:  args[0],
			})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(l)
			}
			fmt.Printf("Listing  %s  %q (owner %s)\n", l.ID, l.Title, l.UserID)
			return nil
		},
	}
	upsert.Flags().String("id", "", "Listing id to update")
	upsert.Flags().String("owner", "", "Owner user id (required)")
	_ = upsert.MarkFlagRequired("owner")

	cmd.AddCommand(upsert)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed NAME...",
		Short: "Create demo profiles and a listing",
		Long: `Create one profile per name and a listing owned by the first.

Example:
  carlot seed "Sam Seller" "Bea Buyer" --title "2015 Civic"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")

			client, err := getClient()
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			result, err := cli.Seed(context.Background(), client, cli.SeedOptions{Names: args, ListingTitle: title})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(result)
			}
			fmt.Print(cli.FormatSeedResult(result))
			if !flagQuiet {
				fmt.Fprintf(os.Stderr, "\nLog in with: carlot login %s\n", result.Profiles[0].UserID)
			}
			return nil
		},
	}

	cmd.Flags().String("title", "", "Listing title")
	return cmd
}

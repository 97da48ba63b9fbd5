package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leonletto/carlot/internal/cli"
	"github.com/leonletto/carlot/internal/daemon"
	"github.com/leonletto/carlot/internal/daemon/rpc"
)

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send MESSAGE",
		Short: "Send a message about a listing",
		Long: `Send a message to another user about a listing.

The conversation is identified by the listing and the other participant.
Sending to yourself keeps private notes on the listing.

Examples:
  carlot send --listing <id> --to <user_id> "Is it still available?"
  carlot send --listing <id> --to <user_id> --type offer "Would you take 9000?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, _ := cmd.Flags().GetString("listing")
			to, _ := cmd.Flags().GetString("to")
			msgType, _ := cmd.Flags().GetString("type")
			thread, _ := cmd.Flags().GetString("thread")

			return withSession(func(ctx context.Context, client *daemon.Client, token string) error {
				result, err := cli.Send(ctx, client, cli.SendOptions{
					Token:     token,
					ListingID: listing,
					To:        to,
					Text:      args[0],
					Type:      msgType,
					Thread:    thread,
				})
				if err != nil {
					return err
				}
				return printSendResult(result)
			})
		},
	}

	cmd.Flags().String("listing", "", "Listing id (required)")
	cmd.Flags().String("to", "", "Recipient user id (required)")
	cmd.Flags().String("type", "text", "Message type (text, inquiry, offer)")
	cmd.Flags().String("thread", "", "Thread id to post into")
	_ = cmd.MarkFlagRequired("listing")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func replyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reply MESSAGE_ID TEXT",
		Short: "Reply to a message",
		Long: `Reply to a message. The reply joins the parent's thread one level
deeper and goes to the other participant of the conversation.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, _ := cmd.Flags().GetString("listing")
			to, _ := cmd.Flags().GetString("to")
			msgType, _ := cmd.Flags().GetString("type")

			return withSession(func(ctx context.Context, client *daemon.Client, token string) error {
				result, err := cli.Send(ctx, client, cli.SendOptions{
					Token:     token,
					ListingID: listing,
					To:        to,
					Text:      args[1],
					Type:      msgType,
					ReplyTo:   args[0],
				})
				if err != nil {
					return err
				}
				return printSendResult(result)
			})
		},
	}

	cmd.Flags().String("listing", "", "Listing id (required)")
	cmd.Flags().String("to", "", "Recipient user id (required)")
	cmd.Flags().String("type", "text", "Message type (text, inquiry, offer)")
	_ = cmd.MarkFlagRequired("listing")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func printSendResult(result *rpc.SendResponse) error {
	if flagJSON {
		return printJSON(result)
	}
	if !flagQuiet {
		fmt.Print(cli.FormatSendResult(result))
	}
	return nil
}

func inboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List your conversations",
		Long: `List your conversations, newest activity first, with unread counts.

Archived conversations are hidden unless --archived is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, _ := cmd.Flags().GetString("listing")
			search, _ := cmd.Flags().GetString("search")
			archived, _ := cmd.Flags().GetBool("archived")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			return withSession(func(ctx context.Context, client *daemon.Client, token string) error {
				page, err := cli.Inbox(ctx, client, cli.InboxOptions{
					Token:           token,
					ListingID:       listing,
					Search:          search,
					IncludeArchived: archived,
					Limit:           limit,
					Offset:          offset,
				})
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(page)
				}
				fmt.Print(cli.FormatInbox(page, cli.GetTerminalWidth()))
				return nil
			})
		},
	}

	cmd.Flags().String("listing", "", "Only conversations about this listing")
	cmd.Flags().String("search", "", "Only conversations containing this text")
	cmd.Flags().BoolP("archived", "a", false, "Include archived conversations")
	cmd.Flags().Int("limit", 20, "Conversations per page (max 100)")
	cmd.Flags().Int("offset", 0, "Conversations to skip")

	return cmd
}

func threadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread LISTING_ID/USER_ID",
		Short: "Show one conversation as reply threads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noRead, _ := cmd.Flags().GetBool("no-read")

			return withSession(func(ctx context.Context, client *daemon.Client, token string) error {
				view, err := cli.Thread(ctx, client, cli.ThreadOptions{
					Token:        token,
					Conversation: args[0],
					MarkRead:     !noRead,
				})
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(view)
				}
				fmt.Print(cli.FormatThread(view, cli.GetTerminalWidth()))
				return nil
			})
		},
	}

	cmd.Flags().Bool("no-read", false, "Do not mark the conversation read")
	return cmd
}

func readCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read [MESSAGE_ID...]",
		Short: "Mark messages or a conversation as read",
		Long: `Mark messages sent to you as read, either by id or a whole
conversation with --conversation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conversation, _ := cmd.Flags().GetString("conversation")

			return withSession(func(ctx context.Context, client *daemon.Client, token string) error {
				n, err := cli.MarkRead(ctx, client, cli.MarkReadOptions{
					Token:        token,
					Conversation: conversation,
					MessageIDs:   args,
				})
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(map[string]int{"marked_count": n})
				}
				if !flagQuiet {
					fmt.Printf("✓ Marked %d message(s) read\n", n)
				}
				return nil
			})
		},
	}

	cmd.Flags().String("conversation", "", "Conversation key (LISTING_ID/USER_ID)")
	return cmd
}

func archiveCmd(archived bool) *cobra.Command {
	use, short, verb := "archive", "Archive conversations", "Archived"
	if !archived {
		use, short, verb = "unarchive", "Restore archived conversations", "Unarchived"
	}

	return &cobra.Command{
		Use:   use + " LISTING_ID/USER_ID...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, client *daemon.Client, token string) error {
				n, err := cli.Archive(ctx, client, token, args, archived)
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(map[string]int{"updated_count": n})
				}
				if !flagQuiet {
					fmt.Printf("✓ %s %d conversation(s)\n", verb, n)
				}
				return nil
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [MESSAGE_ID...]",
		Short: "Delete messages or conversations",
		Long: `Delete messages for yourself. The other participant still sees them.

With --hard the messages are removed for both participants. Only messages
you sent can be hard-deleted.

Examples:
  carlot delete <message_id>
  carlot delete --conversation <listing_id>/<user_id>
  carlot delete --hard <message_id>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conversations, _ := cmd.Flags().GetStringSlice("conversation")
			hard, _ := cmd.Flags().GetBool("hard")

			return withSession(func(ctx context.Context, client *daemon.Client, token string) error {
				n, err := cli.Delete(ctx, client, cli.DeleteOptions{
					Token:         token,
					Conversations: conversations,
					MessageIDs:    args,
					Hard:          hard,
				})
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(map[string]int{"deleted_count": n})
				}
				if !flagQuiet {
					fmt.Printf("✓ Deleted %d message(s)\n", n)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSlice("conversation", nil, "Conversation key to delete (repeatable)")
	cmd.Flags().Bool("hard", false, "Remove for both participants")
	return cmd
}

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List new-message notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			unread, _ := cmd.Flags().GetBool("unread")
			limit, _ := cmd.Flags().GetInt("limit")
			markRead, _ := cmd.Flags().GetBool("mark-read")

			return withSession(func(ctx context.Context, client *daemon.Client, token string) error {
				list, err := cli.Notifications(ctx, client, token, unread, limit)
				if err != nil {
					return err
				}
				if flagJSON {
					if err := printJSON(list); err != nil {
						return err
					}
				} else {
					fmt.Print(cli.FormatNotifications(list))
				}
				if markRead {
					// Best-effort: the list was already shown.
					_, _ = cli.MarkNotificationsRead(ctx, client, token)
				}
				return nil
			})
		},
	}

	cmd.Flags().Bool("unread", false, "Only unread notifications")
	cmd.Flags().Int("limit", 50, "Maximum notifications (max 200)")
	cmd.Flags().Bool("mark-read", false, "Mark all notifications read after listing")
	return cmd
}

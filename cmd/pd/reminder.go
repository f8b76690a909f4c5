package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"protodesk/internal/domain"
	"protodesk/internal/engine"
	"protodesk/internal/server"
)

func reminderCmd() *cobra.Command {
	rm := &cobra.Command{Use: "reminder", Short: "Manage protocol reminders"}

	var message, at string
	add := &cobra.Command{
		Use:   "add <protocol-id> <text>",
		Short: "Add a reminder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			actor, err := actorID()
			if err != nil {
				return err
			}
			when, err := parseDate(at)
			if err != nil {
				return err
			}
			if when == nil {
				return fmt.Errorf("--at is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.CreateReminder(ctx, engine.ReminderOptions{
					ProtocolID:   id,
					Text:         strings.Join(args[1:], " "),
					Message:      message,
					ReminderDate: *when,
					ActorID:      actor,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	add.Flags().StringVar(&at, "at", "", "when the reminder is due (YYYY-MM-DD or RFC 3339)")
	add.Flags().StringVar(&message, "message", "", "longer message sent with the reminder")

	list := &cobra.Command{
		Use:   "list <protocol-id>",
		Short: "List reminders of a protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListReminders(ctx, id)
				if err != nil {
					return err
				}
				return printReminders(items)
			})
		},
	}

	var window time.Duration
	upcoming := &cobra.Command{
		Use:   "upcoming",
		Short: "Open reminders due soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.UpcomingReminders(ctx, window)
				if err != nil {
					return err
				}
				return printReminders(items)
			})
		},
	}
	upcoming.Flags().DurationVar(&window, "within", 24*time.Hour, "look-ahead window")

	complete := &cobra.Command{
		Use:   "complete <reminder-id>",
		Short: "Mark a reminder done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.CompleteReminder(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	rm.AddCommand(add, list, upcoming, complete)
	return rm
}

func printReminders(items []domain.Reminder) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Protocol", "Due", "Text", "Sent", "Done")
	for _, r := range items {
		tw.AppendRow(table.Row{r.ID, r.ProtocolID, r.ReminderDate.Local().Format("2006-01-02 15:04"), r.Text, r.IsSent, r.IsCompleted})
	}
	tw.Render()
	return nil
}

func apiKeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for --actor-id; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, secret, err := e.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": k.ID, "actor_id": k.ActorID, "name": k.Name, "key": secret})
				}
				fmt.Printf("id:  %s\nkey: %s\n", k.ID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys (all actors unless --actor-id is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, viper.GetInt64("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Actor", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RevokeAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
	ak.AddCommand(create, list, revoke)
	return ak
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --actor-id using PROTODESK_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			token, err := server.SignToken(viper.GetString("jwt-secret"), actor, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

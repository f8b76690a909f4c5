package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"protodesk/internal/domain"
	"protodesk/internal/engine"
	"protodesk/internal/repo"
)

func protocolCmd() *cobra.Command {
	pr := &cobra.Command{Use: "protocol", Aliases: []string{"p"}, Short: "Manage protocols"}
	pr.AddCommand(protocolCreateCmd())
	pr.AddCommand(protocolListCmd())
	pr.AddCommand(protocolShowCmd())
	pr.AddCommand(protocolUpdateCmd())
	pr.AddCommand(protocolDeleteCmd())
	pr.AddCommand(protocolStatusCmd())
	pr.AddCommand(protocolCommentCmd())
	pr.AddCommand(protocolAttachCmd())
	pr.AddCommand(protocolEventsCmd())
	pr.AddCommand(protocolTimelineCmd())
	return pr
}

// resolveStatus accepts a numeric status id or a status name.
func resolveStatus(e engine.Engine, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, nil
	}
	for _, s := range e.Statuses.List() {
		if strings.EqualFold(s.Name, raw) {
			return s.ID, nil
		}
	}
	return 0, domain.NotFound("status", raw)
}

func protocolCreateCmd() *cobra.Command {
	var opts engine.ProtocolCreateOptions
	var status, required, expected string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			if opts.DateRequired, err = parseDate(required); err != nil {
				return err
			}
			if opts.ExpectedCompletion, err = parseDate(expected); err != nil {
				return err
			}
			opts.ActorID = actor
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.StatusID, err = resolveStatus(e, status); err != nil {
					return err
				}
				p, err := e.CreateProtocol(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().Int64Var(&opts.CustomerID, "customer-id", 0, "customer id")
	cmd.Flags().Int64Var(&opts.AssignedTo, "assigned-to", 0, "personnel id")
	cmd.Flags().StringVar(&opts.Priority, "priority", "Medium", "Low, Medium or High")
	cmd.Flags().StringVar(&status, "status", "", "initial status id or name (default from config)")
	cmd.Flags().StringVar(&required, "date-required", "", "date the customer needs it by")
	cmd.Flags().StringVar(&expected, "expected-completion", "", "expected completion date")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("customer-id")
	_ = cmd.MarkFlagRequired("assigned-to")
	return cmd
}

func protocolListCmd() *cobra.Command {
	var f repo.ProtocolFilters
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List protocols, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var err error
				if f.StatusID, err = resolveStatus(e, status); err != nil {
					return err
				}
				items, err := e.ListProtocols(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Number", "Title", "Status", "Priority", "Assigned", "Created")
				tw.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 40}})
				for _, p := range items {
					name, _ := e.Statuses.Name(p.StatusID)
					tw.AppendRow(table.Row{p.ID, p.Number, p.Title, name, p.Priority, p.AssignedTo, p.CreatedAt.Format("2006-01-02")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status id or name")
	cmd.Flags().Int64Var(&f.CustomerID, "customer-id", 0, "customer filter")
	cmd.Flags().Int64Var(&f.AssignedTo, "assigned-to", 0, "assignee filter")
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "only protocols not yet closed")
	cmd.Flags().IntVar(&f.Page.Limit, "limit", 50, "maximum rows")
	cmd.Flags().Int64Var(&f.Page.AfterID, "before-id", 0, "continue below this protocol id")
	return cmd
}

func protocolShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProtocol(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func protocolUpdateCmd() *cobra.Command {
	var title, description, priority, required, expected string
	var assignedTo int64
	var clearDates bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit protocol fields (not the status)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			actor, err := actorID()
			if err != nil {
				return err
			}
			opts := engine.ProtocolUpdateOptions{
				ID:          id,
				Title:       optionalString(cmd, "title", title),
				Description: optionalString(cmd, "description", description),
				Priority:    optionalString(cmd, "priority", priority),
				AssignedTo:  optionalInt64(cmd, "assigned-to", assignedTo),
				ClearDates:  clearDates,
				ActorID:     actor,
			}
			if opts.DateRequired, err = parseDate(required); err != nil {
				return err
			}
			if opts.ExpectedCompletion, err = parseDate(expected); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProtocol(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "Low, Medium or High")
	cmd.Flags().Int64Var(&assignedTo, "assigned-to", 0, "personnel id")
	cmd.Flags().StringVar(&required, "date-required", "", "date the customer needs it by")
	cmd.Flags().StringVar(&expected, "expected-completion", "", "expected completion date")
	cmd.Flags().BoolVar(&clearDates, "clear-dates", false, "remove both dates")
	return cmd
}

func protocolDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a protocol that has no history beyond its creation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteProtocol(ctx, id, actor); err != nil {
					return err
				}
				fmt.Println("deleted protocol", id)
				return nil
			})
		},
	}
}

func protocolStatusCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a protocol to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				to, err := resolveStatus(e, args[1])
				if err != nil {
					return err
				}
				evt, err := e.ChangeStatus(ctx, id, to, actor, notes)
				if err != nil {
					return err
				}
				return printJSONOrTable(evt)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "reason for the change")
	return cmd
}

func protocolCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <id> <text>",
		Short: "Add a comment",
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
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddComment(ctx, id, actor, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func protocolAttachCmd() *cobra.Command {
	var contentType, description string
	cmd := &cobra.Command{
		Use:   "attach <id> <file>",
		Short: "Upload a file into storage and record it on the protocol",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			actor, err := actorID()
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			name := filepath.Base(args[1])
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(name))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UploadAttachment(ctx, id, actor, name, contentType, description, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "MIME type (guessed from the extension when empty)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func protocolEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <id>",
		Short: "Raw event log in append order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.EventLog(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable("Seq", "Kind", "ID", "Actor", "At")
				for _, evt := range evts {
					h := evt.Header()
					tw.AppendRow(table.Row{h.Seq, evt.Kind(), h.ID, h.ActorID, h.CreatedAt.Format("2006-01-02 15:04:05")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func protocolTimelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <id>",
		Short: "Show the protocol history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Timeline(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("When", "Kind", "Actor", "Entry")
				tw.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 60}})
				for _, it := range items {
					tw.AppendRow(table.Row{it.Timestamp.Local().Format("2006-01-02 15:04"), it.Kind, it.ActorID, it.Content})
				}
				tw.Render()
				return nil
			})
		},
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"protodesk/internal/app"
	"protodesk/internal/config"
	"protodesk/internal/db"
	"protodesk/internal/engine"
	"protodesk/internal/logging"
)

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "pd",
	Short: "protodesk CLI",
	Long: `protodesk tracks service protocols (tickets) for customers.
- Protocol: a ticket with a number like 2024-0007, a customer, an assignee and a status.
- Statuses: configured in protodesk.yml; terminal statuses close the protocol for good.
- Event log: every status change, comment and attachment is appended, never edited.
- Timeline: the event log rendered newest first (pd protocol timeline).
- Reminders: dated notes on a protocol, posted to webhooks when due (pd serve).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(viper.GetString("log-level"), viper.GetBool("log-json"))
		if err != nil {
			return err
		}
		logger = l
		_, err = db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PROTODESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.Int64("actor-id", 0, "acting personnel id")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "log as JSON")
	for _, name := range []string{"workspace", "json", "actor-id", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(branchCmd())
	rootCmd.AddCommand(customerCmd())
	rootCmd.AddCommand(personnelCmd())
	rootCmd.AddCommand(protocolCmd())
	rootCmd.AddCommand(reminderCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage protodesk.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default protodesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate protodesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d statuses, %d webhooks\n", len(c.Statuses), len(c.Reminders.Webhooks))
			return nil
		},
	}
	cfg.AddCommand(initCmd, validateCmd)
	return cfg
}

func statusCmd() *cobra.Command {
	st := &cobra.Command{Use: "status", Short: "Inspect protocol statuses"}
	st.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items := e.Statuses.List()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Order", "Terminal")
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Name, s.OrderSequence, s.IsTerminal})
				}
				tw.Render()
				return nil
			})
		},
	})
	st.AddCommand(&cobra.Command{
		Use:   "counts",
		Short: "Protocol counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.StatusCounts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := newTable("Status", "Protocols")
				total := 0
				for _, s := range e.Statuses.List() {
					tw.AppendRow(table.Row{s.Name, counts[s.ID]})
					total += counts[s.ID]
				}
				tw.AppendFooter(table.Row{"Total", total})
				tw.Render()
				return nil
			})
		},
	})
	return st
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		return fn(ctx, a.Engine)
	})
}

func actorID() (int64, error) {
	id := viper.GetInt64("actor-id")
	if id <= 0 {
		return 0, fmt.Errorf("--actor-id (or PROTODESK_ACTOR_ID) is required")
	}
	return id, nil
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func optionalInt64(cmd *cobra.Command, flag string, value int64) *int64 {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func optionalBool(cmd *cobra.Command, flag string, value bool) *bool {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

// parseDate accepts RFC 3339 or a plain YYYY-MM-DD date.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", raw)
	}
	return &t, nil
}

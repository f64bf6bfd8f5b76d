package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"forestlog/internal/app"
	"forestlog/internal/config"
	"forestlog/internal/db"
	"forestlog/internal/domain"
	"forestlog/internal/engine"
	"forestlog/internal/game"
	"forestlog/internal/migrate"
	"forestlog/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Forestlog CLI",
	Long: `Forestlog turns finished tasks into trees.
- Logs: every task you log earns points by effort (seed, sapling, oak) and plants a tree.
- Levels: every 500 points (configurable) is a new level; higher levels unlock rarer trees.
- Streaks: daily streaks grow with consecutive days, weekly streaks close on Sunday with 5+ active days, monthly streaks count consecutive months.
- Milestones: badges for 3, 7, 10 and 30 day streaks, each earned once.
- Sharing: public profiles can publish a forest link others can view and like.
- Workspace: .forestlog holds the database; forestlog.yml holds the rules.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FORESTLOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("user", "u", "", "username to act as")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(streaksCmd())
	rootCmd.AddCommand(milestonesCmd())
	rootCmd.AddCommand(shareCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(configCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				version, err := migrate.Version(ctx, ws.DB)
				if err != nil {
					return err
				}
				out := map[string]any{
					"workspace":      ws.Path,
					"database":       db.Path(ws.Path),
					"config":         ws.ConfigPath,
					"schema_version": version,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Initialized forestlog workspace in %s\n", ws.Path)
				fmt.Printf("  database: %s (schema v%d)\n", out["database"], version)
				fmt.Printf("  config:   %s\n", ws.ConfigPath)
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the REST API, OpenAPI document, Swagger UI at /docs and Prometheus metrics at /metrics. Requires FORESTLOG_JWT_SECRET.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := app.Open(ctx, viper.GetString("workspace"), app.Options{RequireSecret: true})
			if err != nil {
				return err
			}
			defer ws.Close()
			if !cmd.Flags().Changed("addr") && ws.Config.Server.Addr != "" {
				addr = ws.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && ws.Config.Server.BasePath != "" {
				basePath = ws.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Logger: ws.Logger})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(ctx, ws.Engine, ws.Logger)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			ws.Logger.Info("serving forestlog api",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Int("webhooks", len(ws.Config.Webhooks)),
			)
			fmt.Fprintf(os.Stderr, "Serving Forestlog API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api/v1", "API base path")
	return cmd
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage users"}
	u.AddCommand(userRegisterCmd())
	u.AddCommand(userShowCmd())
	return u
}

func userRegisterCmd() *cobra.Command {
	var username, email, password string
	var public bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("FORESTLOG_PASSWORD")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Register(ctx, engine.RegisterInput{Username: username, Email: email, Password: password})
				if err != nil {
					return err
				}
				u := s.User
				if public {
					if u, err = e.UpdateProfile(ctx, u.ID, engine.ProfileUpdate{IsPublic: &public}); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("Registered %s (%s)\n", u.Username, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (or FORESTLOG_PASSWORD)")
	cmd.Flags().BoolVar(&public, "public", false, "make the profile public")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [username]",
		Short: "Show a user profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				name := viper.GetString("user")
				if len(args) == 1 {
					name = args[0]
				}
				if name == "" {
					return fmt.Errorf("username required; pass it as an argument or use --user")
				}
				u, err := e.GetUserByUsername(ctx, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				lastLog := "-"
				if u.LastLogDate != nil {
					lastLog = *u.LastLogDate
				}
				tw := newTable()
				tw.AppendRows([]table.Row{
					{"ID", u.ID},
					{"Username", u.Username},
					{"Email", u.Email},
					{"Points", u.TotalPoints},
					{"Level", u.CurrentLevel},
					{"Public", u.IsPublic},
					{"Last log", lastLog},
					{"Joined", u.CreatedAt},
				})
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Log tasks and browse your forest",
		Long:  "Every logged task plants a tree and advances your streaks.",
	}
	l.AddCommand(logAddCmd())
	l.AddCommand(logListCmd())
	l.AddCommand(logTodayCmd())
	l.AddCommand(logWeekCmd())
	l.AddCommand(logDeleteCmd())
	return l
}

func logAddCmd() *cobra.Command {
	var effort string
	cmd := &cobra.Command{
		Use:   "add <task text>",
		Short: "Log a completed task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				res, err := e.CreateLog(ctx, u.ID, engine.LogInput{
					TaskText:    strings.Join(args, " "),
					EffortLevel: effort,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s +%d points (total %d, level %d)\n", res.Log.TreeEmoji, res.Log.PointsEarned, res.NewTotalPoints, res.NewLevel)
				fmt.Printf("Daily streak: %d\n", res.NewStreak)
				if res.LevelUp {
					fmt.Printf("Level up! You reached level %d\n", res.NewLevel)
				}
				if res.MilestoneEarned != nil {
					fmt.Printf("Milestone earned: %s\n", res.MilestoneEarned.BadgeName)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&effort, "effort", "e", string(game.EffortSapling), "effort level (seed|sapling|oak)")
	return cmd
}

func logListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				items, err := e.ListLogs(ctx, u.ID, limit, offset)
				if err != nil {
					return err
				}
				return printLogs(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", engine.DefaultLogLimit, "max logs to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "logs to skip")
	return cmd
}

func logTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Logs dated today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				items, err := e.TodayLogs(ctx, u.ID)
				if err != nil {
					return err
				}
				return printLogs(items)
			})
		},
	}
}

func logWeekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "week",
		Short: "Points per day for the last seven days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				days, err := e.WeekPoints(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(days)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Day", "Date", "Points", ""})
				total := 0
				for _, d := range days {
					total += d.Points
					tw.AppendRow(table.Row{d.Day, d.Date, d.Points, strings.Repeat("█", d.Points/10)})
				}
				tw.AppendFooter(table.Row{"", "Total", total, ""})
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func logDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a log (points and streaks are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				if err := e.DeleteLog(ctx, u.ID, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted log %s\n", args[0])
				return nil
			})
		},
	}
}

func streaksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streaks",
		Short: "Show current and best streaks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				set, err := e.Streaks(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(set)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Streak", "Current", "Best", "Started", "Last updated"})
				for _, st := range game.StreakTypes {
					s := set.Get(st)
					tw.AppendRow(table.Row{st, s.CurrentCount, s.BestCount, dateOrDash(s.StartedAt), dateOrDash(s.LastUpdated)})
				}
				fmt.Println(tw.Render())
				if set.Weekly.Meta.CurrentWeek != "" {
					fmt.Printf("Week %s: %d active day(s)\n", set.Weekly.Meta.CurrentWeek, set.Weekly.Meta.DaysActiveThisWeek)
				}
				return nil
			})
		},
	}
}

func milestonesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "milestones",
		Short: "List earned badges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				items, err := e.Milestones(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Badge", "Type", "Earned", "Description"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.BadgeName, m.BadgeType, m.EarnedAt, m.Description})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func shareCmd() *cobra.Command {
	s := &cobra.Command{Use: "share", Short: "Share your forest"}
	s.AddCommand(shareCreateCmd())
	s.AddCommand(shareListCmd())
	s.AddCommand(shareRevokeCmd())
	return s
}

func shareCreateCmd() *cobra.Command {
	var shareType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a share link (profile must be public)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				share, err := e.CreateShare(ctx, u.ID, engine.ShareInput{ShareType: shareType})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(share)
				}
				fmt.Printf("Share token: %s (%s)\n", share.ShareToken, share.ShareType)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&shareType, "type", engine.ShareProfile, "share type (profile|weekly|monthly)")
	return cmd
}

func shareListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List share links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				items, err := e.ListShares(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Token", "Type", "Active", "Views", "Created"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ShareToken, s.ShareType, s.IsActive, s.ViewCount, s.CreatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func shareRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Deactivate a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				if err := e.RevokeShare(ctx, u.ID, args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:   "events",
		Short: "Event log",
		Long:  "The diary of everything that happened: logs, streak resets, level ups, badges and shares.",
	}
	ev.AddCommand(eventsTailCmd())
	return ev
}

func eventsTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := ""
				if name := viper.GetString("user"); name != "" {
					u, err := e.GetUserByUsername(ctx, name)
					if err != nil {
						return err
					}
					userID = u.ID
				}
				items, err := e.Repo.LatestEvents(ctx, n, 0, userID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Payload"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.Payload})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Effort", "Min", "Max"})
			for _, e := range game.Efforts {
				r := cfg.Game.Effort[string(e)]
				tw.AppendRow(table.Row{e, r.Min, r.Max})
			}
			fmt.Println(tw.Render())
			fmt.Printf("Timezone: %s, points per level: %d\n", cfg.Location(), cfg.Game.PointsPerLevel)

			mt := newTable()
			mt.AppendHeader(table.Row{"Threshold", "Badge", "Type"})
			for _, m := range cfg.Rules().Milestones {
				mt.AppendRow(table.Row{m.Threshold, m.BadgeName, m.BadgeType})
			}
			fmt.Println(mt.Render())
			return nil
		},
	}
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), app.Options{LogWriter: os.Stderr})
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		return fn(ctx, ws.Engine)
	})
}

func withUser(ctx context.Context, fn func(context.Context, engine.Engine, domain.User) error) error {
	name := strings.TrimSpace(viper.GetString("user"))
	if name == "" {
		return fmt.Errorf("user not specified; use --user or FORESTLOG_USER")
	}
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		u, err := e.GetUserByUsername(ctx, name)
		if err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				return fmt.Errorf("user %q not found", name)
			}
			return err
		}
		return fn(ctx, e, u)
	})
}

func printLogs(items []domain.Log) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Date", "Tree", "Effort", "Points", "Task"})
	for _, l := range items {
		tw.AppendRow(table.Row{l.ID, l.Date, l.TreeEmoji, l.EffortLevel, l.PointsEarned, l.TaskText})
	}
	fmt.Println(tw.Render())
	return nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dateOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return game.FormatDate(*t)
}

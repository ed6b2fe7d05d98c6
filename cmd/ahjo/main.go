package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ahjosync/internal/ahjo"
	"ahjosync/internal/config"
	"ahjosync/internal/db"
	"ahjosync/internal/domain"
	"ahjosync/internal/migrate"
	"ahjosync/internal/queue"
	"ahjosync/internal/repo"
	"ahjosync/internal/server"
	"ahjosync/internal/sources"
	"ahjosync/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:   "ahjo",
	Short: "Ahjo case-management sync CLI",
	Long: `ahjo synchronizes case, organization, decisionmaker, and trustee records
from the Helsinki Ahjo API into a local store. Changes arrive as queue
tasks, either pushed through the notification endpoint or enqueued by
bulk backfills, and workers drain them with retry escalation
(primary -> retry -> error).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AHJOSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("lang", "", "request language (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("lang", rootCmd.PersistentFlags().Lookup("lang"))
}

func registerCommands() {
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(enqueueCmd())
	rootCmd.AddCommand(workCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func queueCmd() *cobra.Command {
	q := &cobra.Command{Use: "queue", Short: "Inspect and manage work queues"}
	q.AddCommand(queueListCmd())
	q.AddCommand(queueCountsCmd())
	q.AddCommand(queueClearCmd())
	return q
}

func queueListCmd() *cobra.Command {
	var queueName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), func(ctx context.Context, m *queue.Manager) error {
				tasks, err := m.List(ctx, domain.Queue(queueName))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Entity", "Type", "Origin", "Created", "Claimed By"})
				for _, t := range tasks {
					claimed := ""
					if t.ClaimedBy != nil {
						claimed = *t.ClaimedBy
					}
					tw.AppendRow(table.Row{t.ID, t.Payload.EntityID, t.Payload.Type, t.Payload.Origin, t.CreatedAt, claimed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&queueName, "queue", string(domain.QueuePrimary), "queue name (primary, retry, error)")
	return cmd
}

func queueCountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Show task counts per queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), func(ctx context.Context, m *queue.Manager) error {
				counts, err := m.Counts(ctx)
				if err != nil {
					return err
				}
				out := map[string]int{}
				for _, q := range []domain.Queue{domain.QueuePrimary, domain.QueueRetry, domain.QueueError} {
					out[string(q)] = counts[q]
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func queueClearCmd() *cobra.Command {
	var queueName string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every task from a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), func(ctx context.Context, m *queue.Manager) error {
				n, err := m.Clear(ctx, domain.Queue(queueName))
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d tasks from %s\n", n, queueName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&queueName, "queue", "", "queue name (primary, retry, error)")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}

func enqueueCmd() *cobra.Command {
	var id, taskType, change, queueName string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue one synchronization task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), func(ctx context.Context, m *queue.Manager) error {
				payload := domain.TaskPayload{
					EntityID: id,
					Type:     taskType,
					Change:   change,
					Origin:   domain.OriginBulk,
				}
				taskID, dup, err := m.Enqueue(ctx, domain.Queue(queueName), payload)
				if err != nil {
					return err
				}
				if dup {
					fmt.Printf("Duplicate: %s %s already queued in %s\n", taskType, id, queueName)
					return nil
				}
				return printJSONOrTable(map[string]string{"task_id": taskID, "queue": queueName})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "entity id")
	cmd.Flags().StringVar(&taskType, "type", "", "task type (case, organization, decisionmaker, trustee)")
	cmd.Flags().StringVar(&change, "change", "", "change kind (Added, Updated, Deleted)")
	cmd.Flags().StringVar(&queueName, "queue", string(domain.QueuePrimary), "target queue")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func workCmd() *cobra.Command {
	var queueName, workerID string
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Drain a queue once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workerID == "" {
				workerID = "cli-" + uuid.New().String()[:8]
			}
			return withStack(cmd.Context(), func(ctx context.Context, s stack) error {
				w := &worker.Worker{
					ID:     workerID,
					Queue:  s.manager,
					Exec:   &sources.ImportExecutor{Client: s.client, Repo: s.repo, Lang: s.lang},
					Marker: s.repo,
					Windows: worker.Windows{
						Notification: time.Duration(s.cfg.Worker.NotificationWindow),
						Bulk:         time.Duration(s.cfg.Worker.BulkWindow),
					},
					Events: s.manager.Events,
				}
				stats, err := w.Run(ctx, domain.Queue(queueName))
				if err != nil && !errors.Is(err, worker.ErrSuspended) {
					return err
				}
				if errors.Is(err, worker.ErrSuspended) {
					fmt.Println("run suspended: remote system unreachable")
				}
				out := map[string]any{
					"claimed":   stats.Claimed,
					"completed": stats.Completed,
					"escalated": stats.Escalated,
					"failed":    len(stats.Failures),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Queue %s: %d claimed, %d completed, %d escalated, %d failed\n",
					queueName, stats.Claimed, stats.Completed, stats.Escalated, len(stats.Failures))
				for _, f := range stats.Failures {
					fmt.Println("  ", f)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&queueName, "queue", string(domain.QueuePrimary), "queue to drain")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "worker identifier (random if omitted)")
	return cmd
}

func backfillCmd() *cobra.Command {
	b := &cobra.Command{Use: "backfill", Short: "Bulk-import records from the remote system"}
	b.AddCommand(backfillCasesCmd())
	b.AddCommand(backfillDecisionmakersCmd())
	b.AddCommand(backfillOrgsCmd())
	b.AddCommand(backfillCompositionsCmd())
	return b
}

func backfillCasesCmd() *cobra.Command {
	var after, before string
	var chunkDays int
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Import cases handled in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseRange(after, before)
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), func(ctx context.Context, s stack) error {
				syncer := &sources.Syncer{Client: s.client, Repo: s.repo, Lang: s.lang}
				res, err := syncer.BackfillCases(ctx, from, to, s.chunk(chunkDays))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&before, "before", "", "range end, exclusive (YYYY-MM-DD)")
	cmd.Flags().IntVar(&chunkDays, "chunk-days", 0, "chunk size in days (config default if omitted)")
	_ = cmd.MarkFlagRequired("after")
	_ = cmd.MarkFlagRequired("before")
	return cmd
}

func backfillDecisionmakersCmd() *cobra.Command {
	var after, before string
	var chunkDays int
	cmd := &cobra.Command{
		Use:   "decisionmakers",
		Short: "Import decisionmakers active in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseRange(after, before)
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), func(ctx context.Context, s stack) error {
				syncer := &sources.Syncer{Client: s.client, Repo: s.repo, Lang: s.lang}
				res, err := syncer.BackfillDecisionmakers(ctx, from, to, s.chunk(chunkDays))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&before, "before", "", "range end, exclusive (YYYY-MM-DD)")
	cmd.Flags().IntVar(&chunkDays, "chunk-days", 0, "chunk size in days (config default if omitted)")
	_ = cmd.MarkFlagRequired("after")
	_ = cmd.MarkFlagRequired("before")
	return cmd
}

func backfillOrgsCmd() *cobra.Command {
	var rootID string
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "orgs",
		Short: "Import an organization tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), func(ctx context.Context, s stack) error {
				syncer := &sources.Syncer{Client: s.client, Repo: s.repo, Lang: s.lang}
				n, err := syncer.OrganizationTree(ctx, rootID, maxDepth)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"stored": n})
			})
		},
	}
	cmd.Flags().StringVar(&rootID, "root", "", "root organization id")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 3, "levels below the root to traverse")
	_ = cmd.MarkFlagRequired("root")
	return cmd
}

func backfillCompositionsCmd() *cobra.Command {
	var ids []string
	cmd := &cobra.Command{
		Use:   "compositions",
		Short: "Refresh decisionmaker compositions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), func(ctx context.Context, s stack) error {
				syncer := &sources.Syncer{Client: s.client, Repo: s.repo, Lang: s.lang}
				n, err := syncer.Compositions(ctx, ids)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"refreshed": n})
			})
		},
	}
	cmd.Flags().StringArrayVar(&ids, "id", nil, "decisionmaker id (repeatable; every local one if omitted)")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Read the sync event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, queueName string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail sync events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				evts, err := r.LatestEvents(ctx, n, evtType, queueName)
				if err != nil {
					return err
				}
				return printJSONOrTable(evts)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&queueName, "queue", "", "queue filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the change-notification HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), func(ctx context.Context, m *queue.Manager) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("AHJOSYNC_JWT_SECRET")}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("AHJOSYNC_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Queue: m, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving notification API on http://%s%s\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

// stack bundles everything a full sync command needs.
type stack struct {
	cfg     *config.Config
	client  *ahjo.Client
	repo    repo.Repo
	manager *queue.Manager
	lang    string
}

func (s stack) chunk(chunkDays int) time.Duration {
	if chunkDays <= 0 {
		chunkDays = s.cfg.Backfill.ChunkDays
	}
	return time.Duration(chunkDays) * 24 * time.Hour
}

func withStack(ctx context.Context, fn func(context.Context, stack) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	lang := viper.GetString("lang")
	if lang == "" {
		lang = cfg.Remote.Language
	}
	return fn(ctx, stack{
		cfg:     cfg,
		client:  ahjo.New(cfg),
		repo:    repo.Repo{DB: conn},
		manager: queue.NewManager(conn),
		lang:    lang,
	})
}

func withManager(ctx context.Context, fn func(context.Context, *queue.Manager) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, queue.NewManager(conn))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func parseRange(after, before string) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", after)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --after: %w", err)
	}
	to, err := time.Parse("2006-01-02", before)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --before: %w", err)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--before must be after --after")
	}
	return from, to, nil
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

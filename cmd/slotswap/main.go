package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Freeeeeet/slotswap/internal/app"
	"github.com/Freeeeeet/slotswap/internal/config"
	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/Freeeeeet/slotswap/internal/notify"
	"github.com/Freeeeeet/slotswap/internal/server"
	"github.com/Freeeeeet/slotswap/internal/service"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:           "slotswap",
	Short:         "Slot exchange service",
	Long:          "Slotswap lets users publish time slots, swap them with each other and recover deleted slots from the trash.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().String("env-file", ".env", "path to the .env file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("env-file", rootCmd.PersistentFlags().Lookup("env-file"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(trashCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

// deps - всё, что нужно командам: конфиг, логгер, база и сервисы
type deps struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *app.Database
	notifier  *app.Notifier
	slots     *service.SlotService
	exchange  *service.ExchangeService
	retention *service.RetentionService
}

func (r *deps) Close() {
	if r.notifier != nil {
		r.notifier.Close()
	}
	if r.db != nil {
		r.db.Close()
	}
	_ = r.logger.Sync()
}

// withRuntime поднимает окружение, применяет миграции и вызывает fn
func withRuntime(ctx context.Context, withNotifications bool, fn func(ctx context.Context, rt *deps) error) error {
	cfg, err := config.Load(viper.GetString("env-file"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := app.NewLogger(cfg.Environment)
	if err != nil {
		return err
	}

	rt := &deps{cfg: cfg, logger: logger}
	defer rt.Close()

	rt.db, err = app.OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := rt.db.Migrate(ctx, logger); err != nil {
		return err
	}

	var sink notify.Sink = notify.NewLogSink(logger)
	if withNotifications {
		rt.notifier, err = app.NewNotifier(ctx, cfg, logger)
		if err != nil {
			return err
		}
		sink = rt.notifier
	}

	rt.slots = service.NewSlotService(rt.db.Store, cfg.MaxSlotDuration, nil, logger)
	rt.exchange = service.NewExchangeService(rt.db.Store, sink, cfg.PendingRequestTTL, nil, logger)
	rt.retention = service.NewRetentionService(rt.db.Store, sink, cfg.RetentionWindow, cfg.ExpiringSoonHorizon, nil, logger)

	return fn(ctx, rt)
}

func serveCmd() *cobra.Command {
	var addr string
	var noSweep bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and background sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), true, func(ctx context.Context, rt *deps) error {
				if rt.cfg.JWTSecret == "" {
					return errors.New("JWT_SECRET is required for bearer auth")
				}
				if addr == "" {
					addr = rt.cfg.HTTPAddr
				}

				handler, err := server.New(server.Config{
					Slots:     rt.slots,
					Exchange:  rt.exchange,
					Retention: rt.retention,
					BasePath:  "/v1",
					Auth:      server.AuthConfig{JWTSecret: rt.cfg.JWTSecret},
					RateLimit: server.RateLimitConfig{RPS: rt.cfg.RateLimitRPS, Burst: rt.cfg.RateLimitBurst},
					Logger:    rt.logger,
				})
				if err != nil {
					return err
				}
				handler.StartJanitor(ctx)

				if !noSweep {
					scheduler := app.NewScheduler(rt.retention, rt.exchange, rt.cfg.SweepInterval, rt.logger)
					scheduler.Start(ctx)
					defer scheduler.Stop()
				}

				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return fmt.Errorf("listen %s: %w", addr, err)
				}
				srv := &http.Server{
					Handler:           handler,
					ReadHeaderTimeout: 10 * time.Second,
				}

				rt.logger.Info("Serving slotswap API",
					zap.String("addr", ln.Addr().String()),
					zap.String("openapi", "/openapi.json"),
					zap.String("docs", "/docs"),
				)
				return runHTTPServer(ctx, srv, ln, rt.logger)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run background sweeps in this process")
	return cmd
}

// runHTTPServer обслуживает запросы до отмены ctx. Возвращается только после
// того, как Shutdown дождался активных обработчиков: после этого можно
// закрывать уведомления и базу.
func runHTTPServer(ctx context.Context, srv *http.Server, ln net.Listener, logger *zap.Logger) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown failed", zap.Error(err))
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone

	logger.Info("HTTP server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), false, func(ctx context.Context, rt *deps) error {
				version, err := rt.db.MigrationVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Schema version: %d\n", version)
				return nil
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one pass of purge, expiry warnings and stale request expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), true, func(ctx context.Context, rt *deps) error {
				report := app.NewScheduler(rt.retention, rt.exchange, rt.cfg.SweepInterval, rt.logger).RunOnce(ctx)
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task", "Count"})
				tw.AppendRow(table.Row{"Expired exchange requests", report.ExpiredRequests})
				tw.AppendRow(table.Row{"Expiry warnings sent", report.Notified})
				tw.AppendRow(table.Row{"Slots purged", report.Purged})
				tw.Render()
				return nil
			})
		},
	}
}

func trashCmd() *cobra.Command {
	var expiring time.Duration
	cmd := &cobra.Command{
		Use:   "trash <user-id>",
		Short: "List a user's deleted slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			return withRuntime(cmd.Context(), false, func(ctx context.Context, rt *deps) error {
				var slots []*model.Slot
				if expiring > 0 {
					for slot, err := range rt.retention.ListExpiringSoon(ctx, userID, expiring) {
						if err != nil {
							return err
						}
						slots = append(slots, slot)
					}
				} else {
					var err error
					slots, err = rt.retention.ListTrash(ctx, userID)
					if err != nil {
						return err
					}
				}

				if viper.GetBool("json") {
					return printJSON(slots)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Window", "Was", "Deleted", "Recoverable until"})
				for _, s := range slots {
					prior := ""
					if s.PriorStatus != nil {
						prior = string(*s.PriorStatus)
					}
					tw.AppendRow(table.Row{
						s.ID,
						s.Title,
						s.StartTime.Format("2006-01-02 15:04") + " - " + s.EndTime.Format("15:04"),
						prior,
						formatTime(s.DeletedAt),
						formatTime(s.RecoveryExpiresAt),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&expiring, "expiring", 0, "only slots whose recovery period ends within this duration")
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

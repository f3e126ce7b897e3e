package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/fluentbuddy/internal/bot"
	"github.com/example/fluentbuddy/internal/coach"
	"github.com/example/fluentbuddy/internal/database"
	"github.com/example/fluentbuddy/internal/metrics"
	"github.com/example/fluentbuddy/internal/scheduler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, reminder scheduler and metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.TelegramBotToken == "" {
				return fmt.Errorf("FLUENTBUDDY_TELEGRAM_BOT_TOKEN environment variable is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
	cmd.Flags().String("metrics-addr", "", "Address of the Prometheus metrics endpoint; empty disables it")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	registry := coach.NewRegistry(a.coachFactory())
	learners := database.NewLearnerRepository(a.db)

	botCfg := bot.DefaultConfig()
	botCfg.Token = a.cfg.TelegramBotToken
	b, err := bot.New(botCfg, learners, registry)
	if err != nil {
		return err
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.NotificationStartHour = a.cfg.NotificationStartHour
	schedCfg.NotificationEndHour = a.cfg.NotificationEndHour
	schedCfg.SyncInterval = a.cfg.SyncInterval
	if a.remote == nil {
		schedCfg.SyncInterval = 0
	}
	sched := scheduler.New(schedCfg, learners, registry, b)
	if err := sched.Start(); err != nil {
		return err
	}

	var srv *http.Server
	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Println("Bot started. Press Ctrl+C to stop.")
		err := b.Start(gctx)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return fmt.Errorf("bot error: %w", err)
		case gctx.Err() == nil:
			return errors.New("bot stopped receiving updates")
		}
		return nil
	})
	if srv != nil {
		g.Go(func() error {
			log.Printf("Serving metrics on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Stopping scheduler...")
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error during metrics shutdown: %v", err)
			}
		}
		if err := registry.Flush(shutdownCtx); err != nil {
			return fmt.Errorf("failed to flush learner progress: %w", err)
		}
		log.Println("Bot stopped successfully")
		return nil
	})
	return g.Wait()
}

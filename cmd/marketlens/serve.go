package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"marketlens/config"
	"marketlens/internal/api"
	"marketlens/internal/model"
	"marketlens/internal/scheduler"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		liveSymbol string
		runOnStart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduled watch list and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.startHealth(ctx)

			deps := api.Deps{
				Analyzer: a.service,
				Resolver: a.resolver,
				Health:   a.health,
				Metrics:  promhttp.Handler(),
			}
			if a.archive != nil {
				deps.Archive = a.archive
			}
			if a.redis != nil {
				deps.Latest = a.redis
			}

			if liveSymbol != "" {
				tf, err := model.ParseTimeframe(cfg.Defaults.Timeframe)
				if err != nil {
					return err
				}
				sess, err := a.subscribe(ctx, liveSymbol, tf)
				if err != nil {
					return err
				}
				archived := make(chan struct{})
				go func() {
					a.archiveSnapshots(ctx, sess.Snapshots())
					close(archived)
				}()
				defer func() { <-archived }()
				defer sess.Close()
				deps.Live = sess
				log.Printf("[serve] live session %s for %s %s", sess.ID(), liveSymbol, tf)
			}

			if len(cfg.Schedule.Watch) > 0 {
				sched, err := newScheduler(ctx, a, cfg)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
				if runOnStart {
					go sched.RunNow()
				}
			}

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           api.NewRouter(deps),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Printf("[serve] http listening on %s", cfg.HTTPAddr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Println("[serve] shutting down")
			case err := <-errCh:
				return err
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&liveSymbol, "live", "", "also run a live session for this symbol at the default timeframe")
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "analyze the watch list once at startup")
	return cmd
}

func newScheduler(ctx context.Context, a *app, cfg *config.Config) (*scheduler.Scheduler, error) {
	jobs := make([]scheduler.Job, 0, len(cfg.Schedule.Watch))
	for _, w := range cfg.Schedule.Watch {
		sym, tf, err := config.ParseWatch(w)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, scheduler.Job{Symbol: sym, Timeframe: tf})
	}
	sched := scheduler.New(ctx, a.service, jobs)
	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		return nil, err
	}
	return sched, nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"marketlens/internal/metrics"
	"marketlens/internal/model"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var tf string

	cmd := &cobra.Command{
		Use:   "watch SYMBOL",
		Short: "Follow one symbol live and print every bar update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tf == "" {
				tf = root.cfg.Defaults.Timeframe
			}
			timeframe, err := model.ParseTimeframe(tf)
			if err != nil {
				return err
			}

			a, err := newApp(root.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metricsSrv := metrics.NewServer(root.cfg.MetricsAddr, a.health, nil)
			metricsSrv.Start()
			defer metricsSrv.Stop(context.Background())
			a.startHealth(ctx)

			sess, err := a.subscribe(ctx, args[0], timeframe)
			if err != nil {
				return err
			}
			defer sess.Close()
			log.Printf("[watch] session %s started", sess.ID())

			archived := make(chan struct{})
			go func() {
				a.archiveSnapshots(ctx, sess.Snapshots())
				close(archived)
			}()

			for snap := range sess.Snapshots() {
				tail, ok := model.Last(snap.Bars)
				if !ok {
					fmt.Fprintf(os.Stdout, "#%d %s %s state=%s (no bars)\n", snap.Seq, snap.Symbol, snap.Timeframe, snap.State)
					continue
				}
				fmt.Fprintf(os.Stdout, "#%d %s %s state=%s cause=%s bars=%d t=%d o=%g h=%g l=%g c=%g\n",
					snap.Seq, snap.Symbol, snap.Timeframe, snap.State, snap.Cause, len(snap.Bars),
					tail.Time, tail.Open, tail.High, tail.Low, tail.Close)
			}
			<-archived
			return nil
		},
	}

	cmd.Flags().StringVar(&tf, "tf", "", "timeframe (default from config)")
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"marketlens/internal/analysis"
	"marketlens/internal/model"
	"marketlens/internal/portfolio"
)

type analyzeOutput struct {
	model.Report
	Sizing *portfolio.Sizing `json:"sizing,omitempty"`
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var (
		tf      string
		noSetup bool
		balance float64
		riskPct float64
	)

	cmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Run one analysis and print the report as JSON",
		Example: `  marketlens analyze XAUUSD --tf 1h
  marketlens analyze AAPL --tf d1 --balance 10000 --risk 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if tf == "" {
				tf = root.cfg.Defaults.Timeframe
			}
			rep, err := a.service.Analyze(cmd.Context(), analysis.Request{
				Symbol:    args[0],
				Timeframe: tf,
				WithSetup: !noSetup,
			})
			if err != nil {
				return err
			}

			out := analyzeOutput{Report: rep}
			if balance > 0 && rep.Setup != nil {
				sizing, err := portfolio.NewRiskManager(portfolio.DefaultRiskLimits()).SizeSetup(balance, riskPct, *rep.Setup)
				if err != nil {
					return fmt.Errorf("position sizing: %w", err)
				}
				out.Sizing = &sizing
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&tf, "tf", "", "timeframe (1m 5m 15m 30m 1h 4h 1d 1w 1M or an alias)")
	cmd.Flags().BoolVar(&noSetup, "no-setup", false, "skip trade setup generation")
	cmd.Flags().Float64Var(&balance, "balance", 0, "account balance for position sizing (0 disables)")
	cmd.Flags().Float64Var(&riskPct, "risk", 1, "risk per trade, percent of balance")
	return cmd
}

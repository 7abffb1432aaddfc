package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/virocov/pkg/model"
)

func (a *app) newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs and their stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Ledger == "" {
				return fmt.Errorf("no ledger configured")
			}
			logger, err := a.newLogger(cfg)
			if err != nil {
				return err
			}
			st, err := openLedger(cmd.Context(), cfg.LedgerPath(), logger)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.stdout, "No runs recorded.")
				return nil
			}

			for i, run := range runs {
				if i > 0 {
					fmt.Fprintln(a.stdout)
				}
				fmt.Fprintf(a.stdout, "%s  %-8s  %s  %s\n", run.ID, run.State, run.StartedAt.Local().Format(time.DateTime), strings.Join(run.Samples, ","))
				if run.Error != "" {
					fmt.Fprintf(a.stdout, "  error: %s\n", run.Error)
				}

				stageRuns, err := st.ListStageRuns(cmd.Context(), run.ID)
				if err != nil {
					return fmt.Errorf("list stage runs: %w", err)
				}
				for _, sr := range stageRuns {
					fmt.Fprintf(a.stdout, "  %-12s  %-18s  %-8s  %4s  %s\n",
						displaySample(sr), sr.Stage, sr.State, exitText(sr.ExitCode), sr.Duration().Round(time.Millisecond))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func displaySample(sr *model.StageRun) string {
	if sr.Sample == "" {
		return "-"
	}
	return sr.Sample
}

func exitText(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprint(*code)
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/virocov/internal/logging"
	"github.com/me/virocov/internal/stages"
	"github.com/me/virocov/internal/staging"
)

func (a *app) newPrintCommandCmd() *cobra.Command {
	var sampleID string
	cmd := &cobra.Command{
		Use:   "print-command <stage>",
		Short: "Print the command a stage would run, without executing it",
		Long: "print-command prints the command line of one stage for a configured sample.\n\nStages: " +
			strings.Join([]string{stages.IndexBuild, stages.AlignPaired, stages.AlignSingle, stages.Coverage}, ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.Discard()

			sample, err := pickSample(cfg.Samples, sampleID, args[0])
			if err != nil {
				return err
			}
			engine, err := a.newEngine(cfg, logger)
			if err != nil {
				return err
			}
			inv := a.newInvoker(cfg, engine, nil, logger, cfgPath)

			req, err := inv.StageRequest(args[0], sample)
			if err != nil {
				return err
			}
			line, err := engine.CommandLine(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, line)
			return nil
		},
	}
	cmd.Flags().StringVar(&sampleID, "sample", "", "Sample accession (default: first configured sample of a matching layout)")
	return cmd
}

// pickSample finds the named sample, or the first one the stage applies to.
func pickSample(samples []staging.Sample, id, stage string) (staging.Sample, error) {
	for _, s := range samples {
		if id != "" {
			if s.ID == id {
				return s, nil
			}
			continue
		}
		switch {
		case stage == stages.AlignPaired && s.Layout != staging.PairedEnd,
			stage == stages.AlignSingle && s.Layout != staging.SingleEnd:
			continue
		}
		return s, nil
	}
	if id != "" {
		return staging.Sample{}, fmt.Errorf("sample %s is not configured", id)
	}
	return staging.Sample{}, fmt.Errorf("no configured sample for stage %s", stage)
}

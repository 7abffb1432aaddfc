package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/virocov/internal/flagfilter"
)

func (a *app) newExclusionFlagsCmd() *cobra.Command {
	var mask bool
	cmd := &cobra.Command{
		Use:   "exclusion-flags",
		Short: "Print the alignment flags excluded from coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			set := flagfilter.ComputeExclusionSet(cfg.IncludeSecondary)
			if mask {
				fmt.Fprintf(a.stdout, "0x%x\n", set.Mask())
				return nil
			}
			fmt.Fprintln(a.stdout, set.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&mask, "mask", false, "Print the bitmask instead of the flag names")
	return cmd
}

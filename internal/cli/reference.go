package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/virocov/internal/reference"
)

func (a *app) newFilterReferenceCmd() *cobra.Command {
	var (
		opts            reference.Options
		out             string
		noIgnoreVersion bool
	)
	cmd := &cobra.Command{
		Use:   "filter-reference",
		Short: "Keep the FASTA records whose accession is in a list",
		Long: `filter-reference copies the records of a viral FASTA (plain or gzip) whose
header accession appears in the list. Accessions match without their
version unless --no-ignore-version is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.FASTA == "" || out == "" {
				return errors.New("--fasta and --out are required")
			}
			opts.IgnoreVersion = !noIgnoreVersion

			stats, err := reference.Prepare(cmd.Context(), opts, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "Kept %d / %d records\n", stats.Kept, stats.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.FASTA, "fasta", "", "Master FASTA file")
	cmd.Flags().StringVar(&opts.List, "list", "", "Accession list (default: keep every record)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output FASTA file")
	cmd.Flags().BoolVar(&noIgnoreVersion, "no-ignore-version", false, "Require accession versions to match")
	return cmd
}

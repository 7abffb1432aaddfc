// virocov computes viral genome coverage for a list of sequencing runs.
package main

import (
	"fmt"
	"os"

	"github.com/me/virocov/internal/cli"
	"github.com/me/virocov/internal/pipeline"
)

func main() {
	err := cli.NewRootCmd(os.Stdout, os.Stderr).Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "virocov:", err)
	}
	os.Exit(pipeline.ExitCode(err))
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-explorer/internal/explorer"
	"github.com/pdiddy/paper-explorer/internal/ingest"
	"github.com/pdiddy/paper-explorer/internal/progress"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Fetch every shard and load the papers into the local store",
	Long: `Load fetches the manifest from the content root, downloads every shard it
lists in parallel, decompresses and decodes them, and replaces the local store
with the deduplicated papers.

A shard that fails to download or decode is reported and skipped; the papers
from the remaining shards are still stored. Only a manifest or store failure
fails the command.`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().Bool("no-progress", false, "do not print progress to stderr")
	addFormatFlag(loadCmd)
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	var opts explorer.Options
	if !noProgress {
		opts.OnProgress = func(u progress.Update) {
			fmt.Fprintf(os.Stderr, "\r%5.1f%%  %-12s", u.Percent, u.Phase)
		}
	}

	e, err := openExplorer(cmd, opts)
	if err != nil {
		return err
	}
	defer e.Close()

	sum, err := e.Load(cmd.Context())
	if !noProgress {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	if ok, err := writeStructured(os.Stdout, format, loadReport{Summary: sum, Shards: e.Tasks()}); ok {
		return err
	}

	writeSummary(sum)
	writeTasks(os.Stdout, e.Tasks())
	if sum.NoData {
		return errors.New("no papers loaded")
	}
	return nil
}

type loadReport struct {
	ingest.Summary `yaml:",inline"`
	Shards         []types.IngestionTask `json:"shards" yaml:"shards"`
}

func writeSummary(sum ingest.Summary) {
	fmt.Printf("Shards:      %d (%d failed)\n", sum.Tasks, sum.FailedTasks)
	fmt.Printf("Records:     %d decoded, %d unique\n", sum.Raw, sum.Unique)
	fmt.Printf("Duplicates:  %d removed\n", sum.Duplicates)
	if sum.MissingID > 0 {
		fmt.Printf("Missing id:  %d dropped\n", sum.MissingID)
	}
}

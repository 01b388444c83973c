// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-explorer/internal/explorer"
	"github.com/pdiddy/paper-explorer/internal/query"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored papers one page at a time",
	Long: `List prints one page of the stored papers, narrowed by the topic, journal,
and year filters and ordered by the selected view. Filters combine with AND.

Views: date_added (newest first), topic, journal, year (newest first). Ties
are broken by date added, newest first.`,
	RunE: runList,
}

func init() {
	addViewFlags(listCmd)
	addFormatFlag(listCmd)
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	e, err := openExplorer(cmd, explorer.Options{})
	if err != nil {
		return err
	}
	defer e.Close()

	if err := applyViewFlags(cmd, e); err != nil {
		return err
	}
	applyPageFlag(cmd, e)

	page, err := e.CurrentPage(cmd.Context())
	if err != nil {
		return noDataHint(err)
	}
	return writePage(format, page)
}

// --- shared helpers ---

func addViewFlags(cmd *cobra.Command) {
	cmd.Flags().Int("page", 1, "page number, starting at 1")
	cmd.Flags().String("topic", "", "only papers with this topic")
	cmd.Flags().String("journal", "", "only papers from this journal")
	cmd.Flags().String("year", "", "only papers from this year")
	cmd.Flags().String("view", string(types.ViewDateAdded), "sort view: date_added, topic, journal, or year")
}

// applyViewFlags sets filters and view. Each resets the page, so the page
// flag is applied separately afterwards.
func applyViewFlags(cmd *cobra.Command, e *explorer.Explorer) error {
	name, _ := cmd.Flags().GetString("view")
	view, ok := types.ParseView(name)
	if !ok {
		return fmt.Errorf("unknown view %q: use date_added, topic, journal, or year", name)
	}
	e.SetView(view)

	for _, d := range []types.FilterDimension{types.FilterTopic, types.FilterJournal, types.FilterYear} {
		if v, _ := cmd.Flags().GetString(string(d)); v != "" {
			e.SetFilter(d, v)
		}
	}
	return nil
}

func applyPageFlag(cmd *cobra.Command, e *explorer.Explorer) {
	if n, _ := cmd.Flags().GetInt("page"); n != 1 {
		e.SetPage(n)
	}
}

func writePage(format string, page query.Page) error {
	if ok, err := writeStructured(os.Stdout, format, page); ok {
		return err
	}
	writePageTable(os.Stdout, page)
	return nil
}

func noDataHint(err error) error {
	if errors.Is(err, explorer.ErrNoData) {
		return fmt.Errorf("%w: run paper-explorer load first", err)
	}
	return err
}

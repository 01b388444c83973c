// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-explorer/internal/explorer"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over titles and abstracts of stored papers",
	Long: `Search indexes the stored papers and prints one page of the papers whose
title or abstract matches every query word. Words match as prefixes, so
"graph neur" finds "Graph Neural Networks".

The filter, view, and page flags work as they do for list and apply to the
matching papers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	addViewFlags(searchCmd)
	addFormatFlag(searchCmd)
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	q := strings.Join(args, " ")
	if strings.TrimSpace(q) == "" {
		return errors.New("search query is empty")
	}

	e, err := openExplorer(cmd, explorer.Options{})
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if _, err := e.Reindex(ctx); err != nil {
		return noDataHint(err)
	}
	if err := e.AwaitSearchReady(ctx); err != nil {
		return err
	}

	if err := applyViewFlags(cmd, e); err != nil {
		return err
	}
	if err := e.Search(q); err != nil {
		return err
	}
	if err := e.AwaitSearch(ctx); err != nil {
		return err
	}
	if st := e.Status(); st.SearchError != "" {
		return fmt.Errorf("searching %q: %s", q, st.SearchError)
	}
	applyPageFlag(cmd, e)

	page, err := e.CurrentPage(ctx)
	if err != nil {
		return noDataHint(err)
	}
	return writePage(format, page)
}

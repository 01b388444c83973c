package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-explorer/internal/explorer"
)

var facetsCmd = &cobra.Command{
	Use:   "facets",
	Short: "Print the topics, journals, and years available as filters",
	RunE:  runFacets,
}

func init() {
	addFormatFlag(facetsCmd)
	rootCmd.AddCommand(facetsCmd)
}

func runFacets(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	e, err := openExplorer(cmd, explorer.Options{})
	if err != nil {
		return err
	}
	defer e.Close()

	facets, err := e.Facets(cmd.Context())
	if err != nil {
		return noDataHint(err)
	}
	if ok, err := writeStructured(os.Stdout, format, facets); ok {
		return err
	}

	years := make([]string, len(facets.Years))
	for i, y := range facets.Years {
		years[i] = strconv.Itoa(y)
	}
	fmt.Printf("Topics (%d):\n  %s\n", len(facets.Topics), strings.Join(facets.Topics, "\n  "))
	fmt.Printf("Journals (%d):\n  %s\n", len(facets.Journals), strings.Join(facets.Journals, "\n  "))
	fmt.Printf("Years (%d):\n  %s\n", len(facets.Years), strings.Join(years, ", "))
	return nil
}

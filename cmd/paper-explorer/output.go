// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-explorer/internal/query"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().String("format", formatTable, "output format: table, json, or yaml")
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case formatTable, formatJSON, formatYAML:
		return format, nil
	case "":
		return formatTable, nil
	default:
		return "", fmt.Errorf("unsupported format %q: use table, json, or yaml", format)
	}
}

// writeStructured encodes v as JSON or YAML. It reports false for the
// table format, leaving the rendering to the caller.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func writePageTable(w io.Writer, page query.Page) {
	if len(page.Records) == 0 {
		fmt.Fprintln(w, "No papers found.")
		return
	}

	fmt.Fprintf(w, "%-12s  %-50s  %-4s  %-24s  %-20s  %s\n",
		"ID", "Title", "Year", "Journal", "Topic", "Added")
	fmt.Fprintln(w, strings.Repeat("-", 130))

	for _, p := range page.Records {
		year := "-"
		if p.Year > 0 {
			year = fmt.Sprintf("%d", p.Year)
		}
		fmt.Fprintf(w, "%-12s  %-50s  %-4s  %-24s  %-20s  %s\n",
			truncate(p.ID, 12),
			truncate(p.Title, 50),
			year,
			truncate(p.Journal, 24),
			truncate(p.PrimaryTopic(), 20),
			p.DateAdded)
	}

	fmt.Fprintf(w, "\nPage %d of %d (%d papers)\n", page.Number, page.PageCount, page.Total)
}

func writeTasks(w io.Writer, tasks []types.IngestionTask) {
	for _, t := range tasks {
		if t.Status != types.TaskError {
			continue
		}
		fmt.Fprintf(w, "  FAILED  %s: %s\n", t.FilePath, t.Err)
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-explorer/internal/query"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

func TestExplorerConfigFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "paper-explorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fetch:
  base_url: http://example.test/data/
  max_retries: 2
  timeout: 30s
store:
  data_dir: /tmp/papers
index:
  batch_pause: 250ms
query:
  page_size: 25
`), 0o644))

	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := explorerConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/data/", cfg.Fetch.BaseURL)
	assert.Equal(t, 2, cfg.Fetch.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "/tmp/papers", cfg.Store.DataDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Index.BatchPause)
	assert.Equal(t, 25, cfg.Query.PageSize)

	// Unset keys keep their defaults.
	assert.Equal(t, types.DefaultManifestPath, cfg.Fetch.ManifestPath)
	assert.Equal(t, types.DefaultUserAgent, cfg.Fetch.UserAgent)
	assert.Equal(t, types.DefaultBatchSize, cfg.Index.BatchSize)
	assert.Equal(t, types.DefaultSearchDebounce, cfg.Query.SearchDebounce)
}

func TestExplorerConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := explorerConfig()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultExplorerConfig(), cfg)
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		flag    string
		want    string
		wantErr bool
	}{
		{"", formatTable, false},
		{"table", formatTable, false},
		{"json", formatJSON, false},
		{"yaml", formatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			cmd := &cobra.Command{}
			addFormatFlag(cmd)
			require.NoError(t, cmd.Flags().Set("format", tt.flag))

			got, err := outputFormat(cmd)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteStructured(t *testing.T) {
	facets := query.Facets{Topics: []string{"ml"}, Journals: []string{"Nature"}, Years: []int{2024}}

	var buf bytes.Buffer
	ok, err := writeStructured(&buf, formatJSON, facets)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"topics":["ml"],"journals":["Nature"],"years":[2024]}`, buf.String())

	buf.Reset()
	ok, err = writeStructured(&buf, formatYAML, facets)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.YAMLEq(t, "topics: [ml]\njournals: [Nature]\nyears: [2024]\n", buf.String())

	buf.Reset()
	ok, err = writeStructured(&buf, formatTable, facets)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, buf.String())
}

func TestWritePageTable(t *testing.T) {
	var buf bytes.Buffer
	writePageTable(&buf, query.Page{Records: []types.Paper{}})
	assert.Equal(t, "No papers found.\n", buf.String())

	buf.Reset()
	writePageTable(&buf, query.Page{
		Records: []types.Paper{{
			ID:        "p1",
			Title:     "Attention Is All You Need",
			Year:      2017,
			Journal:   "NeurIPS",
			Topics:    []string{"nlp"},
			DateAdded: "2024-03-01T12:00:00Z",
		}},
		Total:     11,
		Number:    2,
		PageCount: 2,
	})
	out := buf.String()
	assert.Contains(t, out, "Attention Is All You Need")
	assert.Contains(t, out, "2017")
	assert.Contains(t, out, "Page 2 of 2 (11 papers)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééééééé...", truncate("éééééééééééé", 10))
}

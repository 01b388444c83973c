package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout. Zero means no client timeout;
	// a hung shard then stalls only its own task.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-explorer/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// FetchConfig holds settings for the manifest and shard downloads.
type FetchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the content root; the manifest and every shard path are
	// resolved against it.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// ManifestPath is the manifest location relative to BaseURL (default "index.json").
	ManifestPath string `json:"manifest_path" yaml:"manifest_path" mapstructure:"manifest_path"`

	// MaxRetries bounds retries on HTTP 429 and 503 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// StoreConfig holds settings for the persistent paper store.
type StoreConfig struct {
	// DataDir is the directory holding the SQLite database file.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
}

// IndexConfig holds settings for streaming papers into the search index.
type IndexConfig struct {
	// BatchSize is the number of documents per add message (default 500).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// BatchPause is the pause between add messages (default 100ms).
	BatchPause time.Duration `json:"batch_pause" yaml:"batch_pause" mapstructure:"batch_pause"`

	// SearchLimit caps the ids returned per indexed field (default 500).
	SearchLimit int `json:"search_limit" yaml:"search_limit" mapstructure:"search_limit"`
}

// QueryConfig holds settings for the query engine and search input.
type QueryConfig struct {
	// PageSize is the number of papers per page (default 10).
	PageSize int `json:"page_size" yaml:"page_size" mapstructure:"page_size"`

	// SearchDebounce is the quiet period before a typed query is issued (default 500ms).
	SearchDebounce time.Duration `json:"search_debounce" yaml:"search_debounce" mapstructure:"search_debounce"`
}

// ExplorerConfig groups all stage configurations.
type ExplorerConfig struct {
	Fetch FetchConfig `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Store StoreConfig `json:"store" yaml:"store" mapstructure:"store"`
	Index IndexConfig `json:"index" yaml:"index" mapstructure:"index"`
	Query QueryConfig `json:"query" yaml:"query" mapstructure:"query"`
}

const (
	DefaultBaseURL        = "https://raw.githubusercontent.com/saswatanandi/paper-explorer-data/main/"
	DefaultManifestPath   = "index.json"
	DefaultUserAgent      = "paper-explorer/0.1"
	DefaultMaxRetries     = 5
	DefaultDataDir        = "data"
	DefaultBatchSize      = 500
	DefaultBatchPause     = 100 * time.Millisecond
	DefaultSearchLimit    = 500
	DefaultPageSize       = 10
	DefaultSearchDebounce = 500 * time.Millisecond
)

// DefaultExplorerConfig returns the configuration used when no config
// file or flag overrides a value.
func DefaultExplorerConfig() ExplorerConfig {
	return ExplorerConfig{
		Fetch: FetchConfig{
			HTTPConfig:   HTTPConfig{UserAgent: DefaultUserAgent},
			BaseURL:      DefaultBaseURL,
			ManifestPath: DefaultManifestPath,
			MaxRetries:   DefaultMaxRetries,
		},
		Store: StoreConfig{DataDir: DefaultDataDir},
		Index: IndexConfig{
			BatchSize:   DefaultBatchSize,
			BatchPause:  DefaultBatchPause,
			SearchLimit: DefaultSearchLimit,
		},
		Query: QueryConfig{
			PageSize:       DefaultPageSize,
			SearchDebounce: DefaultSearchDebounce,
		},
	}
}

// WithDefaults fills empty strings and non-positive counts from
// DefaultExplorerConfig. Zero durations are kept and mean "no pause".
func (c ExplorerConfig) WithDefaults() ExplorerConfig {
	d := DefaultExplorerConfig()
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = d.Fetch.UserAgent
	}
	if c.Fetch.BaseURL == "" {
		c.Fetch.BaseURL = d.Fetch.BaseURL
	}
	if c.Fetch.ManifestPath == "" {
		c.Fetch.ManifestPath = d.Fetch.ManifestPath
	}
	if c.Fetch.MaxRetries <= 0 {
		c.Fetch.MaxRetries = d.Fetch.MaxRetries
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = d.Store.DataDir
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = d.Index.BatchSize
	}
	if c.Index.BatchPause < 0 {
		c.Index.BatchPause = 0
	}
	if c.Index.SearchLimit <= 0 {
		c.Index.SearchLimit = d.Index.SearchLimit
	}
	if c.Query.PageSize <= 0 {
		c.Query.PageSize = d.Query.PageSize
	}
	if c.Query.SearchDebounce < 0 {
		c.Query.SearchDebounce = 0
	}
	return c
}

package config

// Store providers.
const (
	ProviderSQLite = "sqlite"
	ProviderMemory = "memory"
)

// StoreConfig configures persistence.
type StoreConfig struct {
	// Provider: "sqlite" (row store on disk) or "memory" (ephemeral).
	Provider string `yaml:"provider"`

	// DatabasePath is the SQLite file path, relative to the data dir
	// unless absolute.
	DatabasePath string `yaml:"database_path"`

	// DocumentSearchThreshold is the minimum cosine similarity for
	// document vector search hits.
	DocumentSearchThreshold float64 `yaml:"document_search_threshold"`

	// DocumentSearchK caps document vector search results.
	DocumentSearchK int `yaml:"document_search_k"`
}

// DefaultStoreConfig returns defaults for persistence.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Provider:                ProviderSQLite,
		DatabasePath:            "smalltown.db",
		DocumentSearchThreshold: 0.78,
		DocumentSearchK:         10,
	}
}

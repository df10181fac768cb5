package config

// MemoryConfig configures episodic memory retrieval and reflection.
type MemoryConfig struct {
	// Retrieval score weights. Score is
	//   ImportanceWeight*importance/10 + SimilarityWeight*cosine + RecencyWeight*recency
	ImportanceWeight float64 `yaml:"importance_weight"`
	SimilarityWeight float64 `yaml:"similarity_weight"`
	RecencyWeight    float64 `yaml:"recency_weight"`

	// RecencyDecay is the per-hour decay base: recency = decay^hours.
	RecencyDecay float64 `yaml:"recency_decay"`

	// ReflectionThreshold triggers a reflection pass once the summed
	// importance of observations since the last reflection crosses it.
	ReflectionThreshold int `yaml:"reflection_threshold"`

	// ReflectionRecentCount is how many recently-accessed memories seed the
	// reflection questions.
	ReflectionRecentCount int `yaml:"reflection_recent_count"`

	// ReflectionRetrieveCount is how many memories are retrieved per
	// reflection question.
	ReflectionRetrieveCount int `yaml:"reflection_retrieve_count"`

	// SummaryMemoryCount is how many recent memories feed the
	// recent-activity summary.
	SummaryMemoryCount int `yaml:"summary_memory_count"`
}

// DefaultMemoryConfig returns defaults for memory retrieval and reflection.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		ImportanceWeight:        1.0,
		SimilarityWeight:        1.0,
		RecencyWeight:           1.0,
		RecencyDecay:            0.99,
		ReflectionThreshold:     100,
		ReflectionRecentCount:   50,
		ReflectionRetrieveCount: 20,
		SummaryMemoryCount:      20,
	}
}

package types

import "time"

// SessionConfig holds settings for spawning and talking to the sertop
// subprocess.
type SessionConfig struct {
	// SertopPath overrides sertop binary resolution. Empty means resolve
	// from PATH, falling back to `opam exec -- sertop`.
	SertopPath string `json:"sertop_path,omitempty" yaml:"sertop_path,omitempty"`

	// OpamEnvDir is a directory of KEY=VALUE overlay files applied to the
	// subprocess environment (the opam switch environment sertop needs).
	OpamEnvDir string `json:"opam_env_dir,omitempty" yaml:"opam_env_dir,omitempty"`

	// Timeout bounds each wait for a protocol response (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// ExtractionConfig holds settings for the extraction stage.
type ExtractionConfig struct {
	// ExtractGoals controls whether proof states are recorded per sentence.
	ExtractGoals bool `json:"extract_goals" yaml:"extract_goals"`

	// QualifyIdentifiers controls whether AST identifiers are fully
	// qualified against the session.
	QualifyIdentifiers bool `json:"qualify_identifiers" yaml:"qualify_identifiers"`

	// UseGoalsDiff stores proof states as diffs between consecutive
	// sentences instead of full states.
	UseGoalsDiff bool `json:"use_goals_diff" yaml:"use_goals_diff"`

	// Workers bounds how many documents are extracted concurrently, one
	// session per document (default 1).
	Workers int `json:"workers" yaml:"workers"`
}

// CacheConfig holds settings for the extraction record store.
type CacheConfig struct {
	// CacheDir is the base directory for records (contains extracted/, index/).
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// ToolConfig groups all stage configurations.
type ToolConfig struct {
	Session    SessionConfig    `json:"session" yaml:"session"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
}

// DefaultExtractionConfig returns the extraction defaults: goals recorded,
// identifiers qualified, diffs on, one worker.
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		ExtractGoals:       true,
		QualifyIdentifiers: true,
		UseGoalsDiff:       true,
		Workers:            1,
	}
}

// Copyright 2026 The Scopegraph Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads scopegraph's YAML configuration and layers it over
// built-in defaults, following the shape the project's ingestion config
// has always used: one struct per concern, a DefaultConfig() constructor,
// and environment variables taking precedence over file values for
// connection secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scopegraph/scopegraph/pkg/kind"
)

// Config is the root configuration for one scopegraph run (ingestion,
// change tracking, query serving).
type Config struct {
	ProjectName string         `yaml:"project_name"`
	RepoRoot    string         `yaml:"repo_root"`
	GraphStore  GraphStoreConfig `yaml:"graph_store"`
	Ingestion   IngestionConfig  `yaml:"ingestion"`
	Summary     SummaryConfig    `yaml:"summary"`
	LLM         LLMConfig        `yaml:"llm"`
	Rerank      RerankConfig     `yaml:"rerank"`
}

// GraphStoreConfig names the Neo4j connection per §6 of the spec. URI,
// Username, Password and Database are each read from their matching
// NEO4J_* environment variable when set, overriding the file value —
// connection secrets never belong in a committed YAML file.
type GraphStoreConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ConcurrencyConfig bounds parallel work across the ingestion pipeline.
type ConcurrencyConfig struct {
	ParseWorkers int `yaml:"parse_workers"`
}

// RetryConfig configures exponential backoff for a retryable operation.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

// IngestionConfig controls parsing, change detection, and batch writing.
type IngestionConfig struct {
	ParserMode           string            `yaml:"parser_mode"`
	ExcludeGlobs         []string          `yaml:"exclude_globs"`
	MaxFileSizeBytes     int64             `yaml:"max_file_size_bytes"`
	Concurrency          ConcurrencyConfig `yaml:"concurrency"`
	BatchTargetMutations int               `yaml:"batch_target_mutations"`
	UseGitDelta          bool              `yaml:"use_git_delta"`
	DryRun               bool              `yaml:"dry_run"`
	Retry                RetryConfig       `yaml:"retry"`
	WatchEnabled         bool              `yaml:"watch_enabled"`

	// CascadeInvalidateSummaries extends change tracking's summary
	// invalidation (C6 step 4) beyond a scope whose own hash changed, to
	// every scope that imports or calls it — at the cost of a wider
	// invalidation sweep on every ingestion run.
	CascadeInvalidateSummaries bool `yaml:"cascade_invalidate_summaries"`
}

// SummaryMode selects when field summaries are generated.
type SummaryMode string

const (
	SummaryPreGenerated SummaryMode = "pre_generated"
	SummaryOnDemand     SummaryMode = "on_demand"
	SummaryHybrid       SummaryMode = "hybrid"
)

// SummaryFieldConfig declares one (entityLabel, fieldName, outputField)
// triple C7 summarizes: EntityLabel/FieldName identify the source
// property (e.g. Scope.signature), OutputField names the summary
// variant written back as "<FieldName>_summary_<OutputField>". Threshold
// is the minimum source-field length that triggers summarization at all;
// RerankUse selects how C10 substitutes the summary into a rerank prompt.
type SummaryFieldConfig struct {
	EntityLabel string               `yaml:"entity_label"`
	FieldName   string               `yaml:"field_name"`
	OutputField string               `yaml:"output_field"`
	Threshold   int                  `yaml:"threshold"`
	RerankUse   SummarySubstitution  `yaml:"rerank_use"`
}

// SummaryConfig controls C7's field-summarization behavior.
type SummaryConfig struct {
	Mode   SummaryMode          `yaml:"mode"`
	Fields []SummaryFieldConfig `yaml:"fields"`
}

// LLMConfig selects and configures the structured LLM adapter (C8).
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // ollama | openai | anthropic | gemini | mock
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Retry       RetryConfig   `yaml:"retry"`
}

// ScoreMergeStrategy selects how rerank scores combine with pre-rerank
// scores (C10).
type ScoreMergeStrategy string

const (
	ScoreMergeWeighted      ScoreMergeStrategy = "weighted"
	ScoreMergeMultiplicative ScoreMergeStrategy = "multiplicative"
	ScoreMergeLLMOverride   ScoreMergeStrategy = "llm_override"
)

// SummarySubstitution selects when a summary replaces raw content in a
// rerank prompt (C10).
type SummarySubstitution string

const (
	SubstituteAlways        SummarySubstitution = "always"
	SubstitutePreferSummary SummarySubstitution = "prefer_summary"
	SubstituteNever         SummarySubstitution = "never"
)

// RerankConfig controls the LLM reranker (C10).
type RerankConfig struct {
	BatchSize        int                 `yaml:"batch_size"`
	Parallel         int                 `yaml:"parallel"`
	MergeStrategy    ScoreMergeStrategy  `yaml:"merge_strategy"`
	MergeWeight      float64             `yaml:"merge_weight"` // weight given to the rerank score under "weighted"
	Substitution     SummarySubstitution `yaml:"substitution"`
	Retry            RetryConfig         `yaml:"retry"`
}

// DefaultConfig returns a fully populated Config with scopegraph's
// built-in defaults. Load() deep-merges a caller's YAML over this.
func DefaultConfig() *Config {
	return &Config{
		GraphStore: GraphStoreConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Ingestion: IngestionConfig{
			ParserMode:           "auto",
			MaxFileSizeBytes:     2 * 1024 * 1024,
			BatchTargetMutations: 500,
			UseGitDelta:          true,
			Concurrency: ConcurrencyConfig{
				ParseWorkers: 5,
			},
			Retry: RetryConfig{
				MaxRetries:     3,
				InitialBackoff: time.Second,
				MaxBackoff:     8 * time.Second,
				Multiplier:     2,
			},
			ExcludeGlobs: []string{
				".git/**", "node_modules/**", "vendor/**", "dist/**", "build/**",
				"bin/**", ".idea/**", ".vscode/**", ".next/**", ".nuxt/**",
				"*.min.js", "*.min.css", "*.lock",
			},
		},
		Summary: SummaryConfig{
			Mode: SummaryOnDemand,
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Timeout:  60 * time.Second,
			Retry: RetryConfig{
				MaxRetries:     3,
				InitialBackoff: time.Second,
				MaxBackoff:     30 * time.Second,
				Multiplier:     2,
			},
		},
		Rerank: RerankConfig{
			BatchSize:     10,
			Parallel:      5,
			MergeStrategy: ScoreMergeWeighted,
			MergeWeight:   0.7,
			Substitution:  SubstitutePreferSummary,
			Retry: RetryConfig{
				MaxRetries:     3,
				InitialBackoff: time.Second,
				MaxBackoff:     30 * time.Second,
				Multiplier:     2,
			},
		},
	}
}

// Load reads the YAML file at path, deep-merges it over DefaultConfig(),
// applies NEO4J_*/LLM provider environment variable overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kind.Wrap(kind.ConfigInvalid, fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil, kind.Wrap(kind.ConfigInvalid, "cannot read config file", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, kind.Wrap(kind.ConfigInvalid, "cannot parse config file", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEO4J_URI"); v != "" {
		cfg.GraphStore.URI = v
	}
	if v := os.Getenv("NEO4J_USERNAME"); v != "" {
		cfg.GraphStore.Username = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		cfg.GraphStore.Password = v
	}
	if v := os.Getenv("NEO4J_DATABASE"); v != "" {
		cfg.GraphStore.Database = v
	}
	switch cfg.LLM.Provider {
	case "openai":
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	case "anthropic":
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	case "gemini":
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	case "ollama":
		if v := os.Getenv("OLLAMA_HOST"); v != "" {
			cfg.LLM.BaseURL = v
		}
	}
}

// Validate reports a kind.ConfigInvalid error describing the first
// invalid field it finds, or nil.
func (c *Config) Validate() error {
	if c.ProjectName == "" {
		return kind.New(kind.ConfigInvalid, "project_name is required")
	}
	if c.GraphStore.URI == "" {
		return kind.New(kind.ConfigInvalid, "graph_store.uri is required")
	}
	switch c.Summary.Mode {
	case SummaryPreGenerated, SummaryOnDemand, SummaryHybrid:
	default:
		return kind.New(kind.ConfigInvalid, fmt.Sprintf("summary.mode %q is invalid", c.Summary.Mode))
	}
	switch c.Rerank.MergeStrategy {
	case ScoreMergeWeighted, ScoreMergeMultiplicative, ScoreMergeLLMOverride:
	default:
		return kind.New(kind.ConfigInvalid, fmt.Sprintf("rerank.merge_strategy %q is invalid", c.Rerank.MergeStrategy))
	}
	if c.Rerank.BatchSize <= 0 {
		return kind.New(kind.ConfigInvalid, "rerank.batch_size must be positive")
	}
	if c.Rerank.Parallel <= 0 {
		return kind.New(kind.ConfigInvalid, "rerank.parallel must be positive")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known backend names per provider kind.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "mistral", "groq"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates the result, and
// fills defaults. Useful in tests where configs come from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for zero fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required; the DM cannot run without a generator"))
	}
	if cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("providers.embeddings.name is required; memory retrieval needs an embedder"))
	}

	// Memory
	if cfg.Memory.PostgresDSN == "" {
		errs = append(errs, errors.New("memory.postgres_dsn is required"))
	}
	if cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("memory.embedding_dimensions is not set; defaulting to 1536")
		cfg.Memory.EmbeddingDimensions = 1536
	}
	if cfg.Memory.EmbedCacheSize <= 0 {
		cfg.Memory.EmbedCacheSize = DefaultEmbedCacheSize
	}
	if cfg.Memory.MinSimilarity == 0 {
		cfg.Memory.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.Memory.MinSimilarity < 0 || cfg.Memory.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("memory.min_similarity %.2f is out of range [0, 1]", cfg.Memory.MinSimilarity))
	}
	if cfg.Memory.RetrievalK <= 0 {
		cfg.Memory.RetrievalK = DefaultRetrievalK
	}

	// Campaign
	if cfg.Campaign.ModulesDir == "" {
		slog.Warn("campaign.modules_dir is empty; sessions referencing a campaign module will fail to load it")
	}

	// Pipeline
	if cfg.Pipeline.GeneratorTimeout <= 0 {
		cfg.Pipeline.GeneratorTimeout = DefaultGeneratorTimeout
	}
	if cfg.Pipeline.MaxHistory <= 0 {
		cfg.Pipeline.MaxHistory = DefaultMaxHistory
	}
	if cfg.Pipeline.Temperature < 0 || cfg.Pipeline.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 2]", cfg.Pipeline.Temperature))
	}

	// Summarization
	if cfg.Summarization.BatchSize <= 0 {
		cfg.Summarization.BatchSize = DefaultSummaryBatch
	}
	if cfg.Summarization.MinBatch <= 0 {
		cfg.Summarization.MinBatch = DefaultSummaryMinBatch
	}
	if cfg.Summarization.MaxAge <= 0 {
		cfg.Summarization.MaxAge = DefaultSummaryMaxAge
	}
	if cfg.Summarization.MinBatch > cfg.Summarization.BatchSize {
		errs = append(errs, fmt.Errorf("summarization.min_batch (%d) must not exceed batch_size (%d)",
			cfg.Summarization.MinBatch, cfg.Summarization.BatchSize))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

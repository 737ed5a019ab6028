// Command verso is the entry point: it wires the storage, index,
// provider, and service layers together and hands control to the CLI.
package main

import (
	"fmt"
	"os"

	configfile "github.com/tessera-labs/verso/internal/adapters/driven/config/file"
	embedhash "github.com/tessera-labs/verso/internal/adapters/driven/embedding/hash"
	embedollama "github.com/tessera-labs/verso/internal/adapters/driven/embedding/ollama"
	embedopenai "github.com/tessera-labs/verso/internal/adapters/driven/embedding/openai"
	llmanthropic "github.com/tessera-labs/verso/internal/adapters/driven/llm/anthropic"
	llmopenai "github.com/tessera-labs/verso/internal/adapters/driven/llm/openai"
	"github.com/tessera-labs/verso/internal/adapters/driven/storage/sqlite"
	"github.com/tessera-labs/verso/internal/adapters/driving/cli"
	"github.com/tessera-labs/verso/internal/core/ports/driven"
	"github.com/tessera-labs/verso/internal/core/ports/driving"
	"github.com/tessera-labs/verso/internal/core/services"
	"github.com/tessera-labs/verso/internal/embedding"
	"github.com/tessera-labs/verso/internal/index/lexical"
	"github.com/tessera-labs/verso/internal/index/vector"
	"github.com/tessera-labs/verso/internal/logger"
	"github.com/tessera-labs/verso/internal/postprocessors/chunker"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := configfile.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := sqlite.NewStore("")
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	documents := store.DocumentStore()

	embedder, err := buildEmbedder(config)
	if err != nil {
		return err
	}

	vectors := vector.New(nil)
	lexicon := lexical.New()
	splitter := chunker.New(
		chunker.WithChunkSize(config.GetInt("chunk_size", 0)),
		chunker.WithOverlap(config.GetInt("chunk_overlap", 0)),
	)

	ingestor, err := services.NewIngestor(documents, embedder, vectors, lexicon, splitter)
	if err != nil {
		return err
	}

	retrieval, err := services.NewRetrievalService(documents, embedder, vectors, lexicon, splitter,
		services.WithFusion(services.FusionConfig{K: config.GetInt("rrf_k", services.DefaultRRFK)}),
		services.WithMinSimilarity(config.GetFloat("min_similarity", 0)),
	)
	if err != nil {
		return err
	}

	asker, err := buildAsker(config, retrieval, documents, ingestor)
	if err != nil {
		return err
	}

	// A typed nil must not reach the interface slot.
	var ask driving.AskService
	if asker != nil {
		ask = asker
	}

	cli.SetServices(ingestor, ask, documents)
	cli.SetWarmup(ingestor.Warm)
	return cli.Execute(version)
}

// buildEmbedder assembles the embedding fallback chain: remote
// providers first, the degraded hash embedder always last.
func buildEmbedder(config driven.ConfigStore) (*embedding.Service, error) {
	var providers []driven.EmbeddingProvider

	if key := apiKey(config, "openai_api_key", "OPENAI_API_KEY"); key != "" {
		provider, err := embedopenai.New(embedopenai.Config{
			APIKey: key,
			Model:  config.GetString("embedding_model", ""),
		})
		if err != nil {
			return nil, fmt.Errorf("configuring openai embeddings: %w", err)
		}
		providers = append(providers, provider)
	}

	providers = append(providers, embedollama.New(embedollama.Config{
		BaseURL: config.GetString("ollama_base_url", ""),
		Model:   config.GetString("ollama_embedding_model", ""),
	}))

	providers = append(providers, embedhash.New(config.GetInt("hash_dimensions", 0)))

	return embedding.New(providers)
}

// buildAsker wires retrieval through context assembly into answer
// generation. Returns a nil service when no LLM credentials are
// configured; the CLI reports that on use.
func buildAsker(config driven.ConfigStore, retrieval *services.RetrievalService, documents driven.DocumentStore, ingestor *services.Ingestor) (*services.Asker, error) {
	llm, models := buildLLM(config)
	if llm == nil {
		logger.Warn("no LLM credentials configured; the ask command is disabled")
		return nil, nil
	}

	generator, err := services.NewAnswerGenerator(llm, models)
	if err != nil {
		return nil, err
	}

	assembler := services.NewContextAssembler(config.GetInt("context_budget", 0))
	return services.NewAsker(retrieval, assembler, generator, documents,
		services.WithStaleReindexer(ingestor))
}

// buildLLM picks the configured chat provider and its model fallback
// list. Anthropic wins when both credentials are present unless config
// says otherwise.
func buildLLM(config driven.ConfigStore) (driven.LLMProvider, []string) {
	preference := config.GetString("llm_provider", "")
	anthropicKey := apiKey(config, "anthropic_api_key", "ANTHROPIC_API_KEY")
	openaiKey := apiKey(config, "llm_openai_api_key", "OPENAI_API_KEY")

	if anthropicKey != "" && preference != "openai" {
		provider, err := llmanthropic.New(llmanthropic.Config{APIKey: anthropicKey})
		if err == nil {
			return provider, modelList(config, "claude-sonnet-4-20250514", "claude-3-5-haiku-20241022")
		}
		logger.Warn("configuring anthropic: %v", err)
	}

	if openaiKey != "" {
		provider, err := llmopenai.New(llmopenai.Config{APIKey: openaiKey})
		if err == nil {
			return provider, modelList(config, "gpt-4o", "gpt-4o-mini")
		}
		logger.Warn("configuring openai: %v", err)
	}

	return nil, nil
}

// modelList returns the configured primary and fallback models, with
// provider-appropriate defaults.
func modelList(config driven.ConfigStore, primary, fallback string) []string {
	models := []string{config.GetString("llm_model", primary)}
	if fb := config.GetString("llm_fallback_model", fallback); fb != "" && fb != models[0] {
		models = append(models, fb)
	}
	return models
}

// apiKey reads a credential from config, falling back to the
// environment.
func apiKey(config driven.ConfigStore, configKey, envKey string) string {
	if key := config.GetString(configKey, ""); key != "" {
		return key
	}
	return os.Getenv(envKey)
}

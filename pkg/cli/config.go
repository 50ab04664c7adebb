package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/repository"
	"github.com/urfave/cli/v3"
)

// config holds configuration values shared across commands
type config struct {
	// Repository
	databaseDSN string

	// Collaborator credentials
	openaiAPIKey     string
	openrouterAPIKey string
	chunkrAPIKey     string

	// Generation
	model string
}

// dbFlags returns flags for datastore configuration with destination
// config
func dbFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "database-dsn",
			Aliases:     []string{"d"},
			Usage:       "PostgreSQL connection string (pgvector extension required)",
			Sources:     cli.EnvVars("LORIS_DATABASE_DSN", "DATABASE_URL"),
			Destination: &cfg.databaseDSN,
		},
	}
}

// llmFlags returns flags for collaborator credentials with destination
// config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key (embeddings)",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openrouter-api-key",
			Usage:       "OpenRouter API key (chat completions)",
			Sources:     cli.EnvVars("OPENROUTER_API_KEY"),
			Destination: &cfg.openrouterAPIKey,
		},
		&cli.StringFlag{
			Name:        "chunkr-api-key",
			Usage:       "Chunkr API key (document parsing)",
			Sources:     cli.EnvVars("CHUNKR_API_KEY"),
			Destination: &cfg.chunkrAPIKey,
		},
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "Chat completion model ID",
			Value:       "openai/gpt-4o",
			Sources:     cli.EnvVars("LORIS_MODEL"),
			Destination: &cfg.model,
		},
	}
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.databaseDSN == "" {
		return nil, goerr.New("database-dsn is required")
	}

	repo, err := repository.NewPostgres(ctx, cfg.databaseDSN)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newEmbedder creates a new embeddings client
func (cfg *config) newEmbedder() (adapter.Embedder, error) {
	if cfg.openaiAPIKey == "" {
		return nil, goerr.New("openai-api-key is required")
	}
	return adapter.NewOpenAI(cfg.openaiAPIKey), nil
}

// newChat creates a new chat completion client
func (cfg *config) newChat() (adapter.ChatModel, error) {
	if cfg.openrouterAPIKey == "" {
		return nil, goerr.New("openrouter-api-key is required")
	}
	return adapter.NewOpenRouter(cfg.openrouterAPIKey), nil
}

// newParser creates a new parsing service client
func (cfg *config) newParser() (adapter.Parser, error) {
	if cfg.chunkrAPIKey == "" {
		return nil, goerr.New("chunkr-api-key is required")
	}
	return adapter.NewChunkr(cfg.chunkrAPIKey), nil
}

// credentials returns the process-wide credential set
func (cfg *config) credentials() model.Credentials {
	return model.Credentials{
		OpenAI:     cfg.openaiAPIKey,
		OpenRouter: cfg.openrouterAPIKey,
		Chunkr:     cfg.chunkrAPIKey,
	}
}

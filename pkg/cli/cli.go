package cli

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/loris/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// Best-effort: a missing .env file is not an error
	_ = godotenv.Load()

	logger := logging.New(os.Getenv("LORIS_LOG_LEVEL"), os.Stderr)
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	cmd := &cli.Command{
		Name:  "loris",
		Usage: "Document RAG chat backend",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			ingestCommand(),
			taskCommand(),
			chatCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logger.Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func migrateCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema",
		Flags: dbFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Migrate(ctx); err != nil {
				return goerr.Wrap(err, "failed to migrate schema")
			}

			logging.From(ctx).Info("schema migration completed")
			return nil
		},
	}
}

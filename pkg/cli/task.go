package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/urfave/cli/v3"
)

func taskCommand() *cli.Command {
	var (
		cfg        config
		withChunks bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "chunks",
			Usage:       "Include parsed chunks in the output",
			Destination: &withChunks,
		},
	}
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "task",
		Usage:     "Show the status of a parsing task",
		ArgsUsage: "<task-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			taskID := c.Args().First()
			if taskID == "" {
				return goerr.New("task ID is required")
			}

			parser, err := cfg.newParser()
			if err != nil {
				return err
			}

			var opts []adapter.TaskOption
			if withChunks {
				opts = append(opts, adapter.WithChunks())
			}

			task, err := parser.GetTask(ctx, taskID, opts...)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(task)
		},
	}
}

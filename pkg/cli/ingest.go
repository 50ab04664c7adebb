package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/usecase/ingest"
	"github.com/urfave/cli/v3"
)

func ingestCommand() *cli.Command {
	var (
		cfg      config
		filePath string
		pdfURL   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       "Path to a PDF file to ingest",
			Destination: &filePath,
		},
		&cli.StringFlag{
			Name:        "url",
			Aliases:     []string{"u"},
			Usage:       "URL of a PDF file to ingest",
			Destination: &pdfURL,
		},
	}
	flags = append(flags, dbFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Parse a PDF document and store its chunks",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Migrate(ctx); err != nil {
				return goerr.Wrap(err, "failed to migrate schema")
			}

			embedder, err := cfg.newEmbedder()
			if err != nil {
				return err
			}
			parser, err := cfg.newParser()
			if err != nil {
				return err
			}

			input := &ingest.Input{URL: pdfURL}
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return goerr.Wrap(err, "failed to read file", goerr.V("path", filePath))
				}
				input.File = data
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " Parsing document..."
			sp.Start()

			pipeline := ingest.New(repo, embedder, parser)
			output, err := pipeline.Run(ctx, input)
			sp.Stop()
			if err != nil {
				return err
			}

			fmt.Printf("Task ID: %s\nStatus: %s\n", output.TaskID, output.Status)
			return nil
		},
	}
}

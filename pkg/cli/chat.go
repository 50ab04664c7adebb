package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/tool"
	"github.com/m-mizutani/loris/pkg/tool/retrieval"
	"github.com/m-mizutani/loris/pkg/usecase/generate"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg    config
		taskID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "task-id",
			Aliases:     []string{"t"},
			Usage:       "Parsing task ID of the document to chat about",
			Required:    true,
			Destination: &taskID,
		},
	}
	flags = append(flags, dbFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive chat session about an ingested document",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			embedder, err := cfg.newEmbedder()
			if err != nil {
				return err
			}
			chat, err := cfg.newChat()
			if err != nil {
				return err
			}
			parser, err := cfg.newParser()
			if err != nil {
				return err
			}

			registry := tool.New(retrieval.New(repo, embedder, parser))

			rl, err := readline.New("> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize prompt")
			}
			defer rl.Close()

			fmt.Printf("Chatting about document %s. Ctrl-D to exit.\n", taskID)

			var history []model.Message
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if len(line) == 0 {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}

				history = append(history, model.Message{
					ID:      model.NewMessageID(),
					Role:    model.RoleUser,
					Content: line,
				})

				answer, err := runChatTurn(ctx, chat, registry, cfg.model, taskID, history)
				if err != nil {
					fmt.Printf("Error: %s\n", err)
					history = history[:len(history)-1]
					continue
				}

				history = append(history, model.Message{
					ID:      model.NewMessageID(),
					Role:    model.RoleAssistant,
					Content: answer,
				})
			}
		},
	}
}

// runChatTurn runs one round of the conversation and returns the
// assistant's final answer so the caller can extend the history.
func runChatTurn(ctx context.Context, chat adapter.ChatModel, registry *tool.Registry, modelID, taskID string, history []model.Message) (string, error) {
	session, err := generate.New(generate.NewInput{
		Chat:       chat,
		Registry:   registry,
		Model:      modelID,
		DocumentID: model.DocumentID(taskID),
		Messages:   history,
	})
	if err != nil {
		return "", err
	}

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " Thinking..."
	sp.Start()
	spinning := true

	var answer strings.Builder
	err = session.Run(ctx, func(ev model.Event) error {
		switch ev.Type {
		case model.EventTypeToolCall:
			sp.Suffix = fmt.Sprintf(" Searching (%s)...", ev.ToolName)
		case model.EventTypeResponse:
			if spinning {
				sp.Stop()
				spinning = false
			}
			fmt.Print(ev.Content)
			answer.WriteString(ev.Content)
		}
		return nil
	})
	if spinning {
		sp.Stop()
	}
	if err != nil {
		return "", err
	}

	fmt.Println()
	return answer.String(), nil
}

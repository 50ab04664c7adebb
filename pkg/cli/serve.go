package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/server"
	"github.com/m-mizutani/loris/pkg/tool/retrieval"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// serveConfig is the optional YAML configuration file for the serve
// command. Flags take precedence over file values. Retrieval settings
// are pointers so an explicit zero can be told apart from an absent key.
type serveConfig struct {
	Addr      string `yaml:"addr"`
	Retrieval struct {
		Threshold *float64 `yaml:"threshold"`
		Limit     *int     `yaml:"limit"`
	} `yaml:"retrieval"`
}

func loadServeConfig(path string) (*serveConfig, error) {
	cfg := &serveConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	return cfg, nil
}

func serveCommand() *cli.Command {
	var (
		cfg        config
		addr       string
		headerAuth bool
		configPath string
		threshold  float64
		limit      int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Aliases:     []string{"a"},
			Usage:       "Listen address",
			Sources:     cli.EnvVars("LORIS_ADDR"),
			Destination: &addr,
		},
		&cli.BoolFlag{
			Name:        "header-auth",
			Usage:       "Resolve collaborator API keys from request headers instead of the environment",
			Sources:     cli.EnvVars("LORIS_HEADER_AUTH"),
			Destination: &headerAuth,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML configuration file",
			Sources:     cli.EnvVars("LORIS_CONFIG"),
			Destination: &configPath,
		},
		&cli.FloatFlag{
			Name:        "retrieval-threshold",
			Usage:       "Minimum similarity score for retrieved chunks",
			Sources:     cli.EnvVars("LORIS_RETRIEVAL_THRESHOLD"),
			Destination: &threshold,
		},
		&cli.IntFlag{
			Name:        "retrieval-limit",
			Usage:       "Maximum number of retrieved chunks per query",
			Sources:     cli.EnvVars("LORIS_RETRIEVAL_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, dbFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			fileCfg, err := loadServeConfig(configPath)
			if err != nil {
				return err
			}

			listenAddr := "127.0.0.1:8000"
			if fileCfg.Addr != "" {
				listenAddr = fileCfg.Addr
			}
			if addr != "" {
				listenAddr = addr
			}

			retrievalThreshold := retrieval.DefaultThreshold
			if fileCfg.Retrieval.Threshold != nil {
				retrievalThreshold = *fileCfg.Retrieval.Threshold
			}
			if c.IsSet("retrieval-threshold") {
				retrievalThreshold = threshold
			}

			retrievalLimit := retrieval.DefaultLimit
			if fileCfg.Retrieval.Limit != nil {
				retrievalLimit = *fileCfg.Retrieval.Limit
			}
			if c.IsSet("retrieval-limit") {
				retrievalLimit = int(limit)
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Migrate(ctx); err != nil {
				return goerr.Wrap(err, "failed to migrate schema")
			}

			var creds server.CredentialSource
			if headerAuth {
				creds = server.HeaderCredentials{}
			} else {
				creds = server.EnvCredentials{Credentials: cfg.credentials()}
			}

			srv := server.New(repo, creds,
				server.WithAddr(listenAddr),
				server.WithRetrievalThreshold(retrievalThreshold),
				server.WithRetrievalLimit(retrievalLimit),
			)

			return srv.Start(ctx)
		},
	}
}

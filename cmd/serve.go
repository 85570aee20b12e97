package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/podjdr/internal/api"
	"github.com/podjdr/internal/config"
	"github.com/podjdr/internal/database"
	"github.com/podjdr/internal/logging"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the podjdr API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server, overrides server.port",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Apply the schema before serving",
				Value: true,
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadValidConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}

	ctx := c.Context
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Bool("migrate") {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	svc := api.NewPostgresServices(db, cfg)
	if err := svc.Codes.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load shadow codes: %w", err)
	}
	log.Info().Int("codes", svc.Codes.Len()).Msg("Shadow codes loaded")

	log.Info().Int("port", cfg.Server.Port).Msg("Starting podjdr API server")
	return api.NewServer(cfg, svc).Start()
}

// loadValidConfig reads the configuration named by the global --config flag,
// validates it and installs the global logger
func loadValidConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Log)
	return cfg, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return database.NewDB(ctx, database.Options{
		URL:            cfg.Database.URL,
		MaxOpenConns:   cfg.Database.MaxOpenConns,
		MaxIdleConns:   cfg.Database.MaxIdleConns,
		ConnectRetries: cfg.Database.ConnectRetries,
	})
}

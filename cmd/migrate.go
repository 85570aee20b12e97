package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/podjdr/internal/database"
)

// MigrateCommand applies the database schema and exits
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema",
		Action: func(c *cli.Context) error {
			cfg, err := loadValidConfig(c)
			if err != nil {
				return err
			}
			db, err := openDB(c.Context, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(c.Context, db); err != nil {
				return err
			}
			log.Info().Msg("Schema applied")
			return nil
		},
	}
}

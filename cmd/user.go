package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/podjdr/internal/identity"
)

// UserCommand manages accounts from the command line, mainly to bootstrap
// the first administrator
func UserCommand() *cli.Command {
	nameFlag := &cli.StringFlag{
		Name:     "name",
		Aliases:  []string{"n"},
		Usage:    "Account name",
		Required: true,
	}
	return &cli.Command{
		Name:  "user",
		Usage: "Manage player accounts",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a player account",
				Flags: []cli.Flag{
					nameFlag,
					&cli.StringFlag{
						Name:     "password",
						Usage:    "Initial password",
						EnvVars:  []string{"PODJDR_USER_PASSWORD"},
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "admin",
						Usage: "Grant administrator rights",
					},
				},
				Action: runUserCreate,
			},
			{
				Name:  "promote",
				Usage: "Grant administrator rights to an account",
				Flags: []cli.Flag{nameFlag},
				Action: func(c *cli.Context) error {
					return setAdmin(c, true)
				},
			},
			{
				Name:  "demote",
				Usage: "Revoke administrator rights from an account",
				Flags: []cli.Flag{nameFlag},
				Action: func(c *cli.Context) error {
					return setAdmin(c, false)
				},
			},
		},
	}
}

func runUserCreate(c *cli.Context) error {
	if len(c.String("password")) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	cfg, err := loadValidConfig(c)
	if err != nil {
		return err
	}
	db, err := openDB(c.Context, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(c.String("password")), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user, err := identity.NewPostgresStore(db).CreateUser(c.Context, c.String("name"), string(hash), c.Bool("admin"))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	log.Info().Int64("user_id", user.ID).Str("username", user.Username).Bool("admin", user.IsAdmin).Msg("User created")
	return nil
}

func setAdmin(c *cli.Context, admin bool) error {
	cfg, err := loadValidConfig(c)
	if err != nil {
		return err
	}
	db, err := openDB(c.Context, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store := identity.NewPostgresStore(db)
	user, err := store.UserByName(c.Context, c.String("name"))
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if err := store.SetAdmin(c.Context, user.ID, admin); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	log.Info().Int64("user_id", user.ID).Bool("admin", admin).Msg("Administrator flag updated")
	return nil
}

package api

import (
	"database/sql"

	"github.com/podjdr/internal/api/auth"
	"github.com/podjdr/internal/config"
	"github.com/podjdr/internal/contacts"
	"github.com/podjdr/internal/dice"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/internal/messages"
	"github.com/podjdr/internal/shadow"
)

// Services are the process-scoped components handlers call into
type Services struct {
	Registry *identity.Registry
	Contacts *contacts.Service
	Messages *messages.Service
	Codes    *shadow.Allocator
	Policy   *shadow.Policy
	Channel  *shadow.Channel
	Dice     *dice.Service
	Tokens   *auth.TokenService
}

// NewPostgresServices wires every component to Postgres. The shadow code
// cache starts empty; call Codes.Refresh to warm it.
func NewPostgresServices(db *sql.DB, cfg *config.Config) *Services {
	registry := identity.NewRegistry(identity.NewPostgresStore(db))
	msgStore := messages.NewPostgresStore(db)
	return assemble(cfg, registry,
		contacts.NewPostgresStore(db),
		msgStore,
		shadow.NewPostgresCodeStore(db),
		shadow.NewPostgresGrantStore(db),
		dice.NewPostgresStore(db))
}

// NewInMemoryServices wires every component to in-memory stores
func NewInMemoryServices(cfg *config.Config) *Services {
	ids := identity.NewInMemoryStore()
	msgStore := messages.NewInMemoryStore()
	return assemble(cfg, identity.NewRegistry(ids),
		contacts.NewInMemoryStore(ids, msgStore),
		msgStore,
		shadow.NewInMemoryCodeStore(),
		shadow.NewInMemoryGrantStore(),
		dice.NewInMemoryStore())
}

func assemble(cfg *config.Config, registry *identity.Registry, contactStore contacts.Store, msgStore messages.Store,
	codeStore shadow.CodeStore, grantStore shadow.GrantStore, diceStore dice.Store) *Services {
	codes := shadow.NewAllocator(codeStore)
	policy := shadow.NewPolicy(registry, grantStore, shadow.PolicyOptions{
		AllowedHumans: cfg.Shadow.AllowedUsers,
		AllowedBots:   cfg.Shadow.AllowedBots,
		AdminBypass:   cfg.Shadow.AdminBypass,
	})
	return &Services{
		Registry: registry,
		Contacts: contacts.NewService(contactStore, registry),
		Messages: messages.NewService(msgStore),
		Codes:    codes,
		Policy:   policy,
		Channel:  shadow.NewChannel(codes, policy, registry),
		Dice:     dice.NewService(diceStore, cfg.Dice.HistorySize),
		Tokens:   auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
	}
}

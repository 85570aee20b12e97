package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/database"
	"github.com/podjdr/pkg/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const userColumns = `id, username, password_hash, is_admin, created_at`
const botColumns = `id, name, description, created_at`

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO users (username, password_hash, is_admin)
        VALUES ($1, $2, $3)
        RETURNING `+userColumns, username, passwordHash, isAdmin)
	u, err := scanUser(row)
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Conflictf("username %q already taken", username)
		}
		return nil, apperr.FromDB(err)
	}
	return u, nil
}

func (s *PostgresStore) UserByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("user %d", id))
	}
	return u, nil
}

func (s *PostgresStore) UserByName(ctx context.Context, name string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+userColumns+` FROM users
        WHERE username = $1 OR lower(username) = lower($1)
        ORDER BY (username = $1) DESC, id ASC
        LIMIT 1`, name)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("user %q", name))
	}
	return u, nil
}

func (s *PostgresStore) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = $1 WHERE id = $2`, isAdmin, id)
	if err != nil {
		return apperr.FromDB(err)
	}
	return requireRow(res, fmt.Sprintf("user %d", id))
}

func (s *PostgresStore) CreateBot(ctx context.Context, name, description string) (*models.BotAccount, error) {
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO bots (name, description)
        VALUES ($1, $2)
        RETURNING `+botColumns, name, description)
	b, err := scanBot(row)
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Conflictf("bot %q already exists", name)
		}
		return nil, apperr.FromDB(err)
	}
	return b, nil
}

func (s *PostgresStore) UpdateBot(ctx context.Context, id int64, name, description string) (*models.BotAccount, error) {
	row := s.db.QueryRowContext(ctx, `
        UPDATE bots SET name = $1, description = $2
        WHERE id = $3
        RETURNING `+botColumns, name, description, id)
	b, err := scanBot(row)
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Conflictf("bot %q already exists", name)
		}
		return nil, notFoundOr(err, fmt.Sprintf("bot %d", id))
	}
	return b, nil
}

// DeleteBot removes the bot together with the rows keyed by its identity
// that carry no foreign key: its covert grant and its shadow code.
func (s *PostgresStore) DeleteBot(ctx context.Context, id int64) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM shadow_access WHERE entity_kind = 'bot' AND entity_id = $1`, id); err != nil {
			return apperr.FromDB(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM shadow_codes WHERE entity_kind = 'bot' AND entity_id = $1`, id); err != nil {
			return apperr.FromDB(err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM bots WHERE id = $1`, id)
		if err != nil {
			return apperr.FromDB(err)
		}
		return requireRow(res, fmt.Sprintf("bot %d", id))
	})
}

func (s *PostgresStore) ListBots(ctx context.Context) ([]*models.BotAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+botColumns+` FROM bots ORDER BY id ASC`)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	defer rows.Close()
	// Always return a non-nil slice so JSON encodes as [] instead of null
	out := make([]*models.BotAccount, 0)
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, apperr.FromDB(err)
		}
		out = append(out, b)
	}
	return out, apperr.FromDB(rows.Err())
}

func (s *PostgresStore) BotByID(ctx context.Context, id int64) (*models.BotAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE id = $1`, id)
	b, err := scanBot(row)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("bot %d", id))
	}
	return b, nil
}

func (s *PostgresStore) BotByName(ctx context.Context, name string) (*models.BotAccount, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+botColumns+` FROM bots
        WHERE name = $1 OR lower(name) = lower($1)
        ORDER BY (name = $1) DESC, id ASC
        LIMIT 1`, name)
	b, err := scanBot(row)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("bot %q", name))
	}
	return b, nil
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (*models.User, error) {
	var u models.User
	if err := scanner.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanBot(scanner interface{ Scan(dest ...any) error }) (*models.BotAccount, error) {
	var b models.BotAccount
	if err := scanner.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("%s", what)
	}
	return apperr.FromDB(err)
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.FromDB(err)
	}
	if n == 0 {
		return apperr.NotFound("%s", what)
	}
	return nil
}

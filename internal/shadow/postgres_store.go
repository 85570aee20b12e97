package shadow

import (
	"context"
	"database/sql"
	"errors"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

// Constraint names declared in schema.sql
const (
	codeUniqueConstraint   = "shadow_codes_code_key"
	entityUniqueConstraint = "shadow_codes_entity_key"
)

type PostgresCodeStore struct {
	db *sql.DB
}

func NewPostgresCodeStore(db *sql.DB) *PostgresCodeStore { return &PostgresCodeStore{db: db} }

func (s *PostgresCodeStore) LoadAll(ctx context.Context) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_kind, entity_id, code FROM shadow_codes ORDER BY code`)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	defer rows.Close()
	out := make([]Assignment, 0)
	for rows.Next() {
		var kind string
		var a Assignment
		if err := rows.Scan(&kind, &a.Ref.ID, &a.Code); err != nil {
			return nil, apperr.FromDB(err)
		}
		a.Ref.Kind = models.Kind(kind)
		out = append(out, a)
	}
	return out, apperr.FromDB(rows.Err())
}

func (s *PostgresCodeStore) Lookup(ctx context.Context, ref models.Ref) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx, `
        SELECT code FROM shadow_codes WHERE entity_kind = $1 AND entity_id = $2
    `, string(ref.Kind), ref.ID).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("no shadow code for %s", ref)
	}
	if err != nil {
		return "", apperr.FromDB(err)
	}
	return code, nil
}

func (s *PostgresCodeStore) Insert(ctx context.Context, ref models.Ref, code string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO shadow_codes (entity_kind, entity_id, code) VALUES ($1, $2, $3)
    `, string(ref.Kind), ref.ID, code)
	if err == nil {
		return nil
	}
	if apperr.IsUniqueViolation(err) {
		switch apperr.ConstraintName(err) {
		case codeUniqueConstraint:
			return ErrCodeTaken
		case entityUniqueConstraint:
			return ErrAlreadyAssigned
		}
	}
	return apperr.FromDB(err)
}

func (s *PostgresCodeStore) Delete(ctx context.Context, ref models.Ref) error {
	_, err := s.db.ExecContext(ctx, `
        DELETE FROM shadow_codes WHERE entity_kind = $1 AND entity_id = $2
    `, string(ref.Kind), ref.ID)
	return apperr.FromDB(err)
}

type PostgresGrantStore struct {
	db *sql.DB
}

func NewPostgresGrantStore(db *sql.DB) *PostgresGrantStore { return &PostgresGrantStore{db: db} }

func (s *PostgresGrantStore) Grant(ctx context.Context, ref models.Ref) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO shadow_access (entity_kind, entity_id) VALUES ($1, $2)
        ON CONFLICT (entity_kind, entity_id) DO NOTHING
    `, string(ref.Kind), ref.ID)
	return apperr.FromDB(err)
}

func (s *PostgresGrantStore) Revoke(ctx context.Context, ref models.Ref) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
        DELETE FROM shadow_access WHERE entity_kind = $1 AND entity_id = $2
    `, string(ref.Kind), ref.ID)
	if err != nil {
		return false, apperr.FromDB(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.FromDB(err)
	}
	return n > 0, nil
}

func (s *PostgresGrantStore) IsGranted(ctx context.Context, ref models.Ref) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
        SELECT EXISTS (SELECT 1 FROM shadow_access WHERE entity_kind = $1 AND entity_id = $2)
    `, string(ref.Kind), ref.ID).Scan(&ok)
	if err != nil {
		return false, apperr.FromDB(err)
	}
	return ok, nil
}

func (s *PostgresGrantStore) List(ctx context.Context) ([]models.Ref, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_kind, entity_id FROM shadow_access`)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	defer rows.Close()
	out := make([]models.Ref, 0)
	for rows.Next() {
		var kind string
		var ref models.Ref
		if err := rows.Scan(&kind, &ref.ID); err != nil {
			return nil, apperr.FromDB(err)
		}
		ref.Kind = models.Kind(kind)
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.FromDB(err)
	}
	sortRefs(out)
	return out, nil
}

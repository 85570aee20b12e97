package messages

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/database"
	"github.com/podjdr/pkg/models"
)

// Each end of a message is stored in a user column or a bot column, never both.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Insert(ctx context.Context, msg *models.Message) error {
	su, sb := refColumns(msg.Sender)
	ru, rb := refColumns(msg.Receiver)
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO messages (sender_user_id, sender_bot_id, receiver_user_id, receiver_bot_id, content)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, is_read
    `, su, sb, ru, rb, msg.Content).Scan(&msg.ID, &msg.CreatedAt, &msg.IsRead)
	return apperr.FromDB(err)
}

func (s *PostgresStore) Thread(ctx context.Context, self, peer models.Ref) ([]models.Message, error) {
	out := make([]models.Message, 0)
	query := fmt.Sprintf(`
        SELECT id, sender_user_id, sender_bot_id, receiver_user_id, receiver_bot_id, content, created_at, is_read
        FROM messages
        WHERE (%s AND %s) OR (%s AND %s)
        ORDER BY created_at ASC, id ASC
        FOR UPDATE`,
		predicate("sender", self, 1), predicate("receiver", peer, 2),
		predicate("sender", peer, 2), predicate("receiver", self, 1))

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, self.ID, peer.ID)
		if err != nil {
			return apperr.FromDB(err)
		}
		var unread []int64
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				rows.Close()
				return apperr.FromDB(err)
			}
			if m.Receiver == self && !m.IsRead {
				unread = append(unread, m.ID)
			}
			out = append(out, *m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return apperr.FromDB(err)
		}
		if len(unread) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE id = ANY($1)`, pq.Array(unread))
		return apperr.FromDB(err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) CountUnread(ctx context.Context, from, to models.Ref) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM messages WHERE %s AND %s AND NOT is_read`,
		predicate("sender", from, 1), predicate("receiver", to, 2))
	if err := s.db.QueryRowContext(ctx, query, from.ID, to.ID).Scan(&n); err != nil {
		return 0, apperr.FromDB(err)
	}
	return n, nil
}

// predicate matches one end of a message against a reference. Only the
// column name is interpolated; the id is always a bind parameter.
func predicate(side string, r models.Ref, param int) string {
	col := "user"
	if r.Kind == models.KindBot {
		col = "bot"
	}
	return fmt.Sprintf("%s_%s_id = $%d", side, col, param)
}

func refColumns(r models.Ref) (user, bot sql.NullInt64) {
	if r.Kind == models.KindBot {
		return user, sql.NullInt64{Int64: r.ID, Valid: true}
	}
	return sql.NullInt64{Int64: r.ID, Valid: true}, bot
}

func refFrom(user, bot sql.NullInt64) models.Ref {
	switch {
	case user.Valid:
		return models.Human(user.Int64)
	case bot.Valid:
		return models.Bot(bot.Int64)
	default:
		// the account was deleted
		return models.Ref{}
	}
}

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*models.Message, error) {
	var m models.Message
	var su, sb, ru, rb sql.NullInt64
	if err := scanner.Scan(&m.ID, &su, &sb, &ru, &rb, &m.Content, &m.CreatedAt, &m.IsRead); err != nil {
		return nil, err
	}
	m.Sender = refFrom(su, sb)
	m.Receiver = refFrom(ru, rb)
	return &m, nil
}

package contacts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/database"
	"github.com/podjdr/pkg/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) InsertRequest(ctx context.Context, edge models.ContactEdge) (*models.ContactEdge, bool, error) {
	switch pairShape(edge.Requester, edge.Target) {
	case shapeHumans:
		err := s.db.QueryRowContext(ctx, `
            INSERT INTO contacts (user_id, contact_id, status)
            VALUES ($1, $2, $3)
            ON CONFLICT (user_id, contact_id) DO NOTHING
            RETURNING created_at
        `, edge.Requester.ID, edge.Target.ID, int(edge.Status)).Scan(&edge.CreatedAt)
		if err == nil {
			return &edge, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, apperr.FromDB(err)
		}
		var status int
		err = s.db.QueryRowContext(ctx, `
            SELECT status, created_at FROM contacts WHERE user_id = $1 AND contact_id = $2
        `, edge.Requester.ID, edge.Target.ID).Scan(&status, &edge.CreatedAt)
		if err != nil {
			return nil, false, apperr.FromDB(err)
		}
		edge.Status = models.ContactStatus(status)
		return &edge, false, nil
	case shapeBot:
		bot, user := splitBot(edge.Requester, edge.Target)
		err := s.db.QueryRowContext(ctx, `
            INSERT INTO bot_contacts (bot_id, user_id, status, initiator)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (bot_id, user_id) DO NOTHING
            RETURNING created_at
        `, bot.ID, user.ID, int(edge.Status), string(edge.Requester.Kind)).Scan(&edge.CreatedAt)
		if err == nil {
			return &edge, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, apperr.FromDB(err)
		}
		row := s.db.QueryRowContext(ctx, `
            SELECT status, initiator, created_at FROM bot_contacts WHERE bot_id = $1 AND user_id = $2
        `, bot.ID, user.ID)
		stored, err := scanBotEdge(row, bot, user)
		if err != nil {
			return nil, false, apperr.FromDB(err)
		}
		return stored, false, nil
	default:
		return nil, false, apperr.Invalid("bots cannot be contacts of other bots")
	}
}

func (s *PostgresStore) Accept(ctx context.Context, acceptor, requester models.Ref) error {
	switch pairShape(acceptor, requester) {
	case shapeHumans:
		return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
                UPDATE contacts SET status = 1
                WHERE user_id = $1 AND contact_id = $2 AND status IN (0, 1)
            `, requester.ID, acceptor.ID)
			if err != nil {
				return apperr.FromDB(err)
			}
			if err := requireRow(res, requester); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
                INSERT INTO contacts (user_id, contact_id, status)
                VALUES ($1, $2, 1)
                ON CONFLICT (user_id, contact_id) DO UPDATE SET status = 1
            `, acceptor.ID, requester.ID)
			return apperr.FromDB(err)
		})
	case shapeBot:
		bot, user := splitBot(acceptor, requester)
		res, err := s.db.ExecContext(ctx, `
            UPDATE bot_contacts SET status = 1
            WHERE bot_id = $1 AND user_id = $2 AND status IN ($3, 1)
        `, bot.ID, user.ID, int(awaiting(acceptor.Kind)))
		if err != nil {
			return apperr.FromDB(err)
		}
		return requireRow(res, requester)
	default:
		return apperr.Invalid("bots cannot be contacts of other bots")
	}
}

func (s *PostgresStore) Remove(ctx context.Context, self, peer models.Ref) error {
	var err error
	switch pairShape(self, peer) {
	case shapeHumans:
		_, err = s.db.ExecContext(ctx, `
            DELETE FROM contacts
            WHERE (user_id = $1 AND contact_id = $2) OR (user_id = $2 AND contact_id = $1)
        `, self.ID, peer.ID)
	case shapeBot:
		bot, user := splitBot(self, peer)
		_, err = s.db.ExecContext(ctx, `DELETE FROM bot_contacts WHERE bot_id = $1 AND user_id = $2`, bot.ID, user.ID)
	default:
		return apperr.Invalid("bots cannot be contacts of other bots")
	}
	return apperr.FromDB(err)
}

const humanAcceptedQuery = `
    SELECT u.id, 'human', u.username,
        (SELECT COUNT(*) FROM messages m
         WHERE m.sender_user_id = u.id AND m.receiver_user_id = $1 AND NOT m.is_read)
    FROM contacts c JOIN users u ON u.id = c.contact_id
    WHERE c.user_id = $1 AND c.status = 1
    UNION ALL
    SELECT b.id, 'bot', b.name,
        (SELECT COUNT(*) FROM messages m
         WHERE m.sender_bot_id = b.id AND m.receiver_user_id = $1 AND NOT m.is_read)
    FROM bot_contacts c JOIN bots b ON b.id = c.bot_id
    WHERE c.user_id = $1 AND c.status = 1
    ORDER BY 3`

const botAcceptedQuery = `
    SELECT u.id, 'human', u.username,
        (SELECT COUNT(*) FROM messages m
         WHERE m.sender_user_id = u.id AND m.receiver_bot_id = $1 AND NOT m.is_read)
    FROM bot_contacts c JOIN users u ON u.id = c.user_id
    WHERE c.bot_id = $1 AND c.status = 1
    ORDER BY 3`

func (s *PostgresStore) ListAccepted(ctx context.Context, self models.Ref) ([]models.ContactEntry, error) {
	query := humanAcceptedQuery
	if self.Kind == models.KindBot {
		query = botAcceptedQuery
	}
	rows, err := s.db.QueryContext(ctx, query, self.ID)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	defer rows.Close()
	out := make([]models.ContactEntry, 0)
	for rows.Next() {
		var e models.ContactEntry
		var kind string
		if err := rows.Scan(&e.PeerID, &kind, &e.DisplayName, &e.UnreadCount); err != nil {
			return nil, apperr.FromDB(err)
		}
		e.PeerKind = models.Kind(kind)
		out = append(out, e)
	}
	return out, apperr.FromDB(rows.Err())
}

const humanIncomingQuery = `
    SELECT u.id, 'human', u.username
    FROM contacts c JOIN users u ON u.id = c.user_id
    WHERE c.contact_id = $1 AND c.status = 0
    UNION ALL
    SELECT b.id, 'bot', b.name
    FROM bot_contacts c JOIN bots b ON b.id = c.bot_id
    WHERE c.user_id = $1 AND c.status = 0
    ORDER BY 3`

const botIncomingQuery = `
    SELECT u.id, 'human', u.username
    FROM bot_contacts c JOIN users u ON u.id = c.user_id
    WHERE c.bot_id = $1 AND c.status = 2
    ORDER BY 3`

const humanOutgoingQuery = `
    SELECT u.id, 'human', u.username
    FROM contacts c JOIN users u ON u.id = c.contact_id
    WHERE c.user_id = $1 AND c.status = 0
    UNION ALL
    SELECT b.id, 'bot', b.name
    FROM bot_contacts c JOIN bots b ON b.id = c.bot_id
    WHERE c.user_id = $1 AND c.status = 2
    ORDER BY 3`

const botOutgoingQuery = `
    SELECT u.id, 'human', u.username
    FROM bot_contacts c JOIN users u ON u.id = c.user_id
    WHERE c.bot_id = $1 AND c.status = 0
    ORDER BY 3`

func (s *PostgresStore) ListIncoming(ctx context.Context, self models.Ref) ([]models.ContactRequest, error) {
	if self.Kind == models.KindBot {
		return s.listRequests(ctx, botIncomingQuery, self.ID)
	}
	return s.listRequests(ctx, humanIncomingQuery, self.ID)
}

func (s *PostgresStore) ListOutgoing(ctx context.Context, self models.Ref) ([]models.ContactRequest, error) {
	if self.Kind == models.KindBot {
		return s.listRequests(ctx, botOutgoingQuery, self.ID)
	}
	return s.listRequests(ctx, humanOutgoingQuery, self.ID)
}

func (s *PostgresStore) listRequests(ctx context.Context, query string, id int64) ([]models.ContactRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	defer rows.Close()
	out := make([]models.ContactRequest, 0)
	for rows.Next() {
		var r models.ContactRequest
		var kind string
		if err := rows.Scan(&r.PeerID, &kind, &r.DisplayName); err != nil {
			return nil, apperr.FromDB(err)
		}
		r.PeerKind = models.Kind(kind)
		out = append(out, r)
	}
	return out, apperr.FromDB(rows.Err())
}

func (s *PostgresStore) IsAccepted(ctx context.Context, a, b models.Ref) (bool, error) {
	var ok bool
	var err error
	switch pairShape(a, b) {
	case shapeHumans:
		err = s.db.QueryRowContext(ctx, `
            SELECT EXISTS (
                SELECT 1 FROM contacts
                WHERE status = 1 AND ((user_id = $1 AND contact_id = $2) OR (user_id = $2 AND contact_id = $1))
            )`, a.ID, b.ID).Scan(&ok)
	case shapeBot:
		bot, user := splitBot(a, b)
		err = s.db.QueryRowContext(ctx, `
            SELECT EXISTS (SELECT 1 FROM bot_contacts WHERE bot_id = $1 AND user_id = $2 AND status = 1)
        `, bot.ID, user.ID).Scan(&ok)
	default:
		return false, nil
	}
	if err != nil {
		return false, apperr.FromDB(err)
	}
	return ok, nil
}

func (s *PostgresStore) EdgesBetween(ctx context.Context, a, b models.Ref) ([]models.ContactEdge, error) {
	out := make([]models.ContactEdge, 0, 2)
	switch pairShape(a, b) {
	case shapeHumans:
		rows, err := s.db.QueryContext(ctx, `
            SELECT user_id, contact_id, status, created_at FROM contacts
            WHERE (user_id = $1 AND contact_id = $2) OR (user_id = $2 AND contact_id = $1)
            ORDER BY created_at, user_id
        `, a.ID, b.ID)
		if err != nil {
			return nil, apperr.FromDB(err)
		}
		defer rows.Close()
		for rows.Next() {
			var from, to int64
			var status int
			var e models.ContactEdge
			if err := rows.Scan(&from, &to, &status, &e.CreatedAt); err != nil {
				return nil, apperr.FromDB(err)
			}
			e.Requester, e.Target, e.Status = models.Human(from), models.Human(to), models.ContactStatus(status)
			out = append(out, e)
		}
		return out, apperr.FromDB(rows.Err())
	case shapeBot:
		bot, user := splitBot(a, b)
		row := s.db.QueryRowContext(ctx, `
            SELECT status, initiator, created_at FROM bot_contacts WHERE bot_id = $1 AND user_id = $2
        `, bot.ID, user.ID)
		e, err := scanBotEdge(row, bot, user)
		if errors.Is(err, sql.ErrNoRows) {
			return out, nil
		}
		if err != nil {
			return nil, apperr.FromDB(err)
		}
		return append(out, *e), nil
	default:
		return out, nil
	}
}

func scanBotEdge(scanner interface{ Scan(dest ...any) error }, bot, user models.Ref) (*models.ContactEdge, error) {
	var status int
	var initiator string
	var e models.ContactEdge
	if err := scanner.Scan(&status, &initiator, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Requester, e.Target, e.Status = user, bot, models.ContactStatus(status)
	if models.Kind(initiator) == models.KindBot {
		e.Requester, e.Target = bot, user
	}
	return &e, nil
}

func requireRow(res sql.Result, requester models.Ref) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.FromDB(err)
	}
	if n == 0 {
		return apperr.NotFound("no pending request from %s", requester)
	}
	return nil
}

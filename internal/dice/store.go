package dice

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

// StatRow is the aggregate of one player's rolls of one die size
type StatRow struct {
	UserID     int64
	Username   string
	Sides      int
	Rolls      int
	DiceRolled int
	FaceSum    int
	Best       int
}

type Store interface {
	Insert(ctx context.Context, roll *models.DiceRoll) error
	Aggregate(ctx context.Context) ([]StatRow, error)
}

// InMemoryStore is a threadsafe in-memory store for tests
type InMemoryStore struct {
	mu     sync.Mutex
	rolls  []models.DiceRoll
	nextID int64
}

func NewInMemoryStore() *InMemoryStore { return &InMemoryStore{} }

func (s *InMemoryStore) Insert(ctx context.Context, roll *models.DiceRoll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	roll.ID = s.nextID
	roll.CreatedAt = time.Now()
	s.rolls = append(s.rolls, *roll)
	return nil
}

func (s *InMemoryStore) Aggregate(ctx context.Context) ([]StatRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		user  int64
		sides int
	}
	agg := make(map[key]*StatRow)
	for _, r := range s.rolls {
		k := key{r.UserID, r.Sides}
		row, ok := agg[k]
		if !ok {
			row = &StatRow{UserID: r.UserID, Username: r.Username, Sides: r.Sides, Best: r.Total}
			agg[k] = row
		}
		row.Rolls++
		row.DiceRolled += r.Count
		row.FaceSum += r.Total - r.Modifier
		if r.Total > row.Best {
			row.Best = r.Total
		}
	}
	out := make([]StatRow, 0, len(agg))
	for _, row := range agg {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Sides < out[j].Sides
	})
	return out, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Insert(ctx context.Context, roll *models.DiceRoll) error {
	rolls := make([]int64, len(roll.Rolls))
	for i, v := range roll.Rolls {
		rolls[i] = int64(v)
	}
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO dice_rolls (user_id, sides, dice_count, modifier, rolls, total)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `, roll.UserID, roll.Sides, roll.Count, roll.Modifier, pq.Array(rolls), roll.Total).Scan(&roll.ID, &roll.CreatedAt)
	return apperr.FromDB(err)
}

func (s *PostgresStore) Aggregate(ctx context.Context) ([]StatRow, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT d.user_id, u.username, d.sides,
               COUNT(*), SUM(d.dice_count), SUM(d.total - d.modifier), MAX(d.total)
        FROM dice_rolls d JOIN users u ON u.id = d.user_id
        GROUP BY d.user_id, u.username, d.sides
        ORDER BY d.user_id, d.sides
    `)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	defer rows.Close()
	out := make([]StatRow, 0)
	for rows.Next() {
		var r StatRow
		if err := rows.Scan(&r.UserID, &r.Username, &r.Sides, &r.Rolls, &r.DiceRolled, &r.FaceSum, &r.Best); err != nil {
			return nil, apperr.FromDB(err)
		}
		out = append(out, r)
	}
	return out, apperr.FromDB(rows.Err())
}

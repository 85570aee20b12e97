// Package dice rolls dice for players, keeps a short in-memory history and
// aggregates per-player statistics from the stored rolls.
package dice

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

// Bounds of a single roll group
const (
	MaxSides  = 1000
	MaxCount  = 100
	MaxGroups = 10
)

// Request is one group of identical dice
type Request struct {
	Sides    int `json:"sides"`
	Count    int `json:"count"`
	Modifier int `json:"modifier"`
}

func (r Request) validate() error {
	if r.Sides < 1 || r.Sides > MaxSides {
		return apperr.Invalid("sides must be between 1 and %d", MaxSides)
	}
	if r.Count < 1 || r.Count > MaxCount {
		return apperr.Invalid("count must be between 1 and %d", MaxCount)
	}
	return nil
}

// DieStats summarises one player's rolls of one die size
type DieStats struct {
	Sides      int     `json:"sides"`
	Rolls      int     `json:"rolls"`
	DiceRolled int     `json:"dice_rolled"`
	Average    float64 `json:"average"`
	Max        int     `json:"max"`
}

// PlayerStats groups a player's statistics by die size
type PlayerStats struct {
	UserID   int64      `json:"user_id"`
	Username string     `json:"username"`
	Dice     []DieStats `json:"dice"`
}

// Service rolls dice and reports on them
type Service struct {
	store   Store
	history *History
	random  func(n int) (int, error)
}

func NewService(store Store, historySize int) *Service {
	return &Service{store: store, history: NewHistory(historySize), random: cryptoIntn}
}

func cryptoIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// Roll rolls every group for the user, stores each one and appends it to
// the recent history. Nothing is rolled if any group is invalid.
func (s *Service) Roll(ctx context.Context, userID int64, username string, groups []Request) ([]models.DiceRoll, error) {
	if len(groups) == 0 {
		return nil, apperr.Invalid("at least one dice group is required")
	}
	if len(groups) > MaxGroups {
		return nil, apperr.Invalid("at most %d dice groups per roll", MaxGroups)
	}
	for _, g := range groups {
		if err := g.validate(); err != nil {
			return nil, err
		}
	}

	out := make([]models.DiceRoll, 0, len(groups))
	for _, g := range groups {
		roll := models.DiceRoll{
			UserID:   userID,
			Username: username,
			Sides:    g.Sides,
			Count:    g.Count,
			Modifier: g.Modifier,
			Rolls:    make([]int, g.Count),
		}
		sum := 0
		for i := range roll.Rolls {
			n, err := s.random(g.Sides)
			if err != nil {
				return nil, err
			}
			roll.Rolls[i] = n + 1
			sum += n + 1
		}
		roll.Total = sum + g.Modifier
		if err := s.store.Insert(ctx, &roll); err != nil {
			return nil, err
		}
		s.history.Add(roll)
		out = append(out, roll)
	}
	log.Debug().Int64("user_id", userID).Int("groups", len(out)).Msg("Dice rolled")
	return out, nil
}

// Recent returns the most recent rolls of every player, oldest first
func (s *Service) Recent() []models.DiceRoll { return s.history.Snapshot() }

// Stats aggregates every stored roll per player and die size. The caller's
// own entry comes first, then the other players by name.
func (s *Service) Stats(ctx context.Context, callerID int64) ([]PlayerStats, error) {
	rows, err := s.store.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	byUser := make(map[int64]*PlayerStats)
	for _, r := range rows {
		p, ok := byUser[r.UserID]
		if !ok {
			p = &PlayerStats{UserID: r.UserID, Username: r.Username, Dice: []DieStats{}}
			byUser[r.UserID] = p
		}
		avg := 0.0
		if r.DiceRolled > 0 {
			avg = math.Round(float64(r.FaceSum)/float64(r.DiceRolled)*100) / 100
		}
		p.Dice = append(p.Dice, DieStats{Sides: r.Sides, Rolls: r.Rolls, DiceRolled: r.DiceRolled, Average: avg, Max: r.Best})
	}

	out := make([]PlayerStats, 0, len(byUser))
	for _, p := range byUser {
		sort.Slice(p.Dice, func(i, j int) bool { return p.Dice[i].Sides < p.Dice[j].Sides })
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].UserID == callerID) != (out[j].UserID == callerID) {
			return out[i].UserID == callerID
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// History is a bounded log of recent rolls
type History struct {
	mu    sync.Mutex
	size  int
	rolls []models.DiceRoll
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{size: size}
}

func (h *History) Add(roll models.DiceRoll) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rolls = append(h.rolls, roll)
	if over := len(h.rolls) - h.size; over > 0 {
		h.rolls = append([]models.DiceRoll(nil), h.rolls[over:]...)
	}
}

func (h *History) Snapshot() []models.DiceRoll {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.DiceRoll, len(h.rolls))
	copy(out, h.rolls)
	return out
}

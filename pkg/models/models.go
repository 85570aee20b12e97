package models

import (
	"fmt"
	"strings"
	"time"
)

// Identity models

// Kind distinguishes human accounts from bot accounts
type Kind string

const (
	KindHuman Kind = "human"
	KindBot   Kind = "bot"
)

// ParseKind accepts the canonical kind names plus the legacy aliases used by older clients
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human", "user":
		return KindHuman, nil
	case "bot", "pnj":
		return KindBot, nil
	default:
		return "", fmt.Errorf("unknown identity kind %q", s)
	}
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	return k == KindHuman || k == KindBot
}

// Ref addresses an identity uniformly regardless of its kind
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Human returns a reference to a human account
func Human(id int64) Ref { return Ref{Kind: KindHuman, ID: id} }

// Bot returns a reference to a bot account
func Bot(id int64) Ref { return Ref{Kind: KindBot, ID: id} }

// User represents a human account
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never expose password hash in JSON
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Ref returns the identity reference of the user
func (u *User) Ref() Ref { return Human(u.ID) }

// BotAccount represents a non-player account managed from the admin console
type BotAccount struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Ref returns the identity reference of the bot
func (b *BotAccount) Ref() Ref { return Bot(b.ID) }

// Session is the verified identity attached to an authenticated request.
// When an administrator acts on behalf of a bot, Kind is KindBot and the
// Impersonator fields carry the administrator.
type Session struct {
	Kind             Kind   `json:"kind"`
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	IsAdmin          bool   `json:"is_admin"`
	ImpersonatorID   int64  `json:"impersonator_id,omitempty"`
	ImpersonatorName string `json:"impersonator_name,omitempty"`
}

// Ref returns the identity the session acts as
func (s *Session) Ref() Ref { return Ref{Kind: s.Kind, ID: s.ID} }

// IsImpersonating reports whether an administrator is acting as a bot
func (s *Session) IsImpersonating() bool { return s.ImpersonatorID != 0 }

// Contact models

// ContactStatus is the state of a directed contact edge. The numeric values
// are persisted as-is.
type ContactStatus int

const (
	// StatusPendingTarget means the target of the request must approve.
	// On bot edges it means the human side must approve.
	StatusPendingTarget ContactStatus = 0
	// StatusAccepted means both sides may message each other.
	StatusAccepted ContactStatus = 1
	// StatusPendingRequester means the bot side must approve a request
	// a human addressed to it.
	StatusPendingRequester ContactStatus = 2
)

func (s ContactStatus) String() string {
	switch s {
	case StatusPendingTarget:
		return "pending_target_approval"
	case StatusAccepted:
		return "accepted"
	case StatusPendingRequester:
		return "pending_requester_approval"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status by name in JSON payloads
func (s ContactStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ContactEdge is a directed relationship between a requester and a target
type ContactEdge struct {
	Requester Ref           `json:"requester"`
	Target    Ref           `json:"target"`
	Status    ContactStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Involves reports whether r is one of the two ends of the edge
func (e *ContactEdge) Involves(r Ref) bool {
	return e.Requester == r || e.Target == r
}

// Peer returns the end of the edge that is not self
func (e *ContactEdge) Peer(self Ref) Ref {
	if e.Requester == self {
		return e.Target
	}
	return e.Requester
}

// ContactEntry is an accepted contact as seen from one side, with the number
// of unread messages that peer addressed to the viewer
type ContactEntry struct {
	PeerID      int64  `json:"id"`
	PeerKind    Kind   `json:"kind"`
	DisplayName string `json:"username"`
	UnreadCount int    `json:"unread_count"`
}

// ContactRequest is a pending edge as seen from one side
type ContactRequest struct {
	PeerID      int64  `json:"id"`
	PeerKind    Kind   `json:"kind"`
	DisplayName string `json:"username"`
}

// Message models

// Message is an entry in the visible channel between two identities
type Message struct {
	ID        int64     `json:"id" db:"id"`
	Sender    Ref       `json:"sender"`
	Receiver  Ref       `json:"receiver"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	IsRead    bool      `json:"is_read" db:"is_read"`
}

// Party is a snapshot of one end of a covert message taken at send time
type Party struct {
	Kind  Kind   `json:"kind"`
	ID    int64  `json:"-"`
	Label string `json:"label"`
	Code  string `json:"code"`
}

// Ref returns the identity the snapshot was taken of
func (p Party) Ref() Ref { return Ref{Kind: p.Kind, ID: p.ID} }

// ShadowMessage is an entry of the covert channel. It only ever lives in memory.
type ShadowMessage struct {
	ID        string    `json:"id"`
	Sender    Party     `json:"sender"`
	Receiver  Party     `json:"receiver"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Dice models

// DiceRoll is one rolled group of identical dice with its structured outcome
type DiceRoll struct {
	ID        int64     `json:"id,omitempty" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Username  string    `json:"username"`
	Sides     int       `json:"sides" db:"sides"`
	Count     int       `json:"count" db:"dice_count"`
	Modifier  int       `json:"modifier" db:"modifier"`
	Rolls     []int     `json:"rolls" db:"rolls"`
	Total     int       `json:"total" db:"total"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Notation renders the roll request as NdS[+M]
func (r *DiceRoll) Notation() string {
	switch {
	case r.Modifier > 0:
		return fmt.Sprintf("%dd%d +%d", r.Count, r.Sides, r.Modifier)
	case r.Modifier < 0:
		return fmt.Sprintf("%dd%d %d", r.Count, r.Sides, r.Modifier)
	default:
		return fmt.Sprintf("%dd%d", r.Count, r.Sides)
	}
}

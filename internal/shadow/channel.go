package shadow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/internal/messages"
	"github.com/podjdr/pkg/models"
)

// ErrRecipientUnreachable means the code resolves to an identity that may
// not use the covert channel
var ErrRecipientUnreachable = fmt.Errorf("%w: recipient cannot receive covert messages", apperr.ErrForbidden)

// Threads is the covert log as seen by one identity, oldest first
type Threads struct {
	Inbox []models.ShadowMessage `json:"inbox"`
	Sent  []models.ShadowMessage `json:"sent"`
}

// Channel is the covert message exchange. Its log lives in process memory
// only and is lost on restart.
type Channel struct {
	codes    *Allocator
	policy   *Policy
	registry *identity.Registry

	mu  sync.RWMutex
	log []models.ShadowMessage
	now func() time.Time
}

func NewChannel(codes *Allocator, policy *Policy, registry *identity.Registry) *Channel {
	return &Channel{codes: codes, policy: policy, registry: registry, now: time.Now}
}

// Open returns the caller's own code and label, allocating the code on
// first use
func (c *Channel) Open(ctx context.Context, self models.Ref) (*models.Party, error) {
	if err := c.requireAccess(ctx, self); err != nil {
		return nil, err
	}
	return c.party(ctx, self)
}

// Send appends a message from sender to whoever holds targetCode. Both
// parties are recorded as they are at send time.
func (c *Channel) Send(ctx context.Context, sender models.Ref, targetCode, content string) (*models.ShadowMessage, error) {
	if err := c.requireAccess(ctx, sender); err != nil {
		return nil, err
	}
	if err := messages.ValidateContent(content); err != nil {
		return nil, err
	}
	target, err := c.codes.Resolve(ctx, targetCode)
	if err != nil {
		return nil, err
	}
	if target == sender {
		return nil, apperr.Invalid("cannot send a covert message to yourself")
	}
	ok, err := c.policy.HasAccess(ctx, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecipientUnreachable
	}

	from, err := c.party(ctx, sender)
	if err != nil {
		return nil, err
	}
	to, err := c.party(ctx, target)
	if err != nil {
		return nil, err
	}
	msg := models.ShadowMessage{
		ID:        uuid.NewString(),
		Sender:    *from,
		Receiver:  *to,
		Content:   content,
		CreatedAt: c.now(),
	}
	c.mu.Lock()
	c.log = append(c.log, msg)
	c.mu.Unlock()

	log.Debug().Str("message_id", msg.ID).Msg("Covert message stored")
	return &msg, nil
}

// ListThreads splits the log into messages received and sent by self.
// Entries are matched on the identity recorded at send time, never on the
// code alone, since a released code can be drawn again.
func (c *Channel) ListThreads(ctx context.Context, self models.Ref) (*Threads, error) {
	if err := c.requireAccess(ctx, self); err != nil {
		return nil, err
	}
	out := &Threads{Inbox: []models.ShadowMessage{}, Sent: []models.ShadowMessage{}}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.log {
		if m.Receiver.Ref() == self {
			out.Inbox = append(out.Inbox, m)
		}
		if m.Sender.Ref() == self {
			out.Sent = append(out.Sent, m)
		}
	}
	return out, nil
}

// Forget drops every entry sent or received by a deleted identity
func (c *Channel) Forget(ref models.Ref) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.log[:0]
	for _, m := range c.log {
		if m.Sender.Ref() != ref && m.Receiver.Ref() != ref {
			kept = append(kept, m)
		}
	}
	dropped := len(c.log) - len(kept)
	for i := len(kept); i < len(c.log); i++ {
		c.log[i] = models.ShadowMessage{}
	}
	c.log = kept
	return dropped
}

func (c *Channel) requireAccess(ctx context.Context, ref models.Ref) error {
	ok, err := c.policy.HasAccess(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("covert channel access required")
	}
	return nil
}

func (c *Channel) party(ctx context.Context, ref models.Ref) (*models.Party, error) {
	cur, err := c.registry.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	code, err := c.codes.CodeFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &models.Party{Kind: ref.Kind, ID: ref.ID, Label: cur.Label, Code: code}, nil
}

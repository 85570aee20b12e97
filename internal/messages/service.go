package messages

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

// MaxContentLength bounds a single message, in characters
const MaxContentLength = 4000

// Service stores and delivers visible messages. It does not check the
// contact graph; callers decide who may write to whom.
type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

func (s *Service) Send(ctx context.Context, sender, receiver models.Ref, content string) (*models.Message, error) {
	if !sender.Kind.Valid() || !receiver.Kind.Valid() || receiver.ID <= 0 {
		return nil, apperr.Invalid("sender and receiver are required")
	}
	if sender == receiver {
		return nil, apperr.Invalid("cannot send a message to yourself")
	}
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	msg := &models.Message{Sender: sender, Receiver: receiver, Content: content}
	if err := s.store.Insert(ctx, msg); err != nil {
		return nil, err
	}
	log.Debug().
		Int64("message_id", msg.ID).
		Str("sender", sender.String()).
		Str("receiver", receiver.String()).
		Msg("Message stored")
	return msg, nil
}

// FetchThread returns the conversation between self and peer oldest first
// and marks every unread message addressed to self as read. The returned
// messages carry the read flag as it was before the call.
func (s *Service) FetchThread(ctx context.Context, self, peer models.Ref) ([]models.Message, error) {
	if !peer.Kind.Valid() || peer.ID <= 0 {
		return nil, apperr.Invalid("peer identity is required")
	}
	return s.store.Thread(ctx, self, peer)
}

// CountUnread reports the unread messages from addressed to to
func (s *Service) CountUnread(ctx context.Context, from, to models.Ref) (int, error) {
	return s.store.CountUnread(ctx, from, to)
}

// ValidateContent rejects blank and oversized message bodies
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperr.Invalid("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return apperr.Invalid("message content exceeds %d characters", MaxContentLength)
	}
	return nil
}

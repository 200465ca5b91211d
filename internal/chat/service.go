package chat

import (
	"context"
	"errors"
	"time"

	"call-platform/internal/call"

	"github.com/google/uuid"
)

// Repository is the persistence contract for messages.
//
// It MUST be append-only. No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, m Message) error
	ListByThread(ctx context.Context, threadID string, limit int) ([]Message, error)
}

var ErrInvalidMessage = errors.New("chat: invalid message")

// Service writes conversation messages, including the system-generated
// entries the call flow produces. It satisfies the call core's Notifier
// contract; the core treats every append as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) append(ctx context.Context, m Message) error {
	if s.repo == nil {
		return errors.New("chat: repository not configured")
	}
	if m.ThreadID == "" || m.SenderID == "" {
		return ErrInvalidMessage
	}
	if m.Type == "" {
		return ErrInvalidMessage
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, m)
}

// AppendText records a plain user message.
func (s *Service) AppendText(ctx context.Context, threadID, senderID, text string) error {
	if text == "" {
		return ErrInvalidMessage
	}
	return s.append(ctx, Message{
		ThreadID: threadID,
		SenderID: senderID,
		Type:     MessageTypeText,
		Text:     text,
	})
}

// AppendCallRequest records the outgoing-call entry the caller's side posts
// when a call is placed.
func (s *Service) AppendCallRequest(ctx context.Context, threadID, senderID, callID string, isVideo bool) error {
	return s.append(ctx, Message{
		ThreadID: threadID,
		SenderID: senderID,
		Type:     MessageTypeCallRequest,
		Text:     requestText(isVideo),
		CallID:   callID,
		IsVideo:  isVideo,
	})
}

// AppendCallSummary records the terminal outcome of a call in its thread.
func (s *Service) AppendCallSummary(ctx context.Context, threadID, senderID string, isVideo bool, status call.Status, durationText string) error {
	return s.append(ctx, Message{
		ThreadID: threadID,
		SenderID: senderID,
		Type:     MessageTypeCallInfo,
		Text:     summaryText(isVideo, status, durationText),
		IsVideo:  isVideo,
	})
}

func (s *Service) ListByThread(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if s.repo == nil {
		return nil, errors.New("chat: repository not configured")
	}
	if threadID == "" {
		return nil, ErrInvalidMessage
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByThread(ctx, threadID, limit)
}

func requestText(isVideo bool) string {
	if isVideo {
		return "📹 Video call"
	}
	return "📞 Audio call"
}

func summaryText(isVideo bool, status call.Status, durationText string) string {
	kind := "Audio"
	icon := "📞"
	if isVideo {
		kind = "Video"
		icon = "📹"
	}
	switch status {
	case call.StatusCompleted:
		return icon + " " + kind + " call • " + durationText
	case call.StatusMissed:
		return icon + " Missed " + lower(kind) + " call"
	case call.StatusDeclined:
		return icon + " Declined " + lower(kind) + " call"
	default:
		return icon + " " + kind + " call failed"
	}
}

func lower(kind string) string {
	if kind == "Video" {
		return "video"
	}
	return "audio"
}

package history

import (
	"context"
	"errors"

	"call-platform/internal/call"
)

// Repository is the persistence contract for archived calls.
//
// It MUST be append-only. Entries reflect finished calls and never change.

type Repository interface {
	Append(ctx context.Context, e Entry) error
	ListByThread(ctx context.Context, threadID string, limit int) ([]Entry, error)
}

var ErrInvalidEntry = errors.New("history: invalid entry")

// Service archives terminal call records and serves the history views. It
// satisfies the call core's Archiver contract.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) Archive(ctx context.Context, rec *call.Record) error {
	if s.repo == nil {
		return errors.New("history: repository not configured")
	}
	if rec == nil || rec.CallID == "" {
		return ErrInvalidEntry
	}
	if !rec.Status.Terminal() {
		return ErrInvalidEntry
	}
	return s.repo.Append(ctx, Entry{
		CallID:          rec.CallID,
		ThreadID:        rec.ChatThreadID,
		CallerID:        rec.CallerID,
		RecipientID:     rec.RecipientID,
		IsVideo:         rec.IsVideo,
		Status:          string(rec.Status),
		StartTime:       rec.StartTime,
		EndTime:         rec.EndTime,
		DurationSeconds: rec.DurationSeconds,
	})
}

func (s *Service) ListByThread(ctx context.Context, threadID string, limit int) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("history: repository not configured")
	}
	if threadID == "" {
		return nil, ErrInvalidEntry
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByThread(ctx, threadID, limit)
}

// ThreadSummary aggregates the archived calls of one thread.
func (s *Service) ThreadSummary(ctx context.Context, threadID string) (Summary, error) {
	rows, err := s.ListByThread(ctx, threadID, 500)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{ThreadID: threadID}
	for _, e := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += e.DurationSeconds
		switch call.Status(e.Status) {
		case call.StatusCompleted:
			out.CompletedCalls++
		case call.StatusMissed:
			out.MissedCalls++
		case call.StatusDeclined:
			out.DeclinedCalls++
		case call.StatusError:
			out.FailedCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

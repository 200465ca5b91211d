package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-platform/internal/call"
)

func archivedRecord(callID string, status call.Status, duration int) *call.Record {
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	return &call.Record{
		CallID:          callID,
		ChatThreadID:    "t1",
		CallerID:        "alice",
		RecipientID:     "bob",
		IsVideo:         false,
		Status:          status,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(duration) * time.Second),
		DurationSeconds: duration,
	}
}

func TestService_ArchiveRejectsLiveRecords(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	rec := archivedRecord("c1", call.StatusInProgress, 0)
	if err := svc.Archive(context.Background(), rec); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("got %v, want ErrInvalidEntry", err)
	}
	if err := svc.Archive(context.Background(), nil); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("nil record: got %v, want ErrInvalidEntry", err)
	}
}

func TestService_ArchiveAndList(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Archive(context.Background(), archivedRecord("c1", call.StatusCompleted, 205)); err != nil {
		t.Fatalf("archive: %v", err)
	}

	entries, err := svc.ListByThread(context.Background(), "t1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry")
	}
	e := entries[0]
	if e.CallID != "c1" || e.Status != string(call.StatusCompleted) || e.DurationSeconds != 205 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestService_ThreadSummary(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	seed := []struct {
		id       string
		status   call.Status
		duration int
	}{
		{"c1", call.StatusCompleted, 100},
		{"c2", call.StatusCompleted, 200},
		{"c3", call.StatusMissed, 0},
		{"c4", call.StatusDeclined, 0},
		{"c5", call.StatusError, 0},
	}
	for _, s := range seed {
		if err := svc.Archive(context.Background(), archivedRecord(s.id, s.status, s.duration)); err != nil {
			t.Fatalf("archive %s: %v", s.id, err)
		}
	}

	sum, err := svc.ThreadSummary(context.Background(), "t1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalCalls != 5 || sum.CompletedCalls != 2 || sum.MissedCalls != 1 || sum.DeclinedCalls != 1 || sum.FailedCalls != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.TotalDurationSeconds != 300 || sum.AverageDurationSeconds != 60 {
		t.Fatalf("durations: %+v", sum)
	}
}

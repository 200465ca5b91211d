package signaling

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-platform/internal/call"
)

func testRecord(callID string) *call.Record {
	return &call.Record{
		CallID:       callID,
		ChatThreadID: "thread-1",
		CallerID:     "alice",
		RecipientID:  "bob",
		IsVideo:      true,
		Status:       call.StatusRinging,
		Offer:        &call.Description{Type: call.DescriptionTypeOffer, SDP: "v=0 offer"},
		StartTime:    time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	}
}

func recv(t *testing.T, ch <-chan *call.Record) *call.Record {
	t.Helper()
	select {
	case rec, ok := <-ch:
		if !ok {
			t.Fatalf("snapshot channel closed")
		}
		return rec
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
		return nil
	}
}

func TestMemoryCreateOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Create(ctx, testRecord("c1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := m.Create(ctx, testRecord("c1")); !errors.Is(err, call.ErrRecordExists) {
		t.Fatalf("second create: got %v, want ErrRecordExists", err)
	}
}

func TestMemoryUpdateLastWriteWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Create(ctx, testRecord("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := m.UpdateFields(ctx, "c1", call.Fields{call.FieldStatus: call.StatusAnswered}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := m.UpdateFields(ctx, "c1", call.Fields{call.FieldStatus: call.StatusInProgress}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	rec, err := m.Fetch(ctx, "c1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.Status != call.StatusInProgress {
		t.Fatalf("status = %q, want %q", rec.Status, call.StatusInProgress)
	}
}

func TestMemoryUpdateUnknownCall(t *testing.T) {
	m := NewMemory()
	err := m.UpdateFields(context.Background(), "ghost", call.Fields{call.FieldStatus: call.StatusCompleted})
	if !errors.Is(err, call.ErrCallNotFound) {
		t.Fatalf("got %v, want ErrCallNotFound", err)
	}
	if _, err := m.Fetch(context.Background(), "ghost"); !errors.Is(err, call.ErrCallNotFound) {
		t.Fatalf("fetch: got %v, want ErrCallNotFound", err)
	}
}

func TestMemoryCandidateOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Create(ctx, testRecord("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	want := []string{"cand-a", "cand-b", "cand-c"}
	for i, sdp := range want {
		c := call.Candidate{SDPMid: "0", SDPMLineIndex: uint16(i), SDP: sdp}
		if err := m.AppendCandidate(ctx, "c1", call.RoleCaller, c); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	rec, err := m.Fetch(ctx, "c1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rec.CallerCandidates) != len(want) {
		t.Fatalf("got %d caller candidates, want %d", len(rec.CallerCandidates), len(want))
	}
	for i, c := range rec.CallerCandidates {
		if c.SDP != want[i] {
			t.Fatalf("candidate %d = %q, want %q", i, c.SDP, want[i])
		}
	}
	if len(rec.RecipientCandidates) != 0 {
		t.Fatalf("recipient candidates leaked: %v", rec.RecipientCandidates)
	}
}

func TestMemorySubscribeDeliversCurrentThenUpdates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Create(ctx, testRecord("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel, err := m.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	first := recv(t, ch)
	if first.Status != call.StatusRinging {
		t.Fatalf("initial snapshot status = %q, want %q", first.Status, call.StatusRinging)
	}

	if err := m.UpdateFields(ctx, "c1", call.Fields{call.FieldStatus: call.StatusAnswered}); err != nil {
		t.Fatalf("update: %v", err)
	}
	second := recv(t, ch)
	if second.Status != call.StatusAnswered {
		t.Fatalf("updated snapshot status = %q, want %q", second.Status, call.StatusAnswered)
	}

	// Snapshots are copies; mutating one must not alter the stored record.
	second.Status = call.StatusError
	rec, _ := m.Fetch(ctx, "c1")
	if rec.Status != call.StatusAnswered {
		t.Fatalf("stored record mutated through snapshot")
	}
}

func TestMemoryRedeliverRepeatsUnchangedSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Create(ctx, testRecord("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel, err := m.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	first := recv(t, ch)
	m.Redeliver("c1")
	dup := recv(t, ch)
	if dup.Status != first.Status || dup.CallID != first.CallID {
		t.Fatalf("redelivered snapshot differs: %+v vs %+v", dup, first)
	}
}

func TestMemoryCancelStopsDelivery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Create(ctx, testRecord("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel, err := m.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	recv(t, ch)
	cancel()
	cancel() // second cancel is a no-op

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("received snapshot after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

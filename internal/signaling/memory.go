package signaling

import (
	"context"
	"sync"

	"call-platform/internal/call"
)

// Memory is an in-process call.Channel used by tests and the local env.
// It reproduces the production delivery model: every write publishes the
// full current record to all subscribers, last write wins per field.
type Memory struct {
	mu      sync.Mutex
	records map[string]*call.Record
	subs    map[string][]*memSub
}

type memSub struct {
	ch     chan *call.Record
	closed bool
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*call.Record),
		subs:    make(map[string][]*memSub),
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Create(ctx context.Context, rec *call.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.CallID]; ok {
		return call.ErrRecordExists
	}
	m.records[rec.CallID] = rec.Clone()
	m.publishLocked(rec.CallID)
	return nil
}

func (m *Memory) UpdateFields(ctx context.Context, callID string, fields call.Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return call.ErrCallNotFound
	}
	if err := applyFields(rec, fields); err != nil {
		return err
	}
	m.publishLocked(callID)
	return nil
}

func (m *Memory) AppendCandidate(ctx context.Context, callID string, role call.Role, c call.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return call.ErrCallNotFound
	}
	if role == call.RoleCaller {
		rec.CallerCandidates = append(rec.CallerCandidates, c)
	} else {
		rec.RecipientCandidates = append(rec.RecipientCandidates, c)
	}
	m.publishLocked(callID)
	return nil
}

func (m *Memory) Fetch(ctx context.Context, callID string) (*call.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	if !ok {
		return nil, call.ErrCallNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Subscribe(ctx context.Context, callID string) (<-chan *call.Record, func(), error) {
	sub := &memSub{ch: make(chan *call.Record, 16)}

	m.mu.Lock()
	m.subs[callID] = append(m.subs[callID], sub)
	if rec, ok := m.records[callID]; ok {
		sub.deliver(rec.Clone())
	}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		list := m.subs[callID]
		for i, s := range list {
			if s == sub {
				m.subs[callID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(sub.ch)
	}
	return sub.ch, cancel, nil
}

// Redeliver re-publishes the current snapshot unchanged, simulating the
// duplicate full-record deliveries the production channel can produce.
func (m *Memory) Redeliver(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishLocked(callID)
}

func (m *Memory) publishLocked(callID string) {
	rec, ok := m.records[callID]
	if !ok {
		return
	}
	for _, sub := range m.subs[callID] {
		if !sub.closed {
			sub.deliver(rec.Clone())
		}
	}
}

// deliver never blocks; when the buffer is full the oldest snapshot is
// dropped, since only the newest full record matters.
func (s *memSub) deliver(rec *call.Record) {
	for {
		select {
		case s.ch <- rec:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// In-memory doubles for the injected collaborators. The channel double keeps
// full-record push semantics, including duplicate redelivery, so the
// negotiation paths are exercised the way the production transport drives
// them.

type fakeSub struct {
	ch     chan *Record
	closed bool
}

type fakeChannel struct {
	mu      sync.Mutex
	records map[string]*Record
	subs    map[string][]*fakeSub

	pingErr   error
	createErr error
	updateErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		records: make(map[string]*Record),
		subs:    make(map[string][]*fakeSub),
	}
}

func (f *fakeChannel) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeChannel) Create(ctx context.Context, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.records[rec.CallID]; ok {
		return ErrRecordExists
	}
	f.records[rec.CallID] = rec.Clone()
	f.publishLocked(rec.CallID)
	return nil
}

func (f *fakeChannel) UpdateFields(ctx context.Context, callID string, fields Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	rec, ok := f.records[callID]
	if !ok {
		return ErrCallNotFound
	}
	for k, v := range fields {
		if err := applyTestField(rec, k, v); err != nil {
			return err
		}
	}
	f.publishLocked(callID)
	return nil
}

func applyTestField(rec *Record, key string, v any) error {
	switch key {
	case FieldStatus:
		rec.Status = v.(Status)
	case FieldAnswer:
		switch d := v.(type) {
		case Description:
			rec.Answer = &d
		case *Description:
			rec.Answer = d
		default:
			return fmt.Errorf("bad answer value %T", v)
		}
	case FieldAnswerTime:
		rec.AnswerTime = v.(time.Time)
	case FieldEndTime:
		rec.EndTime = v.(time.Time)
	case FieldDuration:
		rec.DurationSeconds = v.(int)
	default:
		return fmt.Errorf("unknown field %q", key)
	}
	return nil
}

func (f *fakeChannel) AppendCandidate(ctx context.Context, callID string, role Role, c Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[callID]
	if !ok {
		return ErrCallNotFound
	}
	if role == RoleCaller {
		rec.CallerCandidates = append(rec.CallerCandidates, c)
	} else {
		rec.RecipientCandidates = append(rec.RecipientCandidates, c)
	}
	f.publishLocked(callID)
	return nil
}

func (f *fakeChannel) Fetch(ctx context.Context, callID string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[callID]
	if !ok {
		return nil, ErrCallNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeChannel) Subscribe(ctx context.Context, callID string) (<-chan *Record, func(), error) {
	sub := &fakeSub{ch: make(chan *Record, 32)}
	f.mu.Lock()
	f.subs[callID] = append(f.subs[callID], sub)
	if rec, ok := f.records[callID]; ok {
		sub.ch <- rec.Clone()
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		list := f.subs[callID]
		for i, s := range list {
			if s == sub {
				f.subs[callID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(sub.ch)
	}
	return sub.ch, cancel, nil
}

// Redeliver re-publishes the unchanged current snapshot to all subscribers.
func (f *fakeChannel) Redeliver(callID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishLocked(callID)
}

func (f *fakeChannel) publishLocked(callID string) {
	rec, ok := f.records[callID]
	if !ok {
		return
	}
	for _, sub := range f.subs[callID] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- rec.Clone():
		default:
		}
	}
}

func (f *fakeChannel) record(callID string) *Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[callID].Clone()
}

type trackCall struct {
	kind    TrackKind
	enabled bool
}

type fakeMedia struct {
	mu sync.Mutex

	offerErr  error
	answerErr error
	remoteErr error

	localSet  []Description
	remoteSet []Description
	remote    []Candidate
	tracks    []trackCall
	closed    int
}

func (m *fakeMedia) CreateOffer(ctx context.Context) (Description, error) {
	if m.offerErr != nil {
		return Description{}, m.offerErr
	}
	return Description{Type: DescriptionTypeOffer, SDP: "v=0 offer"}, nil
}

func (m *fakeMedia) CreateAnswer(ctx context.Context) (Description, error) {
	if m.answerErr != nil {
		return Description{}, m.answerErr
	}
	return Description{Type: DescriptionTypeAnswer, SDP: "v=0 answer"}, nil
}

func (m *fakeMedia) SetLocalDescription(d Description) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localSet = append(m.localSet, d)
	return nil
}

func (m *fakeMedia) SetRemoteDescription(d Description) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remoteErr != nil {
		return m.remoteErr
	}
	m.remoteSet = append(m.remoteSet, d)
	return nil
}

func (m *fakeMedia) AddRemoteCandidate(c Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Same contract as the production transport: candidates are rejected
	// until a remote description has been applied.
	if len(m.remoteSet) == 0 {
		return errors.New("remote description is not set")
	}
	m.remote = append(m.remote, c)
	return nil
}

func (m *fakeMedia) SetTrackEnabled(kind TrackKind, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append(m.tracks, trackCall{kind, enabled})
	return nil
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *fakeMedia) remoteDescriptions() []Description {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Description(nil), m.remoteSet...)
}

func (m *fakeMedia) remoteCandidates() []Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Candidate(nil), m.remote...)
}

func (m *fakeMedia) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMedia) trackCalls() []trackCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]trackCall(nil), m.tracks...)
}

type fakeEngine struct {
	mu        sync.Mutex
	initErr   error
	sessions  []*fakeMedia
	observers []SessionObserver
}

func (e *fakeEngine) NewSession(cfg SessionConfig, obs SessionObserver) (MediaSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initErr != nil {
		return nil, e.initErr
	}
	m := &fakeMedia{}
	e.sessions = append(e.sessions, m)
	e.observers = append(e.observers, obs)
	return m, nil
}

func (e *fakeEngine) session(i int) *fakeMedia {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[i]
}

func (e *fakeEngine) observer(i int) SessionObserver {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observers[i]
}

type summaryCall struct {
	status       Status
	durationText string
	isVideo      bool
}

type fakeNotifier struct {
	mu        sync.Mutex
	requests  []string
	summaries []summaryCall
}

func (n *fakeNotifier) AppendCallRequest(ctx context.Context, threadID, senderID, callID string, isVideo bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, callID)
	return nil
}

func (n *fakeNotifier) AppendCallSummary(ctx context.Context, threadID, senderID string, isVideo bool, status Status, durationText string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summaryCall{status, durationText, isVideo})
	return nil
}

func (n *fakeNotifier) summaryList() []summaryCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]summaryCall(nil), n.summaries...)
}

func (n *fakeNotifier) requestList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.requests...)
}

type fakeArchiver struct {
	mu   sync.Mutex
	recs []*Record
}

func (a *fakeArchiver) Archive(ctx context.Context, rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec.Clone())
	return nil
}

func (a *fakeArchiver) archived() []*Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Record(nil), a.recs...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

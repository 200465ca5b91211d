package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"call-platform/internal/auth"

	"github.com/google/uuid"
)

// Manager exposes the call API to the rest of the application: place, answer,
// decline and end, plus the state-machine event stream. It enforces the
// single-active-call-per-device rule and owns the active session's lifecycle.
//
// Collaborators are injected; there is no ambient/global state. Close hangs
// up any active call.
type Manager struct {
	channel  Channel
	engine   Engine
	notifier Notifier
	archiver Archiver
	log      *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time

	mu     sync.Mutex
	active *session
	closed bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewManager wires a call manager. notifier and archiver may be nil; the
// corresponding teardown steps are then skipped.
func NewManager(channel Channel, engine Engine, notifier Notifier, archiver Archiver, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		channel:  channel,
		engine:   engine,
		notifier: notifier,
		archiver: archiver,
		log:      log,
		clock:    time.Now,
		subs:     make(map[int]chan Event),
	}
}

// SubscribeEvents registers a consumer of state-machine events. Slow
// consumers drop events rather than stalling call progress.
func (m *Manager) SubscribeEvents() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) emit(ev Event) {
	m.subMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	m.subMu.Unlock()
}

// State returns the active call's state, or StateIdle when none is active.
func (m *Manager) State() State {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s == nil {
		return StateIdle
	}
	return s.machine.Current()
}

// ActiveCallID returns the active call id, if any.
func (m *Manager) ActiveCallID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.callID, true
}

// Lookup fetches the current record for a call.
func (m *Manager) Lookup(ctx context.Context, callID string) (*Record, error) {
	return m.channel.Fetch(ctx, callID)
}

// PlaceCall runs the caller role: construct the transport session, produce
// and apply the offer, persist the full record in one write, then subscribe
// for the answer and status transitions. It fails fast with a typed error
// and no remote side effects when validation or offer production fails.
func (m *Manager) PlaceCall(ctx context.Context, chatThreadID, recipientID string, isVideo bool) (*Record, error) {
	callerID, err := auth.UserID(ctx)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	if chatThreadID == "" || recipientID == "" {
		return nil, fmt.Errorf("%w: chat thread and recipient required", ErrNegotiation)
	}
	if err := m.channel.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConnectivity, err)
	}

	callID := uuid.NewString()
	s, err := m.claimSlot(callID, chatThreadID, callerID, recipientID, RoleCaller, isVideo)
	if err != nil {
		return nil, err
	}

	media, err := m.engine.NewSession(SessionConfig{Video: isVideo}, s.observer())
	if err != nil {
		m.releaseSlot(s)
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}
	s.media = media

	// Linear offer sequence with one error funnel: any failure closes the
	// partially constructed session and leaves no record behind.
	offer, err := media.CreateOffer(ctx)
	if err != nil {
		m.abortBeforeCreate(s)
		return nil, fmt.Errorf("%w: create offer: %v", ErrNegotiation, err)
	}
	if err := media.SetLocalDescription(offer); err != nil {
		m.abortBeforeCreate(s)
		return nil, fmt.Errorf("%w: apply offer: %v", ErrNegotiation, err)
	}

	now := m.clock().UTC()
	s.startTime = now
	rec := &Record{
		CallID:       callID,
		ChatThreadID: chatThreadID,
		CallerID:     callerID,
		RecipientID:  recipientID,
		IsVideo:      isVideo,
		Status:       StatusRinging,
		Offer:        &offer,
		StartTime:    now,
	}
	if err := m.channel.Create(ctx, rec); err != nil {
		m.abortBeforeCreate(s)
		if errors.Is(err, ErrRecordExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNoConnectivity, err)
	}

	sub, cancel, err := m.channel.Subscribe(ctx, callID)
	if err != nil {
		// The record exists; fail it rather than leaving it ringing.
		s.teardown(StatusError, fmt.Errorf("%w: subscribe: %v", ErrNegotiation, err), true)
		m.releaseSlot(s)
		return nil, fmt.Errorf("%w: subscribe: %v", ErrNegotiation, err)
	}
	s.unsubscribe = cancel

	if m.notifier != nil {
		if nerr := m.notifier.AppendCallRequest(ctx, chatThreadID, callerID, callID, isVideo); nerr != nil {
			m.log.Warn("call request message failed", "call_id", callID, "err", nerr)
		}
	}

	s.machine.Transition(StateCalling, nil, "")
	go s.run()
	go s.pump(sub)

	m.log.Info("call placed", "call_id", callID, "recipient", recipientID, "video", isVideo)
	return rec.Clone(), nil
}

// AnswerCall runs the callee role: fetch the record once for the offer,
// mirror its constraints, apply offer then answer in strict order, and
// persist the answer together with the answered status in one write.
func (m *Manager) AnswerCall(ctx context.Context, callID string) (*Record, error) {
	selfID, err := auth.UserID(ctx)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	if err := m.channel.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConnectivity, err)
	}

	rec, err := m.channel.Fetch(ctx, callID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("%w: call already ended", ErrCallNotFound)
	}
	if rec.Offer == nil {
		return nil, fmt.Errorf("%w: offer not present", ErrNegotiation)
	}

	s, err := m.claimSlot(callID, rec.ChatThreadID, selfID, rec.CallerID, RoleRecipient, rec.IsVideo)
	if err != nil {
		return nil, err
	}
	s.startTime = rec.StartTime
	s.lastRec = rec

	media, err := m.engine.NewSession(SessionConfig{Video: rec.IsVideo}, s.observer())
	if err != nil {
		m.releaseSlot(s)
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}
	s.media = media
	s.machine.Transition(StateConnecting, nil, "")

	// Strict order: the received offer is applied as remote before the
	// answer exists; the answer is applied as local before it is persisted.
	if err := media.SetRemoteDescription(*rec.Offer); err != nil {
		return nil, m.failAnswer(ctx, s, fmt.Errorf("%w: apply offer: %v", ErrNegotiation, err))
	}
	s.remoteApplied = true

	answer, err := media.CreateAnswer(ctx)
	if err != nil {
		return nil, m.failAnswer(ctx, s, fmt.Errorf("%w: create answer: %v", ErrNegotiation, err))
	}
	if err := media.SetLocalDescription(answer); err != nil {
		return nil, m.failAnswer(ctx, s, fmt.Errorf("%w: apply answer: %v", ErrNegotiation, err))
	}

	now := m.clock().UTC()
	s.answerTime = now
	if err := m.channel.UpdateFields(ctx, callID, Fields{
		FieldStatus:     StatusAnswered,
		FieldAnswer:     answer,
		FieldAnswerTime: now,
	}); err != nil {
		return nil, m.failAnswer(ctx, s, fmt.Errorf("%w: persist answer: %v", ErrNegotiation, err))
	}

	sub, cancel, err := m.channel.Subscribe(ctx, callID)
	if err != nil {
		return nil, m.failAnswer(ctx, s, fmt.Errorf("%w: subscribe: %v", ErrNegotiation, err))
	}
	s.unsubscribe = cancel

	s.machine.Transition(StateConnected, nil, "")
	go s.run()
	go s.pump(sub)

	out := rec.Clone()
	out.Status = StatusAnswered
	out.Answer = &answer
	out.AnswerTime = now

	m.log.Info("call answered", "call_id", callID, "video", rec.IsVideo)
	return out, nil
}

// DeclineCall marks a ringing call declined without constructing any local
// session. The caller's device observes the status and tears down.
func (m *Manager) DeclineCall(ctx context.Context, callID string) error {
	if _, err := auth.UserID(ctx); err != nil {
		return ErrNotAuthenticated
	}
	if err := m.channel.UpdateFields(ctx, callID, Fields{FieldStatus: StatusDeclined}); err != nil {
		return err
	}
	m.log.Info("call declined", "call_id", callID)
	return nil
}

// EndCall tears down the active call with the given terminal status. It is
// idempotent: with no active call, or when racing another teardown trigger,
// it is a no-op. It returns once teardown has completed.
func (m *Manager) EndCall(ctx context.Context, status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("call: %q is not a terminal status", status)
	}
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s == nil {
		return nil
	}

	s.do(func() { s.teardown(status, nil, true) })

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToggleAudio flips the local audio track and reports the new enabled state.
func (m *Manager) ToggleAudio(ctx context.Context) (bool, error) {
	return m.toggleTrack(ctx, TrackAudio)
}

// ToggleVideo flips the local video track and reports the new enabled state.
func (m *Manager) ToggleVideo(ctx context.Context) (bool, error) {
	return m.toggleTrack(ctx, TrackVideo)
}

func (m *Manager) toggleTrack(ctx context.Context, kind TrackKind) (bool, error) {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s == nil {
		return false, ErrCallNotFound
	}

	type result struct {
		enabled bool
		err     error
	}
	res := make(chan result, 1)
	s.do(func() {
		enabled, err := s.setTrackEnabled(kind)
		res <- result{enabled, err}
	})

	select {
	case r := <-res:
		return r.enabled, r.err
	case <-s.done:
		return false, ErrCallNotFound
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close hangs up any active call and stops event delivery.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	_ = m.EndCall(ctx, StatusCompleted)

	m.subMu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.subMu.Unlock()
}

// claimSlot reserves the device's single active-call slot and builds the
// session bound to it. Placing or answering while another call is active is
// a usage error, not a protocol state.
func (m *Manager) claimSlot(callID, threadID, selfID, remoteID string, role Role, isVideo bool) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("call: manager closed")
	}
	if m.active != nil {
		return nil, ErrAlreadyInCall
	}

	machine := NewMachine(callID, m.emit)
	s := newSession(callID, threadID, selfID, remoteID, role, isVideo,
		m.channel, m.notifier, m.archiver, machine, m.clock, m.log)
	s.onEnded = m.releaseSlot
	m.active = s
	return s, nil
}

func (m *Manager) releaseSlot(s *session) {
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
}

// abortBeforeCreate unwinds a caller session whose record was never
// persisted: close the partial transport, free the slot, no remote writes.
func (m *Manager) abortBeforeCreate(s *session) {
	s.tornDown = true
	if s.media != nil {
		_ = s.media.Close()
	}
	close(s.done)
	m.releaseSlot(s)
}

// failAnswer converts a failed callee negotiation step into a persisted
// terminal error and local teardown, returning the step error.
func (m *Manager) failAnswer(ctx context.Context, s *session, err error) error {
	s.teardown(StatusError, err, true)
	m.releaseSlot(s)
	return err
}

package call

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ioTimeout bounds best-effort signaling writes performed from the session
// loop (candidate appends, status finalization).
const ioTimeout = 5 * time.Second

// session owns one call end to end on this device: the negotiation steps for
// its role, consumption of channel snapshots, and the teardown path.
//
// All mutable session state is owned by a single writer: every mutation runs
// as an op on the ops queue, so apply-remote-description and teardown can
// never interleave. Engine callbacks and subscription deliveries arrive on
// arbitrary goroutines and only ever enqueue ops.
type session struct {
	callID   string
	threadID string
	selfID   string
	remoteID string
	role     Role
	isVideo  bool

	channel  Channel
	notifier Notifier
	archiver Archiver
	machine  *Machine
	clock    func() time.Time
	log      *slog.Logger

	media MediaSession

	ops  chan func()
	done chan struct{}

	startTime  time.Time
	answerTime time.Time

	// remoteApplied guards against re-applying a description delivered
	// more than once by the channel.
	remoteApplied bool
	// tornDown makes teardown idempotent across concurrent triggers.
	tornDown bool

	audioOn bool
	videoOn bool

	// seen de-duplicates remote candidates across repeated full-record
	// deliveries; order of first observation is preserved.
	seen map[string]struct{}
	// pending holds remote candidates observed before the remote description
	// is applied; the engine rejects candidates until then.
	pending []Candidate

	lastRec     *Record
	unsubscribe func()

	// onEnded releases the manager's single-active-call slot.
	onEnded func(*session)
}

func newSession(callID, threadID, selfID, remoteID string, role Role, isVideo bool,
	channel Channel, notifier Notifier, archiver Archiver, machine *Machine,
	clock func() time.Time, log *slog.Logger) *session {
	return &session{
		callID:   callID,
		threadID: threadID,
		selfID:   selfID,
		remoteID: remoteID,
		role:     role,
		isVideo:  isVideo,
		channel:  channel,
		notifier: notifier,
		archiver: archiver,
		machine:  machine,
		clock:    clock,
		log:      log.With("call_id", callID, "role", string(role)),
		ops:      make(chan func(), 128),
		done:     make(chan struct{}),
		audioOn:  true,
		videoOn:  isVideo,
		seen:     make(map[string]struct{}),
	}
}

// observer bridges engine callbacks onto the ops queue.
func (s *session) observer() SessionObserver {
	return SessionObserver{
		OnCandidate: func(c Candidate) {
			s.do(func() { s.publishLocalCandidate(c) })
		},
		OnConnState: func(st ConnState) {
			if !st.Terminal() {
				return
			}
			s.do(func() {
				if s.tornDown {
					return
				}
				s.teardown(StatusError, fmt.Errorf("%w: connectivity %s", ErrNegotiation, st), true)
			})
		},
	}
}

// do enqueues an op for the single-writer loop. Ops enqueued before the loop
// starts are buffered and run in order once it does; ops enqueued after
// teardown are dropped.
func (s *session) do(op func()) {
	select {
	case s.ops <- op:
	case <-s.done:
	}
}

func (s *session) run() {
	for {
		select {
		case <-s.done:
			return
		case op := <-s.ops:
			op()
		}
	}
}

// pump forwards channel snapshots onto the ops queue.
func (s *session) pump(sub <-chan *Record) {
	for {
		select {
		case <-s.done:
			return
		case rec, ok := <-sub:
			if !ok {
				return
			}
			s.do(func() { s.handleSnapshot(rec) })
		}
	}
}

// publishLocalCandidate appends a locally discovered candidate to this role's
// list, independent of the negotiation phase.
func (s *session) publishLocalCandidate(c Candidate) {
	if s.tornDown {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.channel.AppendCandidate(ctx, s.callID, s.role, c); err != nil {
		s.log.Warn("candidate append failed", "err", err)
	}
}

// handleSnapshot processes one full-record delivery. Deliveries may repeat
// and may arrive in any relative order; every branch tolerates duplicates.
func (s *session) handleSnapshot(rec *Record) {
	if s.tornDown || rec == nil {
		return
	}
	s.lastRec = rec

	switch rec.Status {
	case StatusRinging:
		if s.role == RoleCaller {
			// The record is visible remotely: the call is now ringing.
			s.machine.Transition(StateRinging, nil, "")
		}

	case StatusAnswered:
		s.machine.Transition(StateConnecting, nil, "")
		s.maybeApplyAnswer(rec)

	case StatusInProgress:
		// The answer may arrive folded into an in_progress snapshot when
		// field writes race; apply it before reporting connected.
		s.maybeApplyAnswer(rec)
		s.machine.Transition(StateConnecting, nil, "")
		s.machine.Transition(StateConnected, nil, "")

	case StatusCompleted, StatusMissed, StatusDeclined, StatusError:
		// Remote side terminated; observed status is authoritative.
		s.teardown(rec.Status, nil, false)
	}

	// Candidates are consumed after the answer so a candidate folded into
	// the same snapshot as the answer lands on a primed transport.
	if !s.tornDown {
		s.consumeRemoteCandidates(rec)
	}
}

// maybeApplyAnswer applies the remote answer exactly once, caller role only.
// A duplicate delivery of an already-applied description is a no-op.
func (s *session) maybeApplyAnswer(rec *Record) {
	if s.role != RoleCaller || s.remoteApplied || rec.Answer == nil {
		return
	}
	if err := s.media.SetRemoteDescription(*rec.Answer); err != nil {
		s.teardown(StatusError, fmt.Errorf("%w: apply answer: %v", ErrNegotiation, err), true)
		return
	}
	s.remoteApplied = true
	s.flushPendingCandidates()
	if !rec.AnswerTime.IsZero() {
		s.answerTime = rec.AnswerTime
	} else {
		s.answerTime = s.clock().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.channel.UpdateFields(ctx, s.callID, Fields{FieldStatus: StatusInProgress}); err != nil {
		s.log.Warn("in_progress update failed", "err", err)
	}
	s.machine.Transition(StateConnecting, nil, "")
	s.machine.Transition(StateConnected, nil, "")
}

// consumeRemoteCandidates feeds unseen candidates from the remote role's list
// to the engine, in the order first observed. Candidates arriving before the
// remote description are held and flushed once it is applied; the relative
// order of answer and candidates on the wire is therefore irrelevant.
func (s *session) consumeRemoteCandidates(rec *Record) {
	remote := rec.RecipientCandidates
	if s.role == RoleRecipient {
		remote = rec.CallerCandidates
	}
	for _, c := range remote {
		key := c.Fingerprint()
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		if !s.remoteApplied {
			s.pending = append(s.pending, c)
			continue
		}
		s.feedCandidate(c)
	}
}

func (s *session) flushPendingCandidates() {
	for _, c := range s.pending {
		s.feedCandidate(c)
	}
	s.pending = nil
}

func (s *session) feedCandidate(c Candidate) {
	if err := s.media.AddRemoteCandidate(c); err != nil {
		s.log.Warn("remote candidate rejected", "err", err)
	}
}

// teardown is the single teardown entry point. It is idempotent; every step
// is best-effort and a failure in one never blocks the rest. Safe to run
// while negotiation is in flight or the transport session is only partially
// constructed.
func (s *session) teardown(status Status, cause error, local bool) {
	if s.tornDown {
		return
	}
	s.tornDown = true

	if s.media != nil {
		_ = s.media.SetTrackEnabled(TrackAudio, false)
		_ = s.media.SetTrackEnabled(TrackVideo, false)
		if err := s.media.Close(); err != nil {
			s.log.Warn("media close failed", "err", err)
		}
	}

	end := s.clock().UTC()
	duration := 0
	if !s.answerTime.IsZero() && end.After(s.answerTime) {
		duration = int(end.Sub(s.answerTime) / time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.channel.UpdateFields(ctx, s.callID, Fields{
		FieldStatus:   status,
		FieldEndTime:  end,
		FieldDuration: duration,
	}); err != nil {
		s.log.Warn("final status update failed", "status", string(status), "err", err)
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	// Only the side that ended the call locally appends the summary, so a
	// completed call produces one summary line, not two. Decline is the
	// exception: the declining device never holds a session, so the caller
	// appends the declined summary on observing the status.
	if s.notifier != nil && (local || status == StatusDeclined) {
		s.appendSummary(ctx, status, duration)
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, s.finalRecord(status, end, duration)); err != nil {
			s.log.Warn("history archive failed", "err", err)
		}
	}

	s.log.Info("call ended", "status", string(status), "duration_s", duration)
	s.machine.Transition(StateEnded, cause, status)
	if s.onEnded != nil {
		s.onEnded(s)
	}
	close(s.done)
}

func (s *session) appendSummary(ctx context.Context, status Status, durationSeconds int) {
	switch status {
	case StatusCompleted, StatusMissed, StatusDeclined:
	default:
		return
	}
	text := ""
	if status == StatusCompleted {
		text = FormatDuration(time.Duration(durationSeconds) * time.Second)
	}
	if err := s.notifier.AppendCallSummary(ctx, s.threadID, s.selfID, s.isVideo, status, text); err != nil {
		s.log.Warn("call summary append failed", "err", err)
	}
}

// finalRecord builds the terminal record for archiving, preferring the last
// observed snapshot over locally held fields.
func (s *session) finalRecord(status Status, end time.Time, duration int) *Record {
	rec := s.lastRec.Clone()
	if rec == nil {
		rec = &Record{
			CallID:       s.callID,
			ChatThreadID: s.threadID,
			IsVideo:      s.isVideo,
			StartTime:    s.startTime,
		}
		if s.role == RoleCaller {
			rec.CallerID, rec.RecipientID = s.selfID, s.remoteID
		} else {
			rec.CallerID, rec.RecipientID = s.remoteID, s.selfID
		}
	}
	rec.Status = status
	rec.AnswerTime = s.answerTime
	rec.EndTime = end
	rec.DurationSeconds = duration
	return rec
}

// setTrackEnabled flips a local track and reports the new enabled state.
func (s *session) setTrackEnabled(kind TrackKind) (bool, error) {
	var enabled bool
	switch kind {
	case TrackAudio:
		s.audioOn = !s.audioOn
		enabled = s.audioOn
	case TrackVideo:
		s.videoOn = !s.videoOn
		enabled = s.videoOn
	default:
		return false, fmt.Errorf("call: unknown track kind %q", kind)
	}
	if s.media == nil {
		return enabled, nil
	}
	return enabled, s.media.SetTrackEnabled(kind, enabled)
}

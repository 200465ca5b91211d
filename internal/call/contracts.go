package call

import "context"

// Channel is the signaling transport: a shared, remotely-observable mutable
// record keyed by call id.
//
// Delivery model: Subscribe pushes the full current record whenever any field
// changes, with last-write-wins semantics per field. There is no guaranteed
// in-order delivery of every intermediate write, and the same snapshot may be
// delivered more than once. Consumers must de-duplicate.
type Channel interface {
	// Ping verifies the transport is reachable. Used for the fail-fast
	// connectivity check before placing or answering a call.
	Ping(ctx context.Context) error

	// Create persists a full record in one write. Returns ErrRecordExists
	// if a record for rec.CallID is already present.
	Create(ctx context.Context, rec *Record) error

	// UpdateFields applies a partial last-write-wins field update.
	UpdateFields(ctx context.Context, callID string, fields Fields) error

	// AppendCandidate appends to the role's candidate list. Lists are
	// append-only; entries are never overwritten or removed.
	AppendCandidate(ctx context.Context, callID string, role Role, c Candidate) error

	// Fetch reads the current record once. Returns ErrCallNotFound if absent.
	Fetch(ctx context.Context, callID string) (*Record, error)

	// Subscribe delivers the current record immediately and again on every
	// change, until cancel is called. Snapshots are deep copies.
	Subscribe(ctx context.Context, callID string) (<-chan *Record, func(), error)
}

// ConnState is the coarse connectivity state reported by the media engine.
type ConnState int

const (
	ConnStateNew ConnState = iota
	ConnStateChecking
	ConnStateConnected
	ConnStateDisconnected
	ConnStateFailed
	ConnStateClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnStateNew:
		return "new"
	case ConnStateChecking:
		return "checking"
	case ConnStateConnected:
		return "connected"
	case ConnStateDisconnected:
		return "disconnected"
	case ConnStateFailed:
		return "failed"
	case ConnStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the transport cannot recover from s.
func (s ConnState) Terminal() bool {
	switch s {
	case ConnStateDisconnected, ConnStateFailed, ConnStateClosed:
		return true
	default:
		return false
	}
}

// TrackKind selects a local media track for mute toggling.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// SessionConfig carries the local constraints for one transport session.
type SessionConfig struct {
	// Video controls whether a local video track is attached.
	Video bool
}

// SessionObserver receives engine callbacks. Callbacks may fire on arbitrary
// goroutines at any time after NewSession, including while the offer or
// answer is still being produced.
type SessionObserver struct {
	// OnCandidate fires for each locally discovered connectivity candidate.
	OnCandidate func(Candidate)
	// OnConnState fires on connectivity-state transitions.
	OnConnState func(ConnState)
}

// Engine produces media transport sessions. The core drives it through this
// narrow contract and treats the implementation as a black box.
type Engine interface {
	NewSession(cfg SessionConfig, obs SessionObserver) (MediaSession, error)
}

// MediaSession is one negotiated bidirectional transport session.
type MediaSession interface {
	CreateOffer(ctx context.Context) (Description, error)
	CreateAnswer(ctx context.Context) (Description, error)
	SetLocalDescription(d Description) error
	SetRemoteDescription(d Description) error
	AddRemoteCandidate(c Candidate) error

	// SetTrackEnabled mutes or unmutes a local track. A session without the
	// given track kind returns nil.
	SetTrackEnabled(kind TrackKind, enabled bool) error

	// Close releases local tracks, stops capture and tears the transport
	// down. Safe to call on a partially constructed session.
	Close() error
}

// Notifier appends human-readable call-event summaries to the conversation
// the call is attached to. All calls are best-effort from the core's view.
type Notifier interface {
	AppendCallRequest(ctx context.Context, threadID, senderID, callID string, isVideo bool) error
	AppendCallSummary(ctx context.Context, threadID, senderID string, isVideo bool, status Status, durationText string) error
}

// Archiver persists terminal call records for history display.
type Archiver interface {
	Archive(ctx context.Context, rec *Record) error
}

package call

import "errors"

// Error taxonomy surfaced to callers of PlaceCall/AnswerCall.
//
// Failures during an already-active negotiation are not returned through
// these; they are converted into a terminal StatusError and observed as an
// ENDED state event with the error attached.
var (
	ErrNotAuthenticated = errors.New("call: not authenticated")
	ErrNoConnectivity   = errors.New("call: signaling transport unreachable")
	ErrEngineInit       = errors.New("call: transport session construction failed")
	ErrNegotiation      = errors.New("call: negotiation failed")
	ErrCallNotFound     = errors.New("call: record not found")
	ErrAlreadyInCall    = errors.New("call: another call is active")

	// ErrRecordExists is returned by Channel.Create when a record for the
	// callId already exists. Records are never re-created.
	ErrRecordExists = errors.New("call: record already exists")
)

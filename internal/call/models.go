package call

import (
	"fmt"
	"time"
)

// Record is the single shared state for one call, mirrored through the
// signaling channel between the two participants' devices.
//
// Invariants:
// - Exactly one Record exists per CallID; the caller creates it once.
// - Offer is written at most once, by the caller, before any candidate.
// - Answer is written at most once, by the recipient, only after Offer exists.
// - Candidate lists are append-only per role.
// - Status reaches exactly one terminal value; after that only the
//   EndTime/DurationSeconds finalization may still be written.

type Record struct {
	CallID       string `json:"call_id"`
	ChatThreadID string `json:"chat_thread_id"`

	CallerID    string `json:"caller_id"`
	RecipientID string `json:"recipient_id"`

	IsVideo bool `json:"is_video"`

	Status Status `json:"status"`

	// Offer and Answer are opaque session-description blobs, write-once each.
	Offer  *Description `json:"offer,omitempty"`
	Answer *Description `json:"answer,omitempty"`

	CallerCandidates    []Candidate `json:"caller_candidates,omitempty"`
	RecipientCandidates []Candidate `json:"recipient_candidates,omitempty"`

	StartTime  time.Time `json:"start_time"`
	AnswerTime time.Time `json:"answer_time,omitempty"`
	EndTime    time.Time `json:"end_time,omitempty"`

	// DurationSeconds is derived on finalization: connected time
	// (EndTime - AnswerTime), never negative, zero if never connected.
	DurationSeconds int `json:"duration"`
}

// Clone returns a deep copy so snapshots can cross goroutines safely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Offer != nil {
		d := *r.Offer
		out.Offer = &d
	}
	if r.Answer != nil {
		d := *r.Answer
		out.Answer = &d
	}
	out.CallerCandidates = append([]Candidate(nil), r.CallerCandidates...)
	out.RecipientCandidates = append([]Candidate(nil), r.RecipientCandidates...)
	return &out
}

type Status string

const (
	StatusRinging    Status = "ringing"
	StatusAnswered   Status = "answered"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusMissed     Status = "missed"
	StatusDeclined   Status = "declined"
	StatusError      Status = "error"
)

// Terminal reports whether no further negotiation proceeds from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusMissed, StatusDeclined, StatusError:
		return true
	default:
		return false
	}
}

// Role identifies which side of the call a device plays.
type Role string

const (
	RoleCaller    Role = "caller"
	RoleRecipient Role = "recipient"
)

// Description is an opaque session-description blob (offer or answer).
type Description struct {
	Type string `json:"type"` // "offer" or "answer"
	SDP  string `json:"sdp"`
}

const (
	DescriptionTypeOffer  = "offer"
	DescriptionTypeAnswer = "answer"
)

// Candidate is one opaque connectivity-candidate blob.
type Candidate struct {
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex uint16 `json:"sdp_mline_index"`
	SDP           string `json:"sdp"`
}

// Fingerprint keys a candidate for duplicate-delivery suppression.
func (c Candidate) Fingerprint() string {
	return fmt.Sprintf("%s/%d/%s", c.SDPMid, c.SDPMLineIndex, c.SDP)
}

// Field names used for partial updates through the signaling channel.
const (
	FieldStatus     = "status"
	FieldAnswer     = "answer"
	FieldAnswerTime = "answer_time"
	FieldEndTime    = "end_time"
	FieldDuration   = "duration"
)

// Fields is a partial field update for a call record.
type Fields map[string]any

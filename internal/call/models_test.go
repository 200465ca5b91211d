package call

import (
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusMissed, StatusDeclined, StatusError}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%q should be terminal", s)
		}
	}
	live := []Status{StatusRinging, StatusAnswered, StatusInProgress}
	for _, s := range live {
		if s.Terminal() {
			t.Fatalf("%q should not be terminal", s)
		}
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec := &Record{
		CallID:           "c1",
		Status:           StatusRinging,
		Offer:            &Description{Type: DescriptionTypeOffer, SDP: "v=0"},
		CallerCandidates: []Candidate{{SDPMid: "0", SDP: "cand"}},
		StartTime:        time.Now(),
	}

	clone := rec.Clone()
	clone.Offer.SDP = "mutated"
	clone.CallerCandidates[0].SDP = "mutated"
	clone.Status = StatusError

	if rec.Offer.SDP != "v=0" || rec.CallerCandidates[0].SDP != "cand" || rec.Status != StatusRinging {
		t.Fatalf("original mutated through clone: %+v", rec)
	}

	var nilRec *Record
	if nilRec.Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestCandidateFingerprint(t *testing.T) {
	a := Candidate{SDPMid: "0", SDPMLineIndex: 0, SDP: "x"}
	b := Candidate{SDPMid: "0", SDPMLineIndex: 0, SDP: "x"}
	c := Candidate{SDPMid: "0", SDPMLineIndex: 1, SDP: "x"}

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("equal candidates differ")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("distinct candidates collide")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{5 * time.Second, "0:05"},
		{65 * time.Second, "1:05"},
		{185 * time.Second, "3:05"},
		{3723 * time.Second, "1:02:03"},
		{-3 * time.Second, "0:00"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.d); got != c.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

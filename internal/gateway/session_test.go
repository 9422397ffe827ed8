package gateway

import "testing"

func TestSessionResumePrecondition(t *testing.T) {
	s := NewSession(AuthModeBot)
	if s.CanResume() {
		t.Fatalf("fresh session must not be resumable")
	}

	s.SetIdentity("sess-1", "wss://resume.example")
	if s.CanResume() {
		t.Fatalf("session without a sequence must not be resumable")
	}

	s.ObserveSeq(5)
	if !s.CanResume() {
		t.Fatalf("session with id and sequence must be resumable")
	}

	s.Reset()
	if s.CanResume() {
		t.Fatalf("reset session must not be resumable")
	}
	if s.SessionID() != "" || s.ResumeURL() != "" {
		t.Fatalf("reset must clear identity")
	}
}

func TestSessionSeqKeepsMaximum(t *testing.T) {
	s := NewSession(AuthModeBot)
	s.ObserveSeq(10)
	s.ObserveSeq(7)
	if seq := s.LastSeq(); seq == nil || *seq != 10 {
		t.Fatalf("expected seq 10 after out-of-order delivery, got %v", seq)
	}
	s.ObserveSeq(11)
	if seq := s.LastSeq(); seq == nil || *seq != 11 {
		t.Fatalf("expected seq 11, got %v", seq)
	}
}

func TestSessionLastSeqIsCopy(t *testing.T) {
	s := NewSession(AuthModeBot)
	s.ObserveSeq(3)
	seq := s.LastSeq()
	*seq = 99
	if got := s.LastSeq(); *got != 3 {
		t.Fatalf("LastSeq must return a copy, internal state became %d", *got)
	}
}

func TestSessionIdentityKeepsResumeURLWhenEmpty(t *testing.T) {
	s := NewSession(AuthModeUser)
	s.SetIdentity("sess-1", "wss://resume.example")
	s.SetIdentity("sess-1", "")
	if s.ResumeURL() != "wss://resume.example" {
		t.Fatalf("empty resume url must not overwrite the stored one")
	}
}

package session

import "testing"

func TestSessionAuthenticateTransitionsState(t *testing.T) {
	s := New()
	if s.State != StateUnauth {
		t.Error("new session should start Unauth")
	}

	if err := s.Authenticate("alice", []string{"+@all"}, "data"); err != nil {
		t.Fatal(err)
	}
	if s.State != StateAuth {
		t.Error("expected Auth after Authenticate")
	}

	if err := s.Authenticate("alice", []string{"+@all"}, "data"); err == nil {
		t.Error("expected error re-authenticating an already-authenticated session")
	}
}

func TestSessionBeginRequiresAuth(t *testing.T) {
	s := New()
	if err := s.Begin(); err == nil {
		t.Error("expected BEGIN to fail before authentication")
	}

	s.Authenticate("alice", []string{"+@all"}, "data")
	if err := s.Begin(); err != nil {
		t.Fatal(err)
	}
	if s.State != StateAuthTx {
		t.Error("expected Auth+Tx after BEGIN")
	}
	if !s.InTx() {
		t.Error("InTx should report true inside a transaction")
	}
}

func TestStageRequiresOpenTransaction(t *testing.T) {
	s := New()
	s.Authenticate("alice", []string{"+@all"}, "data")

	if err := s.Stage([]string{"SET", "k", "v"}); err == nil {
		t.Error("expected Stage to fail outside a transaction")
	}

	s.Begin()
	if err := s.Stage([]string{"SET", "k", "v"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Stage([]string{"SET", "k2", "v2 with spaces"}); err != nil {
		t.Fatal(err)
	}

	buf := s.Buffered()
	if len(buf) != 2 {
		t.Fatalf("expected 2 staged tuples, got %d", len(buf))
	}
	if buf[1][2] != "v2 with spaces" {
		t.Error("staged tuple value was not preserved verbatim:", buf[1][2])
	}
}

func TestStageCopiesTuple(t *testing.T) {
	s := New()
	s.Authenticate("alice", []string{"+@all"}, "data")
	s.Begin()

	tuple := []string{"SET", "k", "v"}
	s.Stage(tuple)
	tuple[2] = "mutated"

	buf := s.Buffered()
	if buf[0][2] != "v" {
		t.Error("Stage should copy its input tuple, got mutated value:", buf[0][2])
	}
}

func TestEndTxClearsBufferAndReturnsToAuth(t *testing.T) {
	s := New()
	s.Authenticate("alice", []string{"+@all"}, "data")
	s.Begin()
	s.Stage([]string{"SET", "k", "v"})

	buf, err := s.EndTx()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 1 {
		t.Fatalf("expected 1 returned tuple, got %d", len(buf))
	}
	if s.State != StateAuth {
		t.Error("expected Auth after EndTx")
	}
	if len(s.Buffered()) != 0 {
		t.Error("expected buffer cleared after EndTx")
	}

	if _, err := s.EndTx(); err == nil {
		t.Error("expected EndTx to fail with no open transaction")
	}
}

func TestMarkKilled(t *testing.T) {
	s := New()
	if s.IsKilled() {
		t.Error("new session should not be killed")
	}
	s.MarkKilled()
	if !s.IsKilled() {
		t.Error("expected IsKilled true after MarkKilled")
	}
}

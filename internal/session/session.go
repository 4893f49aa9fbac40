// Package session implements the per-connection session state machine
// (Unauth -> Auth -> Auth+Tx), transaction staging, and ACL rule
// evaluation.
package session

import (
	"github.com/google/uuid"

	"github.com/kaelbridge/tridb/internal/corerr"
)

// State is a session's position in the Unauth -> Auth -> Auth+Tx machine.
type State int

const (
	StateUnauth State = iota
	StateAuth
	StateAuthTx
)

func (s State) String() string {
	switch s {
	case StateUnauth:
		return "unauth"
	case StateAuth:
		return "auth"
	case StateAuthTx:
		return "auth+tx"
	default:
		return "unknown"
	}
}

// Session is one client connection's authentication and transaction state.
// It carries no network I/O itself; the dispatcher drives it from parsed
// commands.
type Session struct {
	ID       string
	State    State
	Username string
	ACL      []string
	DBName   string

	txBuffer [][]string
	killed   bool
}

// MarkKilled flags the session for termination after its current command
// finishes, per CLIENT KILL. The network layer is responsible for
// checking IsKilled and closing the connection; no in-flight work is
// interrupted.
func (s *Session) MarkKilled() { s.killed = true }

// IsKilled reports whether CLIENT KILL has been requested for this session.
func (s *Session) IsKilled() bool { return s.killed }

// New returns a fresh, unauthenticated session with a random ID.
func New() *Session {
	return &Session{ID: uuid.NewString(), State: StateUnauth}
}

// Authenticate transitions Unauth -> Auth, recording the username's ACL
// rules and default database.
func (s *Session) Authenticate(username string, acl []string, defaultDB string) error {
	if s.State != StateUnauth {
		return corerr.Wrap(corerr.ErrTxState, "session is already authenticated")
	}
	s.Username = username
	s.ACL = acl
	s.DBName = defaultDB
	s.State = StateAuth
	return nil
}

// Begin transitions Auth -> Auth+Tx and clears any stale staged buffer.
func (s *Session) Begin() error {
	if s.State != StateAuth {
		return corerr.Wrap(corerr.ErrTxState, "BEGIN requires an authenticated session outside a transaction")
	}
	s.State = StateAuthTx
	s.txBuffer = nil
	return nil
}

// Stage appends a request tuple (verb plus arguments, exactly as received
// from the wire) to the transaction buffer.
func (s *Session) Stage(tuple []string) error {
	if s.State != StateAuthTx {
		return corerr.Wrap(corerr.ErrTxState, "no transaction is open")
	}
	s.txBuffer = append(s.txBuffer, append([]string{}, tuple...))
	return nil
}

// Buffered returns the currently staged request tuples.
func (s *Session) Buffered() [][]string {
	return append([][]string{}, s.txBuffer...)
}

// EndTx returns and clears the staged buffer, transitioning Auth+Tx -> Auth.
// Used by both COMMIT (buffer is then executed) and ROLLBACK (buffer is
// simply discarded).
func (s *Session) EndTx() ([][]string, error) {
	if s.State != StateAuthTx {
		return nil, corerr.Wrap(corerr.ErrTxState, "no transaction is open")
	}
	buf := s.txBuffer
	s.txBuffer = nil
	s.State = StateAuth
	return buf, nil
}

// InTx reports whether the session currently has an open transaction.
func (s *Session) InTx() bool { return s.State == StateAuthTx }

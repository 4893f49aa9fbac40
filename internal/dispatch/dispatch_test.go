package dispatch

import (
	"os"
	"testing"

	"github.com/kaelbridge/tridb/internal/registry"
	"github.com/kaelbridge/tridb/internal/session"
	"github.com/kaelbridge/tridb/internal/wire"
)

// newTestDispatcher returns a Dispatcher wired to a fresh registry/user
// store and an already-authenticated session with full @all privileges,
// writing AOF files under a temporary directory.
func newTestDispatcher(t *testing.T) (*Dispatcher, *session.Session) {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New("data")
	users := session.NewUserStore()
	users.SetUser(session.UserRecord{
		Username:     "default",
		PasswordHash: session.HashPassword("pw"),
		ACL:          []string{"+@all"},
		DefaultDB:    "data",
	})
	d := New(reg, users, dir, 1)

	sess := session.New()
	if err := session.Authenticate(users, sess, "default", "pw"); err != nil {
		t.Fatal(err)
	}
	return d, sess
}

func mustSimple(t *testing.T, r wire.Reply, want string) {
	t.Helper()
	if r.Kind != wire.KindSimple || r.Simple != want {
		t.Fatalf("expected simple %q, got %+v", want, r)
	}
}

func mustError(t *testing.T, r wire.Reply) {
	t.Helper()
	if r.Kind != wire.KindError {
		t.Fatalf("expected an error reply, got %+v", r)
	}
}

func TestAuthRequiredBeforeOtherCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := session.New()
	r := d.Dispatch(sess, []string{"GET", "k"})
	mustError(t, r)
}

func TestAuthFailureDoesNotDistinguishReason(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := session.New()
	r := d.Dispatch(sess, []string{"AUTH", "nobody", "wrong"})
	mustError(t, r)
	if r.ErrKind != "auth" {
		t.Errorf("expected an auth error kind, got %q", r.ErrKind)
	}
}

func TestSetGetDelRoundTrip(t *testing.T) {
	d, sess := newTestDispatcher(t)

	mustSimple(t, d.Dispatch(sess, []string{"SET", "k", "hi"}), "OK")

	r := d.Dispatch(sess, []string{"GET", "k"})
	if r.Kind != wire.KindBulk || string(r.Bulk) != "hi" {
		t.Fatalf("GET k = %+v, want bulk \"hi\"", r)
	}

	del := d.Dispatch(sess, []string{"DEL", "k"})
	if del.Kind != wire.KindInteger || del.Integer != 1 {
		t.Fatalf("DEL k = %+v, want Integer(1)", del)
	}

	after := d.Dispatch(sess, []string{"GET", "k"})
	if after.Kind != wire.KindBulk || !after.BulkNil {
		t.Fatalf("GET k after DEL = %+v, want nil bulk", after)
	}
}

func TestIncrDecrAndWrongType(t *testing.T) {
	d, sess := newTestDispatcher(t)

	mustSimple(t, d.Dispatch(sess, []string{"SET", "n", "10"}), "OK")

	r := d.Dispatch(sess, []string{"INCR", "n"})
	if r.Kind != wire.KindInteger || r.Integer != 11 {
		t.Fatalf("INCR n = %+v, want Integer(11)", r)
	}
	r = d.Dispatch(sess, []string{"DECR", "n"})
	if r.Kind != wire.KindInteger || r.Integer != 10 {
		t.Fatalf("DECR n = %+v, want Integer(10)", r)
	}

	mustSimple(t, d.Dispatch(sess, []string{"SET", "n", "abc"}), "OK")
	r = d.Dispatch(sess, []string{"INCR", "n"})
	mustError(t, r)
	if r.ErrKind != "wrongtype" {
		t.Errorf("expected wrongtype error kind, got %q", r.ErrKind)
	}
}

func TestCreateInsertSelectWithFilter(t *testing.T) {
	d, sess := newTestDispatcher(t)

	mustSimple(t, d.Dispatch(sess, []string{"CREATE", "TABLE", "u", "id:int:pk", "name:string", "age:int"}), "OK")

	ins := d.Dispatch(sess, []string{"INSERT", "u", "1", "Alice", "30"})
	if ins.Kind != wire.KindInteger {
		t.Fatalf("INSERT Alice = %+v", ins)
	}
	d.Dispatch(sess, []string{"INSERT", "u", "2", "Bob", "25"})

	dup := d.Dispatch(sess, []string{"INSERT", "u", "1", "X", "0"})
	mustError(t, dup)
	if dup.ErrKind != "duplicate" {
		t.Errorf("expected duplicate error kind, got %q", dup.ErrKind)
	}

	sel := d.Dispatch(sess, []string{"SELECT", "*", "FROM", "u", "WHERE", "age", ">", "27"})
	if sel.Kind != wire.KindArray || len(sel.Array) != 1 {
		t.Fatalf("SELECT ... WHERE age > 27 = %+v, want one row", sel)
	}
	row := sel.Array[0]
	if row.Kind != wire.KindArray || len(row.Array) != 3 {
		t.Fatalf("row = %+v, want 3 columns", row)
	}
	if string(row.Array[1].Bulk) != "Alice" {
		t.Errorf("row[1] = %q, want Alice", row.Array[1].Bulk)
	}
}

func TestVectorSearchOrdering(t *testing.T) {
	d, sess := newTestDispatcher(t)

	mustSimple(t, d.Dispatch(sess, []string{"CREATE", "TABLE", "p", "id:int:pk", "emb:vector"}), "OK")
	d.Dispatch(sess, []string{"INSERT", "p", "1", "[1,0]"})
	d.Dispatch(sess, []string{"INSERT", "p", "2", "[0.707,0.707]"})
	d.Dispatch(sess, []string{"INSERT", "p", "3", "[0,1]"})

	r := d.Dispatch(sess, []string{"SEARCH", "p", "emb", "[1,0]", "3"})
	if r.Kind != wire.KindArray || len(r.Array) != 3 {
		t.Fatalf("SEARCH p emb [1,0] 3 = %+v, want 3 rows", r)
	}
	firstID := r.Array[0].Array[0]
	if firstID.Integer != 1 {
		t.Errorf("expected row 1 (exact match) to rank first, got %+v", firstID)
	}
	lastID := r.Array[2].Array[0]
	if lastID.Integer != 3 {
		t.Errorf("expected row 3 (orthogonal) to rank last, got %+v", lastID)
	}
}

func TestTransactionCommitAppliesStagedWrites(t *testing.T) {
	d, sess := newTestDispatcher(t)
	mustSimple(t, d.Dispatch(sess, []string{"SET", "b", "100"}), "OK")

	mustSimple(t, d.Dispatch(sess, []string{"BEGIN"}), "OK")
	q1 := d.Dispatch(sess, []string{"DECR", "b"})
	if q1.Kind != wire.KindSimple || q1.Simple != "QUEUED" {
		t.Fatalf("staged DECR = %+v, want QUEUED", q1)
	}
	q2 := d.Dispatch(sess, []string{"INCR", "other"})
	if q2.Kind != wire.KindSimple || q2.Simple != "QUEUED" {
		t.Fatalf("staged INCR = %+v, want QUEUED", q2)
	}

	mustSimple(t, d.Dispatch(sess, []string{"COMMIT"}), "OK")

	r := d.Dispatch(sess, []string{"GET", "b"})
	if r.Kind != wire.KindBulk || string(r.Bulk) != "99" {
		t.Fatalf("GET b after COMMIT = %+v, want \"99\"", r)
	}
}

func TestTransactionRollbackDiscardsStagedWrites(t *testing.T) {
	d, sess := newTestDispatcher(t)
	mustSimple(t, d.Dispatch(sess, []string{"SET", "b", "100"}), "OK")

	mustSimple(t, d.Dispatch(sess, []string{"BEGIN"}), "OK")
	d.Dispatch(sess, []string{"SET", "b", "0"})
	mustSimple(t, d.Dispatch(sess, []string{"ROLLBACK"}), "OK")

	r := d.Dispatch(sess, []string{"GET", "b"})
	if r.Kind != wire.KindBulk || string(r.Bulk) != "100" {
		t.Fatalf("GET b after ROLLBACK = %+v, want \"100\"", r)
	}
}

func TestTransactionCommitAbortsWhollyOnValidationFailure(t *testing.T) {
	d, sess := newTestDispatcher(t)
	mustSimple(t, d.Dispatch(sess, []string{"CREATE", "TABLE", "u", "id:int:pk", "name:string"}), "OK")
	d.Dispatch(sess, []string{"INSERT", "u", "1", "Alice"})

	mustSimple(t, d.Dispatch(sess, []string{"BEGIN"}), "OK")
	d.Dispatch(sess, []string{"INSERT", "u", "2", "Bob"})
	d.Dispatch(sess, []string{"INSERT", "u", "1", "Dup"}) // will fail: duplicate PK

	commit := d.Dispatch(sess, []string{"COMMIT"})
	mustError(t, commit)

	sel := d.Dispatch(sess, []string{"SELECT", "*", "FROM", "u"})
	if sel.Kind != wire.KindArray || len(sel.Array) != 1 {
		t.Fatalf("post-abort state = %+v, want only the pre-transaction row", sel)
	}
}

func TestDatabaseScopedACLDeniesOtherDatabase(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New("data")
	users := session.NewUserStore()
	users.SetUser(session.UserRecord{
		Username:     "scoped",
		PasswordHash: session.HashPassword("pw"),
		ACL:          []string{"+GET", "+SET", "+data"},
		DefaultDB:    "data",
	})
	d := New(reg, users, dir, 1)

	sess := session.New()
	if err := session.Authenticate(users, sess, "scoped", "pw"); err != nil {
		t.Fatal(err)
	}

	mustSimple(t, d.Dispatch(sess, []string{"SET", "k", "v"}), "OK")

	use := d.Dispatch(sess, []string{"USE", "other"})
	mustError(t, use)
	if use.ErrKind != "permission denied" {
		t.Errorf("expected permission denied switching to an unauthorized database, got %q", use.ErrKind)
	}
}

func TestAofFileCreatedOnWrite(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New("data")
	users := session.NewUserStore()
	users.SetUser(session.UserRecord{
		Username:     "default",
		PasswordHash: session.HashPassword("pw"),
		ACL:          []string{"+@all"},
		DefaultDB:    "data",
	})
	d := New(reg, users, dir, 1)
	sess := session.New()
	session.Authenticate(users, sess, "default", "pw")

	mustSimple(t, d.Dispatch(sess, []string{"SET", "aof_check", "persist"}), "OK")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range entries {
		if e.Name() == "data.db" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a data.db AOF file to exist after a write")
	}
}

func TestPingDoesNotRequireTransactionStaging(t *testing.T) {
	d, sess := newTestDispatcher(t)
	d.Dispatch(sess, []string{"BEGIN"})
	r := d.Dispatch(sess, []string{"PING"})
	if r.Kind != wire.KindSimple || r.Simple != "PONG" {
		t.Fatalf("PING inside a transaction = %+v, want PONG", r)
	}
	d.Dispatch(sess, []string{"ROLLBACK"})
}

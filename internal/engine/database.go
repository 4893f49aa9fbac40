// Package engine ties the flexible and structured stores together into one
// named database, guarded by the reader/writer lock discipline: a write
// holds the lock for the whole duration of a transaction's COMMIT (or a
// single non-transactional write), while the flexible store's own shard
// locks give it independent fine-grained concurrency underneath.
package engine

import (
	"sync"

	"github.com/kaelbridge/tridb/internal/keyspace"
	"github.com/kaelbridge/tridb/internal/relational"
)

// Database is one named database's full state: its flexible keyspace and
// its structured tables. Table/CreateTable/DropTable/TableNames assume the
// caller already holds Lock or RLock -- the dispatcher acquires it once for
// the whole span of a command or a transaction's COMMIT, rather than this
// type re-entering its own mutex per call.
type Database struct {
	Name string

	Flexible *keyspace.Store

	mu     sync.RWMutex
	tables map[string]*relational.Table
}

// New returns an empty Database.
func New(name string) *Database {
	return &Database{
		Name:     name,
		Flexible: keyspace.New(),
		tables:   map[string]*relational.Table{},
	}
}

// Table looks up a table by name. Implements queryexec.Tables. Caller must
// hold Lock or RLock.
func (d *Database) Table(name string) (*relational.Table, bool) {
	t, ok := d.tables[name]
	return t, ok
}

// CreateTable registers a new table, failing if one already exists by that
// name. Caller must hold Lock.
func (d *Database) CreateTable(t *relational.Table) error {
	if _, exists := d.tables[t.Name]; exists {
		return errTableExists(t.Name)
	}
	d.tables[t.Name] = t
	return nil
}

// DropTable removes a table, reporting whether it existed. Caller must hold
// Lock.
func (d *Database) DropTable(name string) bool {
	if _, ok := d.tables[name]; !ok {
		return false
	}
	delete(d.tables, name)
	return true
}

// TableNames lists every table in the database. Caller must hold Lock or
// RLock.
func (d *Database) TableNames() []string {
	names := make([]string, 0, len(d.tables))
	for n := range d.tables {
		names = append(names, n)
	}
	return names
}

// Lock/Unlock/RLock/RUnlock expose the database's single write lock
// directly to the dispatcher, which holds it for a whole non-transactional
// table write or while a COMMIT applies a transaction's staged commands.
func (d *Database) Lock()    { d.mu.Lock() }
func (d *Database) Unlock()  { d.mu.Unlock() }
func (d *Database) RLock()   { d.mu.RLock() }
func (d *Database) RUnlock() { d.mu.RUnlock() }

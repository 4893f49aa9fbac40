// Package registry is the multi-database directory: named databases
// created on demand, guarded by one lock covering the name->Database map
// itself (each Database then guards its own contents).
package registry

import (
	"sort"
	"sync"

	"github.com/kaelbridge/tridb/internal/engine"
)

// Registry maps database names to their engine.Database.
type Registry struct {
	mu          sync.RWMutex
	dbs         map[string]*engine.Database
	defaultName string
}

// New returns a Registry with one database already created: defaultName.
func New(defaultName string) *Registry {
	r := &Registry{dbs: map[string]*engine.Database{}, defaultName: defaultName}
	r.dbs[defaultName] = engine.New(defaultName)
	return r
}

// Get returns the named database, creating it if it doesn't exist yet (a
// session's USE switches to a database this way).
func (r *Registry) Get(name string) *engine.Database {
	r.mu.RLock()
	db, ok := r.dbs[name]
	r.mu.RUnlock()
	if ok {
		return db
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[name]; ok {
		return db
	}
	db = engine.New(name)
	r.dbs[name] = db
	return db
}

// Default returns the registry's default database.
func (r *Registry) Default() *engine.Database { return r.Get(r.defaultName) }

// Names lists every database currently registered, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.dbs))
	for n := range r.dbs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Put registers a database directly, used by snapshot/AOF restore on
// startup.
func (r *Registry) Put(db *engine.Database) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dbs[db.Name] = db
}

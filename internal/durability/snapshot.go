package durability

import (
	"encoding/json"
	"os"

	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/keyspace"
	"github.com/kaelbridge/tridb/internal/registry"
	"github.com/kaelbridge/tridb/internal/relational"
	"github.com/kaelbridge/tridb/internal/session"
)

// snapshotVersion is bumped whenever the on-disk shape below changes
// incompatibly.
const snapshotVersion = 1

type indexDef struct {
	Name   string               `json:"name"`
	Column string               `json:"column"`
	Kind   relational.IndexKind `json:"kind"`
	Path   string               `json:"path,omitempty"`
}

type tableSnapshot struct {
	Name     string              `json:"name"`
	Columns  []relational.Column `json:"columns"`
	PKColumn string              `json:"pk_column,omitempty"`
	Rows     []*relational.Row   `json:"rows"`
	Indexes  []indexDef          `json:"indexes,omitempty"`
}

type databaseSnapshot struct {
	Name     string                    `json:"name"`
	Flexible map[string]keyspace.Entry `json:"flexible_data"`
	Tables   []tableSnapshot           `json:"structured_data"`
}

// Snapshot is the full on-disk shape saved by SAVE and loaded on startup:
// every database's flexible and structured data plus the configured users.
type Snapshot struct {
	Version   int                           `json:"version"`
	Databases []databaseSnapshot            `json:"databases"`
	Users     map[string]session.UserRecord `json:"acl"`
}

// BuildSnapshot captures the full in-memory state of reg and users.
func BuildSnapshot(reg *registry.Registry, users *session.UserStore) Snapshot {
	snap := Snapshot{Version: snapshotVersion, Users: users.Snapshot()}
	for _, name := range reg.Names() {
		db := reg.Get(name)
		db.RLock()
		dbSnap := databaseSnapshot{Name: name, Flexible: db.Flexible.Dump()}
		for _, tn := range db.TableNames() {
			t, _ := db.Table(tn)
			ts := tableSnapshot{Name: t.Name, Columns: t.Columns, PKColumn: t.PKColumn, Rows: t.Rows}
			for _, idx := range t.Indexes {
				ts.Indexes = append(ts.Indexes, indexDef{Name: idx.Name, Column: idx.Column, Kind: idx.Kind, Path: idx.Path})
			}
			dbSnap.Tables = append(dbSnap.Tables, ts)
		}
		db.RUnlock()
		snap.Databases = append(snap.Databases, dbSnap)
	}
	return snap
}

// Save writes snap to path as JSON.
func Save(path string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return corerr.Wrap(corerr.ErrIO, "marshaling snapshot: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return corerr.Wrap(corerr.ErrIO, "writing snapshot %q: %v", path, err)
	}
	return nil
}

// Load reads a snapshot from path. A missing file is not an error; it
// returns the zero Snapshot so startup proceeds with an empty database.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, corerr.Wrap(corerr.ErrIO, "reading snapshot %q: %v", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, corerr.Wrap(corerr.ErrCorruption, "parsing snapshot %q: %v", path, err)
	}
	return snap, nil
}

// Apply restores a loaded Snapshot into reg and users, rebuilding each
// table's secondary indexes from its rows.
func Apply(snap Snapshot, reg *registry.Registry, users *session.UserStore) error {
	users.Restore(snap.Users)
	for _, dbSnap := range snap.Databases {
		db := reg.Get(dbSnap.Name)
		db.Flexible.Restore(dbSnap.Flexible)
		for _, ts := range dbSnap.Tables {
			t, err := relational.NewTable(ts.Name, ts.Columns)
			if err != nil {
				return err
			}
			t.PKColumn = ts.PKColumn
			t.Rows = ts.Rows
			if t.PKColumn != "" {
				pkIdx := t.ColumnIndex(t.PKColumn)
				for i, r := range t.Rows {
					if r.Deleted {
						continue
					}
					t.PKIndex[relational.HashKey(r.Values[pkIdx])] = i
				}
			}
			for _, idxDef := range ts.Indexes {
				if err := t.CreateIndex(idxDef.Name, idxDef.Column, idxDef.Kind, idxDef.Path); err != nil {
					return err
				}
			}
			if err := db.CreateTable(t); err != nil {
				return err
			}
		}
	}
	return nil
}

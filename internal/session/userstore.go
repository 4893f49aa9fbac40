package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/kaelbridge/tridb/internal/corerr"
)

// UserRecord is one configured user's credentials and ACL rules.
type UserRecord struct {
	Username     string
	PasswordHash string
	ACL          []string
	DefaultDB    string
}

// UserStore is the directory of configured users backing AUTH and the
// ACL GETUSER/LIST/SETUSER/DELUSER administrative commands.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]UserRecord
}

// NewUserStore returns an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: map[string]UserRecord{}}
}

// HashPassword renders pw to its stored form.
func HashPassword(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword reports whether pw hashes to hash, in constant time.
func VerifyPassword(pw, hash string) bool {
	got := HashPassword(pw)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}

// SetUser creates or replaces a user record.
func (u *UserStore) SetUser(rec UserRecord) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[rec.Username] = rec
}

// GetUser looks up a user's record.
func (u *UserStore) GetUser(username string) (UserRecord, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	rec, ok := u.users[username]
	return rec, ok
}

// DeleteUser removes a user, reporting whether it existed.
func (u *UserStore) DeleteUser(username string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[username]; !ok {
		return false
	}
	delete(u.users, username)
	return true
}

// ListUsers returns every configured username, sorted.
func (u *UserStore) ListUsers() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	names := make([]string, 0, len(u.users))
	for n := range u.users {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Authenticate checks username/password and, on success, authenticates the
// given session against that user's ACL and default database.
func Authenticate(store *UserStore, s *Session, username, password string) error {
	rec, ok := store.GetUser(username)
	if !ok || !VerifyPassword(password, rec.PasswordHash) {
		return corerr.Wrap(corerr.ErrAuth, "invalid username or password")
	}
	return s.Authenticate(rec.Username, rec.ACL, rec.DefaultDB)
}

// Snapshot returns every user record, for snapshot save.
func (u *UserStore) Snapshot() map[string]UserRecord {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]UserRecord, len(u.users))
	for k, v := range u.users {
		out[k] = v
	}
	return out
}

// Restore replaces the store's contents wholesale, used by snapshot load.
func (u *UserStore) Restore(users map[string]UserRecord) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users = map[string]UserRecord{}
	for k, v := range users {
		u.users[k] = v
	}
}

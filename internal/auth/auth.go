// Package auth implements the auth store collaborator (spec C2): a user
// table and session-token cache that the HTTP transaction engine consults
// on every request, and that the worker broker can reload in place.
package auth

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/codemicro/sharesrv/internal/vfs"
)

// sessionTTL bounds how long a cppwd cookie stays valid after login. The
// distilled spec and original_source both treat sessions as immortal;
// copyparty-cppwd never expires in the source this was distilled from.
// Expiring them is a deliberate hardening choice, recorded in DESIGN.md.
const sessionTTL = 12 * time.Hour

// User is one entry in the auth table.
type User struct {
	Name       string
	BcryptHash []byte
}

// Store is the reloadable auth collaborator: user table, VFS resolver, and
// session cache, all behind one mutex so a reload can't race an in-flight
// lookup (spec §5: "AuthSrv.reload and AuthSrv.load_sessions acquire the
// auth-store mutex and must block readers").
type Store struct {
	mu       sync.RWMutex
	users    map[string]*User
	vfs      *vfs.Resolver
	sessions *cache.Cache

	log *logrus.Entry
}

// Snapshot is the read side of a user table + VFS used to construct or
// reload a Store; it stands in for the on-disk config collaborator that
// spec.md keeps explicitly out of scope.
type Snapshot struct {
	Users []*User
	Mount []*vfs.Node
}

// New builds a Store from a Snapshot.
func New(snap Snapshot, log *logrus.Entry) *Store {
	s := &Store{
		users:    make(map[string]*User, len(snap.Users)),
		vfs:      vfs.New(snap.Mount),
		sessions: cache.New(sessionTTL, sessionTTL/2),
		log:      log,
	}
	for _, u := range snap.Users {
		s.users[u.Name] = u
	}
	return s
}

// HashPassword bcrypt-hashes a plaintext password for inclusion in a
// Snapshot's user table.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// VFS returns the resolver backing this store. Safe to call concurrently
// with Reload: callers get a point-in-time resolver reference and must not
// cache it across a reload boundary.
func (s *Store) VFS() *vfs.Resolver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vfs
}

// Login checks a plaintext password against the user table and, on
// success, records the caller-supplied token as a session good for
// sessionTTL. It returns ok=true when a user matched, or ok=false if none
// did (caller must then set the cookie to the literal "x", per spec
// §4.5.5).
func (s *Store) Login(token, plain string) (ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, u := range s.users {
		if bcrypt.CompareHashAndPassword(u.BcryptHash, []byte(plain)) == nil {
			s.sessions.Set(token, name, cache.DefaultExpiration)
			return true
		}
	}
	return false
}

// Resolve maps a cppwd cookie value to a username, defaulting to "*"
// (anonymous) when the token is absent or unknown (spec §4.5.1).
func (s *Store) Resolve(token string) string {
	if token == "" {
		return "*"
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.sessions.Get(token); ok {
		return v.(string)
	}
	return "*"
}

// Reload rebuilds the user+VFS table in place under the store mutex,
// logging before/after exactly as `broker_mpw.py`'s "mpw.asrv reloading" /
// "mpw.asrv reloaded" pair does.
func (s *Store) Reload(snap Snapshot) {
	s.log.Info("asrv reloading")
	users := make(map[string]*User, len(snap.Users))
	for _, u := range snap.Users {
		users[u.Name] = u
	}
	resolver := vfs.New(snap.Mount)

	s.mu.Lock()
	s.users = users
	s.vfs = resolver
	s.mu.Unlock()
	s.log.Info("asrv reloaded")
}

// ReloadSessions flushes the session cache only, leaving the user table
// and VFS untouched — the `reload_sessions` IPC verb (spec §4.6).
func (s *Store) ReloadSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Flush()
}

package auth

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/codemicro/sharesrv/internal/vfs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	return New(Snapshot{
		Users: []*User{{Name: "alice", BcryptHash: hash}},
		Mount: []*vfs.Node{{Name: "pub", RealPath: t.TempDir(), ReadACL: map[string]bool{"*": true}}},
	}, logrus.NewEntry(logrus.New()))
}

func TestLoginAndResolve(t *testing.T) {
	s := newTestStore(t)

	ok := s.Login("tok-1", "wrong")
	require.False(t, ok)
	require.Equal(t, "*", s.Resolve("tok-1"))

	ok = s.Login("tok-2", "secret")
	require.True(t, ok)
	require.Equal(t, "alice", s.Resolve("tok-2"))
}

func TestResolveUnknownTokenIsAnonymous(t *testing.T) {
	s := newTestStore(t)
	require.Equal(t, "*", s.Resolve("never-issued"))
	require.Equal(t, "*", s.Resolve(""))
}

func TestReloadSessionsFlushesOnly(t *testing.T) {
	s := newTestStore(t)
	require.True(t, s.Login("tok", "secret"))
	require.Equal(t, "alice", s.Resolve("tok"))

	s.ReloadSessions()
	require.Equal(t, "*", s.Resolve("tok"))

	// user table survives a session-only reload
	require.True(t, s.Login("tok2", "secret"))
}

func TestReloadReplacesUsersAndVFS(t *testing.T) {
	s := newTestStore(t)
	newHash, err := HashPassword("newpw")
	require.NoError(t, err)

	s.Reload(Snapshot{
		Users: []*User{{Name: "bob", BcryptHash: newHash}},
		Mount: []*vfs.Node{{Name: "priv", RealPath: t.TempDir(), ReadACL: map[string]bool{"bob": true}}},
	})

	require.True(t, s.Login("tok", "newpw"))
	require.Equal(t, "bob", s.Resolve("tok"))

	readable, _ := s.VFS().CanAccess("priv", "bob")
	require.True(t, readable)
	readable, _ = s.VFS().CanAccess("pub", "*")
	require.False(t, readable, "old mount table should be gone after reload")
}

package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustMkfile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("hi"), 0o644))
}

func TestGetAccessControl(t *testing.T) {
	dir := t.TempDir()
	root := New([]*Node{
		{
			Name:     "pub",
			RealPath: dir,
			ReadACL:  map[string]bool{"*": true},
			WriteACL: map[string]bool{"alice": true},
		},
	})

	_, _, err := root.Get("pub", "*", true, false)
	require.NoError(t, err)

	_, _, err = root.Get("pub", "*", false, true)
	require.Error(t, err)

	_, _, err = root.Get("pub", "alice", true, true)
	require.NoError(t, err)
}

func TestGetUnknownMount(t *testing.T) {
	root := New(nil)
	_, _, err := root.Get("nope", "*", true, false)
	require.Error(t, err)
}

func TestLsMergesVirtualChildren(t *testing.T) {
	dir := t.TempDir()
	mustMkfile(t, dir, "real.txt")

	sub := t.TempDir()
	mustMkfile(t, sub, "nested.txt")

	root := New([]*Node{
		{
			Name:     "top",
			RealPath: dir,
			ReadACL:  map[string]bool{"*": true},
			Children: map[string]*Node{
				"virt": {
					Name:     "virt",
					RealPath: sub,
					ReadACL:  map[string]bool{"*": true},
				},
			},
		},
	})

	_, entries, err := root.Ls("top", "*")
	require.NoError(t, err)

	var names []string
	var sawVirtual bool
	for _, e := range entries {
		names = append(names, e.Name)
		if e.Name == "virt" && e.Virtual {
			sawVirtual = true
		}
	}
	require.Contains(t, names, "real.txt")
	require.True(t, sawVirtual)
}

func TestCanAccessConsistentWithUserTree(t *testing.T) {
	dir := t.TempDir()
	root := New([]*Node{
		{Name: "pub", RealPath: dir, ReadACL: map[string]bool{"*": true}},
		{Name: "priv", RealPath: dir, ReadACL: map[string]bool{"alice": true}},
	})

	for _, mount := range root.UserTree("*", true) {
		readable, _ := root.CanAccess(mount, "*")
		require.True(t, readable, "mount %s from user_tree must be readable", mount)
	}

	readable, writable := root.CanAccess("priv", "*")
	require.False(t, readable)
	require.False(t, writable)
}

func TestGetIntoVirtualChildRemainder(t *testing.T) {
	dir := t.TempDir()
	root := New([]*Node{
		{
			Name:     "top",
			RealPath: dir,
			ReadACL:  map[string]bool{"*": true},
			Children: map[string]*Node{
				"virt": {Name: "virt", RealPath: dir, ReadACL: map[string]bool{"*": true}},
			},
		},
	})

	node, rem, err := root.Get("top/virt/a/b", "*", true, false)
	require.NoError(t, err)
	require.Equal(t, "a/b", rem)
	require.Equal(t, dir, node.RealPath)
}

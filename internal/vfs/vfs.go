// Package vfs implements the virtual filesystem resolver (spec C1): a
// mapping from logical paths to real directories with per-user read/write
// access control lists.
package vfs

import (
	"os"
	"path"
	"sort"
	"strings"
)

// Access is the pair of capabilities a user may hold over a Node.
type Access struct {
	Read  bool
	Write bool
}

// Node is one mounted logical directory. A Node's RealPath points at an
// actual directory on disk; Children lets a directory overlay further
// mounts beneath it (spec §3 "VFS node").
type Node struct {
	Name     string
	RealPath string

	// ACLs keyed by username. The sentinel "*" grants the capability to
	// every user, mirroring copyparty's anonymous-user convention.
	ReadACL  map[string]bool
	WriteACL map[string]bool

	Children map[string]*Node
}

func (n *Node) access(user string) Access {
	return Access{
		Read:  n.ReadACL[user] || n.ReadACL["*"],
		Write: n.WriteACL[user] || n.WriteACL["*"],
	}
}

// Canonical joins a VFS-relative remainder onto the node's real path.
func (n *Node) Canonical(rem string) string {
	if rem == "" {
		return n.RealPath
	}
	return path.Join(n.RealPath, rem)
}

// ErrAccessDenied is returned by Get when the caller lacks the requested
// capability over the resolved mount.
type ErrAccessDenied struct {
	VPath string
	User  string
}

func (e *ErrAccessDenied) Error() string {
	return "access denied: " + e.VPath + " for " + e.User
}

// Resolver owns the mount tree and answers (vpath, user) queries. It holds
// no mutex of its own: callers that mutate the tree (a config reload) are
// expected to swap in a new *Resolver behind the auth store's mutex rather
// than mutate one in place, keeping readers lock-free (spec §5).
type Resolver struct {
	roots map[string]*Node
}

// New builds a Resolver from a flat set of top-level mounts.
func New(mounts []*Node) *Resolver {
	r := &Resolver{roots: make(map[string]*Node, len(mounts))}
	for _, m := range mounts {
		r.roots[m.Name] = m
	}
	return r
}

// split breaks a vpath into its path segments, discarding empty ones so
// "a//b/" and "a/b" resolve identically.
func split(vpath string) []string {
	var out []string
	for _, seg := range strings.Split(vpath, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// descend walks from a root node through Children following the given
// segments, stopping at the deepest node it can still traverse. It returns
// the node reached and the remaining, un-descended segments joined as a
// path — this is the "remainder" returned to callers for real-filesystem
// joins.
func descend(node *Node, segs []string) (*Node, string) {
	for i, seg := range segs {
		child, ok := node.Children[seg]
		if !ok {
			return node, strings.Join(segs[i:], "/")
		}
		node = child
	}
	return node, ""
}

// Get resolves vpath for user, checking the requested capabilities against
// the deepest node reached. It does not inspect the remainder: a `..`
// segment in vpath is passed through into it unchanged, so callers must
// defend against `..` segments themselves (spec §4.5.6 documents this as
// a defence-in-depth requirement on top of Get).
func (r *Resolver) Get(vpath, user string, wantRead, wantWrite bool) (*Node, string, error) {
	segs := split(vpath)
	if len(segs) == 0 {
		return nil, "", &ErrAccessDenied{VPath: vpath, User: user}
	}
	root, ok := r.roots[segs[0]]
	if !ok {
		return nil, "", &ErrAccessDenied{VPath: vpath, User: user}
	}
	node, rem := descend(root, segs[1:])
	acc := node.access(user)
	if (wantRead && !acc.Read) || (wantWrite && !acc.Write) {
		return nil, "", &ErrAccessDenied{VPath: vpath, User: user}
	}
	return node, rem, nil
}

// DirEntry is one real or virtual child surfaced by Ls.
type DirEntry struct {
	Name    string
	Virtual bool
}

// Ls lists the real directory at vpath's resolved node plus any virtual
// child mounts layered underneath it, per spec §3 "ls(remainder, user)".
func (r *Resolver) Ls(vpath, user string) (realRoot string, entries []DirEntry, err error) {
	node, rem, err := r.Get(vpath, user, true, false)
	if err != nil {
		return "", nil, err
	}
	realRoot = node.Canonical(rem)

	if rem == "" {
		names := make([]string, 0, len(node.Children))
		for name, child := range node.Children {
			if child.access(user).Read || child.access(user).Write {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			entries = append(entries, DirEntry{Name: name, Virtual: true})
		}
	}

	dirents, err := os.ReadDir(realRoot)
	if err != nil {
		return realRoot, entries, err
	}
	for _, de := range dirents {
		entries = append(entries, DirEntry{Name: de.Name()})
	}
	return realRoot, entries, nil
}

// CanAccess reports (readable, writable) for vpath without raising, per
// spec §3.
func (r *Resolver) CanAccess(vpath, user string) (readable, writable bool) {
	segs := split(vpath)
	if len(segs) == 0 {
		// root itself: readable/writable iff the user has any mount at all
		rv := r.UserTree(user, true)
		wv := r.UserTree(user, false)
		return len(rv) > 0, len(wv) > 0
	}
	root, ok := r.roots[segs[0]]
	if !ok {
		return false, false
	}
	node, _ := descend(root, segs[1:])
	acc := node.access(user)
	return acc.Read, acc.Write
}

// UserTree returns the top-level mount names visible to user for the given
// capability, sorted for deterministic listing output (spec §3
// "user_tree").
func (r *Resolver) UserTree(user string, readable bool) []string {
	var out []string
	for name, node := range r.roots {
		acc := node.access(user)
		if (readable && acc.Read) || (!readable && acc.Write) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Package files implements the filename namespace: the interned table of
// every path dpkgcore has ever placed, diverted, or overridden, shared by
// every package instance that claims it. Ported from the filenamenode
// bookkeeping described in lib/dpkg/dpkg-db.h and exercised by
// src/archives.c.
package files

import "github.com/dpkg-go/dpkgcore/database"

// Flag records transient state about one on-disk path during an unpack
// operation.
type Flag uint32

const (
	// NewInArchive marks a path that the package currently being unpacked
	// contributes.
	NewInArchive Flag = 1 << iota
	// NewConffile marks a path as a conffile of the package currently
	// being unpacked.
	NewConffile
	// DeferredRename marks a path whose ".dpkg-new" staged copy has not
	// yet been renamed into place; the unpack engine's commit pass
	// renames every such path before clearing this flag.
	DeferredRename
	// DeferredFsync marks a path whose ".dpkg-new" staged copy is a
	// regular file that the unpack engine's commit pass fsyncs just before
	// renaming it into place.
	DeferredFsync
	// NoAtomicOverwrite marks a path whose previous object was moved
	// aside with a plain rename rather than a hardlink backup, because it
	// was a directory (renaming a directory over a file is not atomic on
	// most filesystems the way a file-to-file rename is).
	NoAtomicOverwrite
	// PlacedOnDisk marks a path whose new object has been renamed into its
	// final place on disk.
	PlacedOnDisk
	// ElideOtherLists marks a path whose ownership bookkeeping has fully
	// superseded any other package's record of it -- set once a conffile
	// or a committed file has taken over the path outright.
	ElideOtherLists
	// Filtered marks a path the unpack engine decided to skip extracting
	// (e.g. by a path-exclusion filter), leaving no trace beyond the
	// flag itself.
	Filtered
)

// Divert records that reads/writes of CameFrom should be redirected to
// UseInstead, as installed by dpkg-divert(1).
type Divert struct {
	CameFrom   string
	UseInstead string
	Owner      *database.PackageSet // the package that owns the diversion, or nil for a local diversion
}

// StatOverride records an administrator override of a path's ownership
// and mode, as installed by dpkg-statoverride(1).
type StatOverride struct {
	UID, GID int
	Mode     uint32
}

// Node is one interned path: its current flags, any diversion or stat
// override affecting it, and the set of package instances that currently
// claim to own it.
type Node struct {
	Name         string
	Flags        Flag
	Divert       *Divert
	StatOverride *StatOverride
	Owners       []*database.PackageInstance
}

// Namespace interns paths so that every reference to the same path, from
// any package's file list, resolves to the identical *Node.
type Namespace struct {
	byName map[string]*Node
}

// NewNamespace creates an empty filename namespace.
func NewNamespace() *Namespace {
	return &Namespace{byName: make(map[string]*Node)}
}

// Find interns path, creating a fresh Node the first time it is seen.
func (n *Namespace) Find(path string) *Node {
	if node, ok := n.byName[path]; ok {
		return node
	}
	node := &Node{Name: path}
	n.byName[path] = node
	return node
}

// Reset discards every interned path.
func (n *Namespace) Reset() {
	n.byName = make(map[string]*Node)
}

// Len returns the number of interned paths.
func (n *Namespace) Len() int { return len(n.byName) }

// AddOwner records that pkg claims ownership of node, if it does not
// already.
func (node *Node) AddOwner(pkg *database.PackageInstance) {
	for _, o := range node.Owners {
		if o == pkg {
			return
		}
	}
	node.Owners = append(node.Owners, pkg)
}

// RemoveOwner drops pkg from node's owner list, if present.
func (node *Node) RemoveOwner(pkg *database.PackageInstance) {
	for i, o := range node.Owners {
		if o == pkg {
			node.Owners = append(node.Owners[:i], node.Owners[i+1:]...)
			return
		}
	}
}

// SavedByOwner reports whether some owner of node, other than excluding,
// still claims it with a status of half-installed or later -- the condition under which removing excluding's copy
// must not remove the path from disk. Adapted from filesavespackage in
// src/archives.c, generalized from "last file of a disappearing package"
// to the general shared-ownership question the unpack engine asks before
// every unlink.
func (node *Node) SavedByOwner(excluding *database.PackageInstance) bool {
	for _, o := range node.Owners {
		if o != excluding && o.Status >= database.StatusHalfInstalled {
			return true
		}
	}
	return false
}

// Disappears decides whether candidate, upon losing its file at node to
// newPkg, should be considered to have disappeared from the system
// entirely (as opposed to merely losing file ownership), the supplemental
// feature described in SPEC_FULL.md. It reports false when candidate is
// newPkg, when thirdPartyOwns reports that node is owned elsewhere, or
// when SavedByOwner finds another owner of node; otherwise true.
// Maintainer scripts and reverse dependencies are not examined.
func Disappears(candidate, newPkg *database.PackageInstance, node *Node, thirdPartyOwns func(*Node) bool) bool {
	if candidate == newPkg {
		return false
	}
	if thirdPartyOwns != nil && thirdPartyOwns(node) {
		return false
	}
	return !node.SavedByOwner(candidate)
}

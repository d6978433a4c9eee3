// Package database implements the in-memory package database: a hash
// table of package sets keyed by name, where each set chains together one
// package instance per architecture. It is the Go equivalent of dpkg's
// lib/dpkg/pkg-db.c and the struct pkgset/pkginfo/pkgbin definitions in
// lib/dpkg/dpkg-db.h.
//
// A Database is not safe for concurrent use; dpkgcore follows the
// single-writer model described in the specification and expects callers
// to serialize access themselves.
package database

import (
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/depgraph"
	"github.com/dpkg-go/dpkgcore/version"
)

// bins is the bucket count of the package-set hash table. It must stay
// prime for good FNV distribution; dpkg itself uses 8191 for the same
// reason.
const bins = 8191

const (
	fnvOffsetBasis uint32 = 2166136261
	fnvMixingPrime uint32 = 16777619
)

// hash is the Fowler/Noll/Vo string hash used to bucket package names.
func hash(name string) uint32 {
	h := fnvOffsetBasis
	for i := 0; i < len(name); i++ {
		h *= fnvMixingPrime
		h ^= uint32(name[i])
	}
	return h
}

// MultiArch is the Multi-Arch field value of a package instance.
type MultiArch int

const (
	MultiArchNo MultiArch = iota
	MultiArchSame
	MultiArchAllowed
	MultiArchForeign
)

// Want is the administrator's requested state for a package (the first
// column of a dpkg selections record).
type Want int

const (
	WantUnknown Want = iota
	WantInstall
	WantHold
	WantDeinstall
	WantPurge
)

// Status is a package instance's installation status, ordered exactly as
// dpkg's pkgwant/pkgstatus progression so that Status comparisons answer
// "has this package progressed past X" questions directly.
type Status int

const (
	StatusNotInstalled Status = iota
	StatusConfigFiles
	StatusHalfInstalled
	StatusUnpacked
	StatusHalfConfigured
	StatusTriggersAwaited
	StatusTriggersPending
	StatusInstalled
)

// EFlag is the error-flag bitmask recorded alongside a package instance.
type EFlag uint32

const (
	// EFlagReinstreq marks a package left in a state where only
	// reinstallation (not mere reconfiguration) can recover it. Per
	// spec Open Question (c), any bit set in EFlag is treated as
	// "reinstall required" -- there is currently only one bit defined,
	// but the predicate is written against the whole mask so a future
	// bit does not silently change behavior.
	EFlagReinstreq EFlag = 1 << iota
)

// Reinstreq reports whether any error flag requiring reinstallation is set.
func (f EFlag) Reinstreq() bool { return f != 0 }

// ConfFile is one entry of a package's conffiles list: a path and the MD5
// hash recorded at install time, or Obsolete if the admin directory marked
// it for removal on next upgrade.
type ConfFile struct {
	Path     string
	Hash     string
	Obsolete bool
}

// BinMeta is the subset of a package's fields that differ between its
// Available and Installed copies -- dpkg's struct pkgbin.
type BinMeta struct {
	Arch        *arch.Arch
	MultiArch   MultiArch
	Essential   bool
	Version     version.Version
	Maintainer  string
	Description string
	Depends     []*depgraph.Dependency
	ConfFiles   []ConfFile
	// ArbFields holds any control-file field this database does not give
	// a named slot to, verbatim, keyed by its exact field name.
	ArbFields map[string]string
	Size      int64
	MD5       string
}

// PackageInstance is one architecture-specific instance of a package --
// dpkg's struct pkginfo.
type PackageInstance struct {
	Set      *PackageSet
	ArchNext *PackageInstance // next instance in this set's per-arch chain

	Want          Want
	Status        Status
	EFlag         EFlag
	ConfigVersion version.Version
	Priority      string
	Section       string

	TrigAwaited []string
	TrigPending []string

	Installed BinMeta
	Available BinMeta

	// ClientData is scratch storage for the consumer of this database
	// (e.g. the unpack engine marks packages it has already visited in
	// one run); it is not touched by any method here except Reset.
	ClientData any
}

// PackageSet groups every architecture-specific instance sharing one
// package name -- dpkg's struct pkgset.
type PackageSet struct {
	Name string // lowercased

	next *PackageSet // hash-bucket chain link
	head *PackageInstance

	// DependedInstalled/DependedAvailable are the heads of the reverse
	// dependency thread: every Possibility pointing at this set through
	// an installed, respectively available, Dependency is linked here.
	DependedInstalled *depgraph.Possibility
	DependedAvailable *depgraph.Possibility
}

// SetName implements depgraph.PkgTarget.
func (s *PackageSet) SetName() string { return s.Name }

// Head returns the set's native/all/none instance, which always exists.
func (s *PackageSet) Head() *PackageInstance { return s.head }

// Instances returns every architecture instance of the set, starting with
// Head, in creation order.
func (s *PackageSet) Instances() []*PackageInstance {
	out := []*PackageInstance{s.head}
	for p := s.head.ArchNext; p != nil; p = p.ArchNext {
		out = append(out, p)
	}
	return out
}

// Database is the package-set hash table plus the architecture registry
// it resolves names against.
type Database struct {
	archReg *arch.Registry
	table   [bins]*PackageSet
	nSet    int
	nPkg    int
}

// NewDatabase creates an empty database bound to the given architecture
// registry.
func NewDatabase(archReg *arch.Registry) *Database {
	return &Database{archReg: archReg}
}

// Architectures returns the registry this database resolves package
// architectures against.
func (d *Database) Architectures() *arch.Registry { return d.archReg }

// FindSet returns the package set named name, lowercasing it and creating
// an empty set if none exists yet. Ported from pkg_db_find_set; bucket
// chains compare case-insensitively even though the stored name is
// already lowercase, matching dpkg's belt-and-suspenders strcasecmp
// (spec Open Question (b): case-insensitive lookup via lowercased keys).
func (d *Database) FindSet(name string) *PackageSet {
	lower := strings.ToLower(name)
	idx := hash(lower) % bins

	for s := d.table[idx]; s != nil; s = s.next {
		if strings.EqualFold(s.Name, lower) {
			return s
		}
	}

	s := &PackageSet{Name: lower}
	s.head = &PackageInstance{Set: s}
	s.next = d.table[idx]
	d.table[idx] = s
	d.nSet++
	d.nPkg++
	return s
}

// FindPkg returns the instance of name for the given architecture,
// creating the set and/or the instance if necessary. A nil architecture,
// or one of kind KindNative/KindAll/KindNone, always resolves to the
// set's Head. Ported from pkg_db_find_pkg.
func (d *Database) FindPkg(name string, a *arch.Arch) *PackageInstance {
	set := d.FindSet(name)
	if a == nil || a.Kind() == arch.KindNative || a.Kind() == arch.KindAll || a.Kind() == arch.KindNone {
		return set.head
	}

	pp := &set.head.ArchNext
	for *pp != nil {
		p := *pp
		if p.Installed.Arch == nil {
			p.Installed.Arch = a
			p.Available.Arch = a
			return p
		}
		if p.Installed.Arch == a {
			return p
		}
		pp = &p.ArchNext
	}

	p := &PackageInstance{Set: set}
	p.Installed.Arch = a
	p.Available.Arch = a
	*pp = p
	d.nPkg++
	return p
}

// CountSets returns the number of distinct package sets in the database.
func (d *Database) CountSets() int { return d.nSet }

// CountPkgs returns the total number of package instances in the database.
func (d *Database) CountPkgs() int { return d.nPkg }

// Sets iterates every package set in bucket order, matching
// pkg_db_iter_next_set.
func (d *Database) Sets() iter.Seq[*PackageSet] {
	return func(yield func(*PackageSet) bool) {
		for _, head := range d.table {
			for s := head; s != nil; s = s.next {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// Instances iterates every package instance of every set, in bucket order
// and then per-set architecture order, matching pkg_db_iter_next_pkg.
func (d *Database) Instances() iter.Seq[*PackageInstance] {
	return func(yield func(*PackageInstance) bool) {
		for s := range d.Sets() {
			for _, p := range s.Instances() {
				if !yield(p) {
					return
				}
			}
		}
	}
}

// Reset discards every package set and instance and resets the bound
// architecture registry, matching pkg_db_reset.
func (d *Database) Reset() {
	d.table = [bins]*PackageSet{}
	d.nSet = 0
	d.nPkg = 0
	d.archReg.Reset()
}

// Report writes a per-bucket occupancy report in the exact format of
// pkg_db_report, supplementing the line-budgeted core spec with the
// diagnostic the original implementation ships.
func (d *Database) Report(w io.Writer) error {
	freq := make([]int, d.nSet+1)
	for i, head := range d.table {
		c := 0
		for s := head; s != nil; s = s.next {
			c++
		}
		if _, err := fmt.Fprintf(w, "bin %5d has %7d\n", i, c); err != nil {
			return err
		}
		freq[c]++
	}
	i := d.nSet
	for i > 0 && freq[i] == 0 {
		i--
	}
	for ; i >= 0; i-- {
		if _, err := fmt.Fprintf(w, "size %7d occurs %5d times\n", i, freq[i]); err != nil {
			return err
		}
	}
	return nil
}

// InstallDependency links dep's alternatives into the reverse-dependency
// thread of each target set, so that later lookups ("who depends on X")
// can walk from a PackageSet back out to every Possibility naming it.
// installedSide selects whether the Dependency came from an Installed or
// an Available BinMeta.
func (d *Database) InstallDependency(dep *depgraph.Dependency, installedSide bool) {
	for _, alt := range dep.Alts {
		set := d.FindSet(alt.TargetName)
		var head **depgraph.Possibility
		if installedSide {
			head = &set.DependedInstalled
		} else {
			head = &set.DependedAvailable
		}
		alt.RevNext = *head
		alt.RevPrev = nil
		if *head != nil {
			(*head).RevPrev = alt
		}
		*head = alt
	}
}

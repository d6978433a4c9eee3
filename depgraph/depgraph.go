// Package depgraph defines the dependency-relation types shared by the
// control-file parser, the dependency evaluator and the package database:
// a Dependency clause with one or more alternatives, each alternative
// naming a target package set, an optional version relation, and an
// optional architecture qualifier.
package depgraph

import (
	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/version"
)

// Kind identifies the relation field a Dependency came from.
type Kind int

const (
	KindDepends Kind = iota
	KindPreDepends
	KindRecommends
	KindSuggests
	KindProvides
	KindBreaks
	KindConflicts
	KindReplaces
	KindEnhances
)

// HasAlternatives reports whether a clause of this kind is allowed to list
// more than one "|"-separated alternative. Only the four "wanted"
// relations may; Provides/Breaks/Conflicts/Replaces/Enhances are each a
// flat list of independent single-target clauses.
func (k Kind) HasAlternatives() bool {
	switch k {
	case KindDepends, KindPreDepends, KindRecommends, KindSuggests:
		return true
	default:
		return false
	}
}

// String returns the control-file field name for k.
func (k Kind) String() string {
	switch k {
	case KindDepends:
		return "Depends"
	case KindPreDepends:
		return "Pre-Depends"
	case KindRecommends:
		return "Recommends"
	case KindSuggests:
		return "Suggests"
	case KindProvides:
		return "Provides"
	case KindBreaks:
		return "Breaks"
	case KindConflicts:
		return "Conflicts"
	case KindReplaces:
		return "Replaces"
	case KindEnhances:
		return "Enhances"
	default:
		return "Unknown"
	}
}

// VerRel is the version relation operator of a dependency alternative.
type VerRel int

const (
	// VerRelNone means the alternative names a package with no version
	// constraint at all (satisfied by any version, or by a Provides).
	VerRelNone VerRel = iota
	VerRelEarlierEqual
	VerRelEarlierStrict
	VerRelLaterEqual
	VerRelLaterStrict
	VerRelExact
)

// PkgTarget is the minimal view of a package set a dependency alternative
// points at; it is satisfied by the database.PackageSet interface to avoid
// an import cycle between depgraph and database.
type PkgTarget interface {
	SetName() string
}

// Possibility is one "|"-separated alternative of a Dependency.
type Possibility struct {
	TargetName string // lowercase package (or provided) name
	VerRel     VerRel
	Version    version.Version
	Arch       *arch.Arch // nil means unqualified (no ":arch" suffix written)
	// ArchIsImplicit marks an Arch that was filled in by the parser
	// because none was written (Conflicts/Breaks/Replaces default a
	// missing ":arch" to an implicit "any"), rather than one the control
	// file actually spelled out. A possibility with ArchIsImplicit set
	// must serialize with no ":arch" suffix at all, so that a clause
	// written as "Conflicts: foo" round-trips byte-for-byte instead of
	// coming back as "Conflicts: foo:any".
	ArchIsImplicit bool
	Up             *Dependency

	// reverse-dependency thread, installed by database.Database when the
	// owning Dependency is linked into the database; see database.Database.
	RevNext, RevPrev *Possibility
}

// Dependency is one control-file relation field's clause list: a single
// Kind, and one or more alternatives that together make up that clause.
type Dependency struct {
	Kind Kind
	Alts []*Possibility

	// Owner is the *database.PackageInstance this clause was parsed onto.
	// It is declared as any to avoid an import cycle between depgraph and
	// database; consumers in package depends type-assert it back.
	Owner any
}

// NewDependency constructs a Dependency with its Possibility.Up back-links
// already wired.
func NewDependency(kind Kind, alts ...*Possibility) *Dependency {
	d := &Dependency{Kind: kind, Alts: alts}
	for _, a := range alts {
		a.Up = d
	}
	return d
}

// Package depends implements the dependency evaluator: deciding whether a
// single alternative of a dependency clause is satisfied by the current
// database contents, and producing a human-readable explanation when it
// is not. Ported from versionsatisfied3/versionsatisfied/archsatisfied in
// lib/dpkg/vercmp.c.
package depends

import (
	"fmt"

	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/database"
	"github.com/dpkg-go/dpkgcore/depgraph"
	"github.com/dpkg-go/dpkgcore/version"
)

// VersionSatisfied reports whether have satisfies the verrel constraint
// against want. Ported from versionsatisfied3.
func VersionSatisfied(have, want version.Version, rel depgraph.VerRel) bool {
	if rel == depgraph.VerRelNone {
		return true
	}
	r := have.Compare(want)
	switch rel {
	case depgraph.VerRelEarlierEqual:
		return r <= 0
	case depgraph.VerRelLaterEqual:
		return r >= 0
	case depgraph.VerRelEarlierStrict:
		return r < 0
	case depgraph.VerRelLaterStrict:
		return r > 0
	case depgraph.VerRelExact:
		return r == 0
	default:
		return false
	}
}

// ArchSatisfied decides whether a package instance of architecture
// pkgArch and Multi-Arch mode pkgMultiArch may satisfy a dependency
// alternative qualified by depArch, for a clause of the given kind.
// Ported verbatim from archsatisfied in lib/dpkg/vercmp.c.
func ArchSatisfied(pkgArch *arch.Arch, pkgMultiArch database.MultiArch, depArch *arch.Arch, kind depgraph.Kind, native *arch.Arch) bool {
	if pkgMultiArch == database.MultiArchForeign {
		return true
	}

	da := depArch
	if da != nil && da.Kind() == arch.KindWildcard &&
		(pkgMultiArch == database.MultiArchAllowed ||
			kind == depgraph.KindConflicts ||
			kind == depgraph.KindReplaces ||
			kind == depgraph.KindBreaks) {
		return true
	}

	// A nil arch (an unqualified alternative, or an instance whose
	// architecture was never recorded) is treated like the "" arch.
	if da == nil || da.Kind() == arch.KindNone || da.Kind() == arch.KindAll {
		da = native
	}

	pa := pkgArch
	if pa == nil || pa.Kind() == arch.KindNone || pa.Kind() == arch.KindAll {
		pa = native
	}

	return da == pa
}

// Explanation is the result of evaluating one dependency alternative.
type Explanation struct {
	Satisfied bool
	Why       string
	// Fixable names an installed package instance whose configuration or
	// removal would resolve the clause, when one can be identified.
	Fixable *database.PackageInstance
}

// possibilitySatisfiedBy reports whether candidate (an installed or
// available instance of the alternative's target set) satisfies alt,
// combining version and architecture satisfaction. Direct (non-Provides)
// satisfaction requires both; a Provides edge only ever satisfies an
// unversioned alternative.
func possibilitySatisfiedBy(alt *depgraph.Possibility, candidate *database.PackageInstance, native *arch.Arch) bool {
	bin := candidate.Installed
	if !VersionSatisfied(bin.Version, alt.Version, alt.VerRel) {
		return false
	}
	return ArchSatisfied(bin.Arch, bin.MultiArch, alt.Arch, alt.Up.Kind, native)
}

// DepIsOK evaluates every alternative of dep against the database's
// current installed state, returning satisfied=true as soon as one
// alternative is met (Depends/Pre-Depends/Recommends/Suggests semantics).
// For the non-alternative relations (Conflicts, Breaks, ...) callers
// should evaluate each Dependency's lone alternative directly instead;
// DepIsOK is only meaningful for clauses where HasAlternatives() is true.
func DepIsOK(dep *depgraph.Dependency, db *database.Database) Explanation {
	native := db.Architectures().Native()

	var reasons []string
	for _, alt := range dep.Alts {
		set := db.FindSet(alt.TargetName)
		for _, inst := range set.Instances() {
			if inst.Status < database.StatusUnpacked {
				continue
			}
			if possibilitySatisfiedBy(alt, inst, native) {
				return Explanation{Satisfied: true}
			}
		}
		// check Provides edges for unversioned alternatives
		if alt.VerRel == depgraph.VerRelNone {
			for provider := range providersOf(db, alt.TargetName) {
				if provider.Status >= database.StatusUnpacked &&
					ArchSatisfied(provider.Installed.Arch, provider.Installed.MultiArch, alt.Arch, dep.Kind, native) {
					return Explanation{Satisfied: true}
				}
			}
		}
		reasons = append(reasons, fmt.Sprintf("%s is not installed or does not satisfy the version constraint", alt.TargetName))
	}

	exp := Explanation{Satisfied: false}
	if len(reasons) > 0 {
		exp.Why = reasons[0]
	}
	return exp
}

// providersOf yields every installed package instance that Provides name,
// walking the reverse Provides thread on name's set.
func providersOf(db *database.Database, name string) func(func(*database.PackageInstance) bool) {
	return func(yield func(*database.PackageInstance) bool) {
		set := db.FindSet(name)
		for p := set.DependedInstalled; p != nil; p = p.RevNext {
			if p.Up.Kind != depgraph.KindProvides {
				continue
			}
			owner, ok := p.Up.Owner.(*database.PackageInstance)
			if !ok || owner == nil {
				continue
			}
			if !yield(owner) {
				return
			}
		}
	}
}

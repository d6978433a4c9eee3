// Package pkgspec implements package specifiers: the "name[:arch]" strings
// used on command lines and in selection files to name one package
// instance, optionally as a glob pattern. Ported from
// lib/dpkg/pkg-spec.{c,h}.
package pkgspec

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/database"
)

// Flags controls how a Spec is parsed and matched.
type Flags uint32

const (
	// NoCheck relaxes illegal name/architecture rejection.
	NoCheck Flags = 1 << iota
	// Patterns enables glob detection in the name and architecture
	// ("*", "[", "?", "\\").
	Patterns
	// SkipNotInstalled excludes not-installed package instances from a match.
	SkipNotInstalled
	// SkipConfigFiles excludes config-files-only instances from a match.
	SkipConfigFiles
	// DefNative treats a bare name with no ":arch" qualifier as matching
	// only native/all/none architectures.
	DefNative
	// DefWildcard treats a bare name with no ":arch" qualifier as
	// matching any architecture.
	DefWildcard
)

// Spec is a parsed package specifier.
type Spec struct {
	Name string
	Arch *arch.Arch
	Flags Flags

	namePattern bool
	archPattern bool
}

const patternChars = "*[?\\"

// Parse parses a "name[:arch]" specifier against archReg, classifying
// glob patterns when Patterns is set. Ported from pkg_spec_parse plus
// pkg_spec_do_checks.
func Parse(s string, archReg *arch.Registry, flags Flags) (*Spec, error) {
	name, archName, _ := strings.Cut(s, ":")

	ps := &Spec{Name: name, Arch: archReg.Find(archName), Flags: flags}

	if flags&Patterns != 0 {
		ps.namePattern = strings.ContainsAny(ps.Name, patternChars)
		ps.archPattern = strings.ContainsAny(ps.Arch.Name(), patternChars)
	}

	if flags&NoCheck == 0 {
		if err := ps.illegal(); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

// IsPattern reports whether this specifier will be matched as a glob
// rather than an exact name/architecture.
func (ps *Spec) IsPattern() bool {
	if ps.namePattern || ps.archPattern {
		return true
	}
	return ps.Flags&DefWildcard != 0 && ps.Arch.Kind() == arch.KindNone
}

// illegal reports a non-nil error describing why the specifier's name or
// architecture is illegal, unless that part is being treated as a
// pattern. Ported from pkg_spec_is_illegal.
func (ps *Spec) illegal() error {
	if !ps.namePattern {
		if err := validatePkgName(ps.Name); err != nil {
			return fmt.Errorf("package name in specifier %q: %w", ps.specString(), err)
		}
	}
	if !ps.archPattern && ps.Arch.Kind() == arch.KindIllegal {
		if err := arch.ValidateName(ps.Arch.Name()); err != nil {
			return fmt.Errorf("architecture name in specifier %q: %w", ps.specString(), err)
		}
	}
	return nil
}

func (ps *Spec) specString() string {
	if ps.Arch.Kind() == arch.KindNone {
		return ps.Name
	}
	return ps.Name + ":" + ps.Arch.Name()
}

// validatePkgName mirrors pkg_name_is_illegal from lib/dpkg/fields.c: a
// legal package name is at least two characters, starts with an
// alphanumeric, and otherwise contains only lowercase letters, digits,
// '+', '.' and '-'.
func validatePkgName(name string) error {
	if len(name) < 2 {
		return fmt.Errorf("must be at least two characters long")
	}
	c0 := name[0]
	if !(c0 >= 'a' && c0 <= 'z') && !(c0 >= '0' && c0 <= '9') {
		return fmt.Errorf("must start with an alphanumeric character")
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		ok := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '+' || c == '.' || c == '-'
		if !ok {
			return fmt.Errorf("character %q not allowed (only lowercase letters, digits and '+.-')", c)
		}
	}
	return nil
}

// matchArch reports whether candidate satisfies ps's architecture
// constraint. Ported from pkg_spec_match_arch.
func (ps *Spec) matchArch(candidate *arch.Arch) bool {
	// An instance whose architecture was never recorded (nil) counts as
	// the "" (none) architecture.
	candName, candKind := "", arch.KindNone
	if candidate != nil {
		candName, candKind = candidate.Name(), candidate.Kind()
	}
	if ps.archPattern {
		ok, _ := filepath.Match(ps.Arch.Name(), candName)
		return ok
	}
	if ps.Arch.Kind() != arch.KindNone {
		return ps.Arch == candidate
	}
	if ps.Flags&DefWildcard != 0 {
		return true
	}
	// DefNative, or no default configured: native/all/none only.
	return candKind == arch.KindNative || candKind == arch.KindAll || candKind == arch.KindNone
}

// matchName reports whether candidate (a package set name) matches ps's
// name constraint. Ported from pkg_spec_match_pkgname.
func (ps *Spec) matchName(candidate string) bool {
	if ps.namePattern {
		ok, _ := filepath.Match(ps.Name, candidate)
		return ok
	}
	return ps.Name == candidate
}

// matchFlags reports whether inst's status passes the skip flags. Ported
// from pkg_spec_match_flags.
func (ps *Spec) matchFlags(inst *database.PackageInstance) bool {
	if ps.Flags&SkipNotInstalled != 0 && inst.Status == database.StatusNotInstalled {
		return false
	}
	if ps.Flags&SkipConfigFiles != 0 && inst.Status == database.StatusConfigFiles {
		return false
	}
	return true
}

// Match reports whether inst satisfies this specifier in full: status
// flags, architecture, and package name. Ported from pkg_spec_match_pkg.
func (ps *Spec) Match(inst *database.PackageInstance) bool {
	return ps.matchFlags(inst) && ps.matchArch(inst.Installed.Arch) && ps.matchName(inst.Set.Name)
}

// FindPkg resolves this specifier to exactly one package instance. It is
// incompatible with Patterns and DefWildcard, mirroring
// pkg_spec_find_pkg's internal error for the same misuse.
func (ps *Spec) FindPkg(db *database.Database) (*database.PackageInstance, error) {
	if ps.Flags&(Patterns|DefWildcard) != 0 {
		return nil, fmt.Errorf("pkgspec: FindPkg is incompatible with Patterns/DefWildcard")
	}
	pkg := db.FindPkg(ps.Name, ps.Arch)
	if !ps.matchFlags(pkg) {
		return nil, nil
	}
	return pkg, nil
}

// Iter returns every package instance in db matching this specifier,
// mirroring pkg_spec_iter_start/pkg_spec_iter_next_pkg.
func (ps *Spec) Iter(db *database.Database) func(func(*database.PackageInstance) bool) {
	return func(yield func(*database.PackageInstance) bool) {
		matchOne := func(inst *database.PackageInstance) bool {
			return ps.matchFlags(inst) && ps.matchArch(inst.Installed.Arch)
		}

		if !ps.namePattern {
			set := db.FindSet(ps.Name)
			for _, inst := range set.Instances() {
				if matchOne(inst) {
					if !yield(inst) {
						return
					}
				}
			}
			return
		}

		for set := range db.Sets() {
			if !ps.matchName(set.Name) {
				continue
			}
			for _, inst := range set.Instances() {
				if matchOne(inst) {
					if !yield(inst) {
						return
					}
				}
			}
		}
	}
}

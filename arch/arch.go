// Package arch implements the Debian architecture registry: the small set
// of named tokens ("amd64", "all", "any", ...) that every package and every
// dependency clause is qualified by.
//
// An architecture name is resolved once and reused by pointer afterwards,
// the same way the C implementation keeps a singly linked list of
// dpkg_arch structures and hands out pointers into it -- two lookups of the
// same name from the same Registry always return the same *Arch, so callers
// may compare architectures with ==.
package arch

import (
	"errors"
	"unicode"
)

// Kind classifies an architecture name.
type Kind int

const (
	// KindNone is the architecture of a source-only or arch-independent
	// context; it is represented by the empty name.
	KindNone Kind = iota
	// KindNative is the registry's own machine architecture.
	KindNative
	// KindAll marks the "all" pseudo-architecture (arch-independent binaries).
	KindAll
	// KindWildcard marks the "any" pseudo-architecture.
	KindWildcard
	// KindForeign classifies a concretely named, known-legal architecture
	// configured as foreign (dpkg --add-architecture). Registry offers no
	// way to configure one, so no Arch of this kind is produced; Find
	// never manufactures it for a name it merely happens to see.
	KindForeign
	// KindUnknown is a legal architecture name that Find encountered but
	// that was never configured: a name appearing in a dependency clause
	// or Architecture field, say, that the registry has no other record
	// of. Distinct from KindForeign so that e.g.
	// print-foreign-architectures doesn't report every incidentally-seen
	// name as a foreign architecture.
	KindUnknown
	// KindIllegal is a name that fails the character-class check.
	KindIllegal
)

// Arch is an interned architecture name. Values are only ever produced by
// a Registry and remain valid for that Registry's lifetime.
type Arch struct {
	name string
	kind Kind
}

// Name returns the architecture's name, or "" for KindNone.
func (a *Arch) Name() string { return a.name }

// Kind reports how this architecture was classified when it was found.
func (a *Arch) Kind() Kind { return a.kind }

// Registry is the set of architectures known in one session. It mirrors
// the static chain native -> all -> any used by the C implementation: new
// unrecognized names are appended to the chain the first time they are
// looked up, in discovery order.
type Registry struct {
	native *Arch
	all    *Arch
	any    *Arch
	none   *Arch

	byName map[string]*Arch
	order  []*Arch // discovered via Find, beyond the three built-ins, in first-seen order
}

// NewRegistry creates a registry for the given native (build/host) machine
// architecture, pre-populated with the "all", "any" and "" pseudo-architectures.
func NewRegistry(nativeName string) *Registry {
	r := &Registry{byName: make(map[string]*Arch)}

	r.none = &Arch{name: "", kind: KindNone}
	r.any = &Arch{name: "any", kind: KindWildcard}
	r.all = &Arch{name: "all", kind: KindAll}
	r.native = &Arch{name: nativeName, kind: KindNative}

	r.byName[nativeName] = r.native
	r.byName["all"] = r.all
	r.byName["any"] = r.any
	// "" intentionally never enters byName: it is never chained, only
	// returned directly by Find for an empty name.

	return r
}

// Find returns the Arch for name, creating and chaining a new KindUnknown
// or KindIllegal entry if name has not been seen before. An empty name
// always yields the KindNone arch. A discovered name is never classified
// KindForeign: that kind is reserved for architectures the registry was
// explicitly configured with.
func (r *Registry) Find(name string) *Arch {
	if name == "" {
		return r.none
	}
	if a, ok := r.byName[name]; ok {
		return a
	}

	kind := KindUnknown
	if ValidateName(name) != nil {
		kind = KindIllegal
	}
	a := &Arch{name: name, kind: kind}
	r.byName[name] = a
	r.order = append(r.order, a)
	return a
}

// Native returns the registry's native architecture.
func (r *Registry) Native() *Arch { return r.native }

// All returns the registry's known architectures in discovery order:
// native, all, any, then any unknown/illegal names seen by Find, in the
// order first encountered.
func (r *Registry) All() []*Arch {
	out := make([]*Arch, 0, len(r.order)+3)
	out = append(out, r.native, r.all, r.any)
	out = append(out, r.order...)
	return out
}

// Reset truncates the registry back to native/all/any/none, discarding any
// architectures discovered via Find. Mirrors dpkg_arch_reset, which simply
// unchains everything after "any".
func (r *Registry) Reset() {
	r.order = nil
	for k := range r.byName {
		if k != r.native.name && k != "all" && k != "any" {
			delete(r.byName, k)
		}
	}
}

var (
	errEmpty    = errors.New("architecture name may not be empty")
	errBadStart = errors.New("architecture name must start with an alphanumeric")
	errBadChar  = errors.New("architecture name may only contain letters, digits and '-'")
)

// ValidateName reports whether name is a legal architecture name: it must
// start with an alphanumeric character and then consist only of
// alphanumerics and hyphens. Ported from dpkg_arch_name_is_illegal.
func ValidateName(name string) error {
	if name == "" {
		return errEmpty
	}
	r := []rune(name)
	if !unicode.IsLetter(r[0]) && !unicode.IsDigit(r[0]) {
		return errBadStart
	}
	for _, c := range r[1:] {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-' {
			return errBadChar
		}
	}
	return nil
}

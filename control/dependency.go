package control

import (
	"fmt"
	"strings"

	"github.com/dpkg-go/dpkgcore/database"
	"github.com/dpkg-go/dpkgcore/depgraph"
	"github.com/dpkg-go/dpkgcore/version"
)

// ParseDependencyField parses the comma-separated, "|"-alternatived
// clause list of a single relation field (e.g. a whole Depends: line)
// into one *depgraph.Dependency per clause. Ported from f_dependency in
// lib/dpkg/fields.c: each clause is split on top-level commas, and within
// a clause alternatives are split on "|"; every alternative may carry a
// ":arch" qualifier and a "(relop version)" constraint.
func ParseDependencyField(raw string, kind depgraph.Kind, db *database.Database) ([]*depgraph.Dependency, error) {
	var deps []*depgraph.Dependency

	for _, clause := range strings.Split(raw, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}

		altStrs := strings.Split(clause, "|")
		if len(altStrs) > 1 && !kind.HasAlternatives() {
			return nil, fmt.Errorf("alternatives ('|') not allowed in this field")
		}

		var alts []*depgraph.Possibility
		for _, altStr := range altStrs {
			alt, err := parsePossibility(strings.TrimSpace(altStr), kind, db)
			if err != nil {
				return nil, err
			}
			alts = append(alts, alt)
		}
		deps = append(deps, depgraph.NewDependency(kind, alts...))
	}
	return deps, nil
}

func parsePossibility(s string, kind depgraph.Kind, db *database.Database) (*depgraph.Possibility, error) {
	name := s
	rest := ""
	if i := strings.IndexAny(s, " \t("); i >= 0 {
		name = s[:i]
		rest = strings.TrimSpace(s[i:])
	}
	if name == "" {
		return nil, fmt.Errorf("missing package name, or garbage where package name expected")
	}

	archName := ""
	if i := strings.IndexByte(name, ':'); i >= 0 {
		archName = name[i+1:]
		name = name[:i]
		if archName == "" {
			return nil, fmt.Errorf("missing architecture name, or garbage where architecture name expected")
		}
	}

	alt := &depgraph.Possibility{TargetName: strings.ToLower(name)}

	archReg := db.Architectures()
	switch {
	case archName != "":
		if archName != "any" {
			return nil, fmt.Errorf("reference to %q: a value different from 'any' is currently not allowed", name)
		}
		alt.Arch = archReg.Find(archName)
	case kind == depgraph.KindConflicts || kind == depgraph.KindBreaks || kind == depgraph.KindReplaces:
		alt.Arch = archReg.Find("any")
		alt.ArchIsImplicit = true
	default:
		alt.Arch = nil
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		alt.VerRel = depgraph.VerRelNone
		return alt, nil
	}
	if rest[0] != '(' || !strings.HasSuffix(rest, ")") {
		return nil, fmt.Errorf("reference to %q: syntax error after reference to package", name)
	}
	inner := strings.TrimSpace(rest[1 : len(rest)-1])

	rel, verStr, err := splitRelation(inner)
	if err != nil {
		return nil, fmt.Errorf("reference to %q: %w", name, err)
	}
	if rel != depgraph.VerRelNone && kind == depgraph.KindProvides && rel != depgraph.VerRelExact {
		return nil, fmt.Errorf("only exact versions may be used for Provides")
	}
	ver, err := version.Parse(verStr)
	if err != nil {
		return nil, fmt.Errorf("reference to %q: error in version: %w", name, err)
	}
	alt.VerRel = rel
	alt.Version = ver
	return alt, nil
}

// splitRelation parses a "(relop version)" interior into a VerRel and the
// trailing version string. Supports the canonical two-character operators
// (<=, >=, <<, >>, =) and, per spec Open Question (a), the legacy bare
// '<'/'>' spellings (treated as earlier-equal/later-equal with a warning
// in the original dpkg; dpkgcore accepts them silently as a compatibility
// behavior rather than gating them behind a separate flag, since no
// caller-visible ambiguity results).
func splitRelation(s string) (depgraph.VerRel, string, error) {
	if s == "" {
		return depgraph.VerRelNone, "", fmt.Errorf("empty version constraint")
	}
	ops := []struct {
		prefix string
		rel    depgraph.VerRel
	}{
		{"<=", depgraph.VerRelEarlierEqual},
		{">=", depgraph.VerRelLaterEqual},
		{"<<", depgraph.VerRelEarlierStrict},
		{">>", depgraph.VerRelLaterStrict},
		{"=", depgraph.VerRelExact},
		{"<", depgraph.VerRelEarlierEqual},
		{">", depgraph.VerRelLaterEqual},
	}
	for _, op := range ops {
		if strings.HasPrefix(s, op.prefix) {
			return op.rel, strings.TrimSpace(s[len(op.prefix):]), nil
		}
	}
	return depgraph.VerRelExact, s, nil
}

// Command dpkg-compare-versions implements the §6 version-comparison CLI:
// `dpkg-compare-versions <a> <relation> <b>`, exiting 0 if the relation
// holds, 1 if it does not, and 2 on a syntax error.
package main

import (
	"fmt"
	"os"

	"github.com/dpkg-go/dpkgcore/version"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: dpkg-compare-versions <a> <relation> <b>")
		os.Exit(2)
	}
	ok, err := compare(os.Args[1], os.Args[2], os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "dpkg-compare-versions: %v\n", err)
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}

// compare parses a and b, honoring the "<unknown>" literal and the
// "empty version" conventions from §6, and evaluates relation against
// version.Version.Compare.
func compare(a, relation, b string) (bool, error) {
	emptyIsLater := false
	rel := relation
	if rel2, ok := trimNLSuffix(relation); ok {
		emptyIsLater = true
		rel = rel2
	}

	va, err := parseArg(a)
	if err != nil {
		return false, err
	}
	vb, err := parseArg(b)
	if err != nil {
		return false, err
	}

	if emptyIsLater {
		aEmpty := a == "" || a == "<unknown>"
		bEmpty := b == "" || b == "<unknown>"
		switch {
		case aEmpty && bEmpty:
			return evalCmp(rel, 0)
		case aEmpty:
			return evalCmp(rel, 1)
		case bEmpty:
			return evalCmp(rel, -1)
		}
	}

	return evalCmp(rel, va.Compare(vb))
}

func parseArg(s string) (version.Version, error) {
	if s == "" || s == "<unknown>" {
		return version.Version{}, nil
	}
	return version.Parse(s)
}

// trimNLSuffix recognizes the "-nl" relation variants (lt-nl, le-nl, ...)
// documented in §6, reporting the base relation with the suffix removed.
func trimNLSuffix(rel string) (string, bool) {
	const suffix = "-nl"
	if len(rel) > len(suffix) && rel[len(rel)-len(suffix):] == suffix {
		return rel[:len(rel)-len(suffix)], true
	}
	return rel, false
}

// evalCmp maps a relation spelling (new-style, legacy, or symbolic) onto
// the sign of a Version.Compare result.
func evalCmp(rel string, cmp int) (bool, error) {
	switch rel {
	case "lt", "<<", "<":
		return cmp < 0, nil
	case "le", "<=":
		return cmp <= 0, nil
	case "eq", "=":
		return cmp == 0, nil
	case "ne":
		return cmp != 0, nil
	case "ge", ">=":
		return cmp >= 0, nil
	case "gt", ">>", ">":
		return cmp > 0, nil
	default:
		return false, fmt.Errorf("unknown relation %q", rel)
	}
}

// Package version implements Debian version numbers: parsing, string
// rendering, and the three-way comparison algorithm used throughout
// dpkgcore to decide whether one package supersedes, equals, or precedes
// another.
//
// A version is [epoch:]upstream-version[-debian-revision]. Comparison is
// ported line for line from the verrevcmp/versioncompare algorithm in
// dpkg's lib/dpkg/vercmp.c: epoch is compared numerically, then the
// upstream and revision strings are compared by the same "alternating
// non-digit run / digit run" substring ordering.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed Debian version number.
type Version struct {
	Epoch    uint32
	Upstream string
	Revision string // empty when the version has no "-debian_revision"
}

// Zero is the version considered "not informative": the absence of a
// version, as used for an available pseudo-package or a not-installed
// package instance's ConfigVersion.
var Zero = Version{}

// IsInformative reports whether v carries a real version rather than the
// zero value. dpkg calls this a "blank" version: the pkginfo has never
// recorded an installed or configured version.
func (v Version) IsInformative() bool {
	return v.Epoch != 0 || v.Upstream != "" || v.Revision != ""
}

// Parse parses a Debian version string of the form
// [epoch:]upstream-version[-debian-revision].
//
// The upstream-version may only contain alphanumerics and the characters
// . + - ~ (and : if an epoch is present), and the debian-revision only
// alphanumerics and . + ~; Parse rejects any other character. dpkgcore
// mirrors dpkg's historical leniency and does not require the
// upstream-version to start with a digit, since plenty of real archives
// violate that rule.
func Parse(s string) (Version, error) {
	var v Version

	rest := s
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		epochStr := rest[:i]
		n, err := strconv.ParseUint(epochStr, 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("version %q: invalid epoch %q: %w", s, epochStr, err)
		}
		v.Epoch = uint32(n)
		rest = rest[i+1:]
	}

	if rest == "" {
		return Version{}, fmt.Errorf("version %q: empty upstream version", s)
	}

	if i := strings.LastIndexByte(rest, '-'); i >= 0 {
		v.Upstream = rest[:i]
		v.Revision = rest[i+1:]
	} else {
		v.Upstream = rest
	}

	if v.Upstream == "" {
		return Version{}, fmt.Errorf("version %q: empty upstream version", s)
	}

	isAlnum := func(c byte) bool {
		return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	}
	for i := 0; i < len(v.Upstream); i++ {
		if c := v.Upstream[i]; !isAlnum(c) && !strings.ContainsRune(".+-~:", rune(c)) {
			return Version{}, fmt.Errorf("version %q: invalid character %q in upstream version", s, c)
		}
	}
	for i := 0; i < len(v.Revision); i++ {
		if c := v.Revision[i]; !isAlnum(c) && !strings.ContainsRune(".+~", rune(c)) {
			return Version{}, fmt.Errorf("version %q: invalid character %q in revision", s, c)
		}
	}

	return v, nil
}

// String renders v back into [epoch:]upstream[-revision] form, omitting a
// zero epoch and an empty revision.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d:", v.Epoch)
	}
	b.WriteString(v.Upstream)
	if v.Revision != "" {
		b.WriteByte('-')
		b.WriteString(v.Revision)
	}
	return b.String()
}

// order gives a character its sort weight for the non-digit-run
// comparison: '~' sorts before everything, even the end of the string;
// the end of the string (or a digit, which ends a non-digit run) comes
// next; then letters, in ASCII order; then every other character, in
// ASCII order. Ported from vercmp.c's order().
func order(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return 0
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return int(c)
	case c == '~':
		return -1
	case c != 0:
		return int(c) + 256
	default:
		return 0
	}
}

// verrevcmp compares two upstream-version or debian-revision strings using
// dpkg's alternating non-digit-run/digit-run algorithm.
func verrevcmp(val, ref string) int {
	vi, ri := 0, 0
	for vi < len(val) || ri < len(ref) {
		// compare non-digit runs character by character using order()
		for (vi < len(val) && !isDigit(val[vi])) || (ri < len(ref) && !isDigit(ref[ri])) {
			var vc, rc int
			if vi < len(val) {
				vc = order(val[vi])
			} else {
				vc = order(0)
			}
			if ri < len(ref) {
				rc = order(ref[ri])
			} else {
				rc = order(0)
			}
			if vc != rc {
				return vc - rc
			}
			if vi < len(val) {
				vi++
			}
			if ri < len(ref) {
				ri++
			}
		}

		for vi < len(val) && val[vi] == '0' {
			vi++
		}
		for ri < len(ref) && ref[ri] == '0' {
			ri++
		}

		firstDiff := 0
		for vi < len(val) && isDigit(val[vi]) && ri < len(ref) && isDigit(ref[ri]) {
			if firstDiff == 0 {
				firstDiff = int(val[vi]) - int(ref[ri])
			}
			vi++
			ri++
		}
		if vi < len(val) && isDigit(val[vi]) {
			return 1
		}
		if ri < len(ref) && isDigit(ref[ri]) {
			return -1
		}
		if firstDiff != 0 {
			return firstDiff
		}
	}
	return 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater than
// o, using epoch first and then the substring ordering over Upstream and
// Revision in turn. Ported from versioncompare() in vercmp.c.
func (v Version) Compare(o Version) int {
	switch {
	case v.Epoch > o.Epoch:
		return 1
	case v.Epoch < o.Epoch:
		return -1
	}
	if r := sign(verrevcmp(v.Upstream, o.Upstream)); r != 0 {
		return r
	}
	return sign(verrevcmp(v.Revision, o.Revision))
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

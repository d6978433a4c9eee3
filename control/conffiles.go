package control

import (
	"fmt"
	"strings"

	"github.com/dpkg-go/dpkgcore/database"
)

// ParseConffiles parses the lines of a status-file Conffiles entry (or a
// package's info-db "conffiles" file): each non-blank line is
// "path hash [obsolete]". Tokenizing starts from the right -- the
// obsolete marker and the hash are each the last whitespace-delimited
// token remaining -- so that a path containing spaces is not mis-split.
// Ported from f_conffiles/conffvalue_lastword in lib/dpkg/fields.c.
func ParseConffiles(lines []string) ([]database.ConfFile, error) {
	var out []database.ConfFile
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		rest, last, ok := splitLastToken(line)
		if !ok {
			return nil, fmt.Errorf("conffiles: malformed line %q", line)
		}

		obsolete := false
		hash := last
		if last == "obsolete" {
			obsolete = true
			var ok2 bool
			rest, hash, ok2 = splitLastToken(rest)
			if !ok2 {
				return nil, fmt.Errorf("conffiles: malformed line %q", line)
			}
		}

		path, err := canonicalizeConffilePath(rest)
		if err != nil {
			return nil, fmt.Errorf("conffiles: %q: %w", line, err)
		}

		out = append(out, database.ConfFile{Path: path, Hash: hash, Obsolete: obsolete})
	}
	return out, nil
}

// splitLastToken trims trailing whitespace from s and splits off its
// final whitespace-delimited token, returning the (possibly
// space-containing) remainder, the token, and whether a token was found
// at all.
func splitLastToken(s string) (rest, token string, ok bool) {
	s = strings.TrimRight(s, " \t")
	i := strings.LastIndexAny(s, " \t")
	if i < 0 {
		if s == "" {
			return "", "", false
		}
		return "", s, true
	}
	return s[:i], s[i+1:], true
}

// canonicalizeConffilePath strips any leading "/" and "./" segments and
// re-prefixes the result with a single "/", rejecting a path that
// canonicalizes to the root or empty directory. Ported from
// path_skip_slash_dotslash's use in f_conffiles.
func canonicalizeConffilePath(path string) (string, error) {
	p := strings.TrimSpace(path)
	for {
		switch {
		case strings.HasPrefix(p, "./"):
			p = p[2:]
		case strings.HasPrefix(p, "/"):
			p = p[1:]
		default:
			if p == "" {
				return "", fmt.Errorf("root or null directory is listed as a conffile")
			}
			return "/" + p, nil
		}
	}
}

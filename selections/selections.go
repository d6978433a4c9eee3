// Package selections implements the get-selections/set-selections text
// stream (spec component C11): one "NAME[:ARCH]\tSTATE" line per package,
// hash-prefixed comment lines ignored, tab/space runs accepted as the
// column separator. Ported from the parsedb/writedb loop in src/select.c.
//
// It also supports signing and verifying an exported selections stream,
// adapted from the teacher's deb/util.go:signBytes/extractPublicKey
// clearsign pipeline, so a selections export can carry the same
// provenance guarantee the teacher gives its InRelease files.
package selections

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/database"
)

func wantString(w database.Want) string {
	switch w {
	case database.WantInstall:
		return "install"
	case database.WantHold:
		return "hold"
	case database.WantDeinstall:
		return "deinstall"
	case database.WantPurge:
		return "purge"
	default:
		return "unknown"
	}
}

func parseWant(s string) (database.Want, error) {
	switch s {
	case "install":
		return database.WantInstall, nil
	case "hold":
		return database.WantHold, nil
	case "deinstall":
		return database.WantDeinstall, nil
	case "purge":
		return database.WantPurge, nil
	default:
		return database.WantUnknown, fmt.Errorf("selections: unknown selection state %q", s)
	}
}

// WriteSelections writes one "name[:arch]\tstate" line per package
// instance in db whose Want is not WantUnknown, in the database's
// (unspecified-order) set iteration, each set's architecture chain in
// head-then-insertion order. Ported from the per-package loop in
// cmd_getselections (src/select.c).
func WriteSelections(w io.Writer, db *database.Database) error {
	for set := range db.Sets() {
		for _, inst := range set.Instances() {
			if inst.Want == database.WantUnknown {
				continue
			}
			name := set.Name
			if inst.Installed.Arch != nil && inst.Installed.Arch.Kind() != arch.KindNone && inst.Installed.Arch.Kind() != arch.KindAll {
				name = name + ":" + inst.Installed.Arch.Name()
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\n", name, wantString(inst.Want)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadSelections reads a get-selections-format stream and applies each
// line's requested Want to the named package instance in db, creating a
// not-installed package set for any name never seen before -- the
// pkg_db_find_set side effect, not an error -- rather than rejecting
// unknown names.
func ReadSelections(r io.Reader, db *database.Database) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("selections: malformed line %q", line)
		}
		nameArch, state := fields[0], fields[1]
		want, err := parseWant(state)
		if err != nil {
			return err
		}
		name := nameArch
		var a *arch.Arch
		if i := strings.IndexByte(nameArch, ':'); i >= 0 {
			name, a = nameArch[:i], db.Architectures().Find(nameArch[i+1:])
		}
		inst := db.FindPkg(name, a)
		inst.Want = want
	}
	return scanner.Err()
}

// SignExport clearsigns a get-selections export with armoredPrivateKey,
// returning the ASCII-armored clearsigned message. Adapted verbatim from
// deb/util.go:signBytes.
func SignExport(stream []byte, armoredPrivateKey string) ([]byte, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredPrivateKey))
	if err != nil {
		return nil, err
	}
	var signer *openpgp.Entity
	for _, e := range entities {
		if e.PrivateKey != nil {
			signer = e
			break
		}
	}
	if signer == nil {
		return nil, fmt.Errorf("selections: no private key found in supplied key material")
	}

	var out bytes.Buffer
	w, err := clearsign.Encode(&out, signer.PrivateKey, nil)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(stream); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// VerifyExport checks signed against armoredPublicKey and, on success,
// returns the cleartext selections stream it wraps.
func VerifyExport(signed []byte, armoredPublicKey string) ([]byte, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredPublicKey))
	if err != nil {
		return nil, err
	}
	block, _ := clearsign.Decode(signed)
	if block == nil {
		return nil, fmt.Errorf("selections: not a clearsigned message")
	}
	if _, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil); err != nil {
		return nil, fmt.Errorf("selections: signature verification failed: %w", err)
	}
	return block.Plaintext, nil
}

// ExtractPublicKey returns the ASCII-armored public key material for
// armoredPrivateKey, for publishing alongside a signed export. Adapted
// from deb/util.go:extractPublicKey (armored=true case only; this package
// has no use for the binary-serialized form).
func ExtractPublicKey(armoredPrivateKey string) ([]byte, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredPrivateKey))
	if err != nil {
		return nil, err
	}
	var signer *openpgp.Entity
	for _, e := range entities {
		if e.PrivateKey != nil {
			signer = e
			break
		}
	}
	if signer == nil {
		return nil, fmt.Errorf("selections: no private key found in supplied key material")
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := signer.Serialize(w); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package selections

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"

	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/database"
)

// generateTestKey mirrors the teacher's deb/util_test.go helper of the
// same name.
func generateTestKey(t *testing.T) string {
	t.Helper()
	entity, err := openpgp.NewEntity("Test", "test", "test@example.com", nil)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		t.Fatalf("armor encode failed: %v", err)
	}
	if err := entity.SerializePrivate(w, nil); err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	w.Close()
	return buf.String()
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	reg := arch.NewRegistry("amd64")
	return database.NewDatabase(reg)
}

func TestWriteSelectionsSkipsUnknownWant(t *testing.T) {
	db := newTestDB(t)
	foo := db.FindPkg("foo", nil)
	foo.Want = database.WantInstall
	db.FindPkg("bar", nil) // left at WantUnknown, must not appear

	var buf bytes.Buffer
	if err := WriteSelections(&buf, db); err != nil {
		t.Fatalf("WriteSelections: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "foo\tinstall\n") {
		t.Errorf("expected foo install line, got %q", out)
	}
	if strings.Contains(out, "bar") {
		t.Errorf("unexpected bar line in %q", out)
	}
}

func TestReadSelectionsAppliesStates(t *testing.T) {
	db := newTestDB(t)
	input := "# a comment\nfoo\tinstall\nbar     hold\nbaz:amd64\tpurge\n"
	if err := ReadSelections(strings.NewReader(input), db); err != nil {
		t.Fatalf("ReadSelections: %v", err)
	}
	if db.FindPkg("foo", nil).Want != database.WantInstall {
		t.Errorf("foo: want install")
	}
	if db.FindPkg("bar", nil).Want != database.WantHold {
		t.Errorf("bar: want hold")
	}
	if db.FindSet("baz") == nil {
		t.Fatalf("expected baz set to be created")
	}
	amd64 := db.Architectures().Find("amd64")
	if db.FindPkg("baz", amd64).Want != database.WantPurge {
		t.Errorf("baz:amd64: want purge")
	}
}

func TestReadSelectionsRejectsUnknownState(t *testing.T) {
	db := newTestDB(t)
	if err := ReadSelections(strings.NewReader("foo\tbogus\n"), db); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestReadSelectionsRejectsMalformedLine(t *testing.T) {
	db := newTestDB(t)
	if err := ReadSelections(strings.NewReader("foo\n"), db); err == nil {
		t.Fatalf("expected error for missing state column")
	}
}

func TestSignAndVerifyExport(t *testing.T) {
	key := generateTestKey(t)
	stream := []byte("foo\tinstall\nbar\thold\n")

	signed, err := SignExport(stream, key)
	if err != nil {
		t.Fatalf("SignExport: %v", err)
	}
	if !strings.Contains(string(signed), "-----BEGIN PGP SIGNED MESSAGE-----") {
		t.Errorf("output does not look like a clearsigned message")
	}

	pub, err := ExtractPublicKey(key)
	if err != nil {
		t.Fatalf("ExtractPublicKey: %v", err)
	}

	plain, err := VerifyExport(signed, string(pub))
	if err != nil {
		t.Fatalf("VerifyExport: %v", err)
	}
	if string(plain) != string(stream) {
		t.Errorf("got %q, want %q", plain, stream)
	}
}

func TestVerifyExportRejectsTampering(t *testing.T) {
	key := generateTestKey(t)
	signed, err := SignExport([]byte("foo\tinstall\n"), key)
	if err != nil {
		t.Fatalf("SignExport: %v", err)
	}
	tampered := bytes.Replace(signed, []byte("install"), []byte("purge!!!"), 1)
	pub, err := ExtractPublicKey(key)
	if err != nil {
		t.Fatalf("ExtractPublicKey: %v", err)
	}
	if _, err := VerifyExport(tampered, string(pub)); err == nil {
		t.Fatalf("expected tampered export to fail verification")
	}
}

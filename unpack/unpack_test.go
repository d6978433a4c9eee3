package unpack

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/database"
	"github.com/dpkg-go/dpkgcore/depgraph"
	"github.com/dpkg-go/dpkgcore/files"
	"github.com/dpkg-go/dpkgcore/forceflags"
	"github.com/dpkg-go/dpkgcore/version"
)

func newTestEngine(t *testing.T) (*Engine, *database.Database) {
	t.Helper()
	reg := arch.NewRegistry("amd64")
	db := database.NewDatabase(reg)
	fs := files.NewNamespace()
	dir := t.TempDir()
	return NewEngine(dir, db, fs, forceflags.Empty(), nil), db
}

func TestProcessEntryNewFileIsDeferred(t *testing.T) {
	eng, db := newTestEngine(t)
	pkg := db.FindPkg("foo", nil)

	e := &Entry{Name: "/usr/bin/foo", Type: EntryFile, Mode: 0755, Data: strings.NewReader("binary")}
	dec, err := eng.ProcessEntry(pkg, e)
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if dec != DecisionDeferred {
		t.Fatalf("expected DecisionDeferred, got %v", dec)
	}
	if _, err := os.Lstat(filepath.Join(eng.InstDir, "usr/bin/foo.dpkg-new")); err != nil {
		t.Errorf("expected staged .dpkg-new file: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(eng.InstDir, "usr/bin/foo")); err == nil {
		t.Errorf("expected no file at final path before Commit")
	}

	if err := eng.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(eng.InstDir, "usr/bin/foo"))
	if err != nil {
		t.Fatalf("reading committed file: %v", err)
	}
	if string(data) != "binary" {
		t.Errorf("got %q, want %q", data, "binary")
	}
}

func TestProcessEntryConffileIsNotCommitted(t *testing.T) {
	eng, db := newTestEngine(t)
	pkg := db.FindPkg("foo", nil)

	e := &Entry{Name: "/etc/foo.conf", Type: EntryFile, Mode: 0644, Conffile: true, Data: strings.NewReader("conf")}
	dec, err := eng.ProcessEntry(pkg, e)
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if dec != DecisionDeferredConffile {
		t.Fatalf("expected DecisionDeferredConffile, got %v", dec)
	}
	if err := eng.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(eng.InstDir, "etc/foo.conf")); err == nil {
		t.Errorf("expected conffile to remain staged in .dpkg-new, not committed")
	}
}

func TestProcessEntryDirectoryInstallsImmediately(t *testing.T) {
	eng, db := newTestEngine(t)
	pkg := db.FindPkg("foo", nil)

	e := &Entry{Name: "/usr/share/doc/foo", Type: EntryDir, Mode: 0755}
	dec, err := eng.ProcessEntry(pkg, e)
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if dec != DecisionInstalled {
		t.Fatalf("expected DecisionInstalled, got %v", dec)
	}
	info, err := os.Lstat(filepath.Join(eng.InstDir, "usr/share/doc/foo"))
	if err != nil || !info.IsDir() {
		t.Errorf("expected directory installed immediately: %v", err)
	}
}

func TestProcessEntryExistingDirSkipped(t *testing.T) {
	eng, db := newTestEngine(t)
	pkg := db.FindPkg("foo", nil)

	if err := os.MkdirAll(filepath.Join(eng.InstDir, "usr/share/doc/foo"), 0755); err != nil {
		t.Fatal(err)
	}

	e := &Entry{Name: "/usr/share/doc/foo", Type: EntryDir, Mode: 0755}
	dec, err := eng.ProcessEntry(pkg, e)
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if dec != DecisionExistingDir {
		t.Fatalf("expected DecisionExistingDir, got %v", dec)
	}
}

func TestProcessEntryConflictWithoutForceFails(t *testing.T) {
	eng, db := newTestEngine(t)
	foo := db.FindPkg("foo", nil)
	bar := db.FindPkg("bar", nil)
	bar.Status = database.StatusInstalled

	node := eng.Files.Find("/usr/bin/shared")
	node.AddOwner(bar)

	e := &Entry{Name: "/usr/bin/shared", Type: EntryFile, Mode: 0755, Data: strings.NewReader("x")}
	_, err := eng.ProcessEntry(foo, e)
	if err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestProcessEntryReplacesAllowsOverwrite(t *testing.T) {
	eng, db := newTestEngine(t)
	foo := db.FindPkg("foo", nil)
	bar := db.FindPkg("bar", nil)
	bar.Status = database.StatusInstalled

	replaces := depgraph.NewDependency(depgraph.KindReplaces, &depgraph.Possibility{TargetName: "bar"})
	foo.Available.Depends = append(foo.Available.Depends, replaces)

	node := eng.Files.Find("/usr/bin/shared")
	node.AddOwner(bar)

	e := &Entry{Name: "/usr/bin/shared", Type: EntryFile, Mode: 0755, Data: strings.NewReader("x")}
	dec, err := eng.ProcessEntry(foo, e)
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if dec != DecisionDeferred {
		t.Fatalf("expected DecisionDeferred, got %v", dec)
	}
}

// setupSharedMultiArchSame builds a registry/database/engine with an
// amd64 instance of "libfoo" already installed and owning
// /usr/share/doc/libfoo/copyright, plus a not-yet-installed i386 instance
// of the same set, both Multi-Arch: same and at the same version -- the
// scenario 5 setup.
func setupSharedMultiArchSame(t *testing.T, existingContent string) (*Engine, *database.PackageInstance, string) {
	t.Helper()
	reg := arch.NewRegistry("amd64")
	db := database.NewDatabase(reg)
	fs := files.NewNamespace()
	dir := t.TempDir()
	eng := NewEngine(dir, db, fs, forceflags.Empty(), nil)

	ver, err := version.Parse("1.0-1")
	if err != nil {
		t.Fatalf("version.Parse: %v", err)
	}

	amd64 := db.FindPkg("libfoo", reg.Native())
	amd64.Status = database.StatusInstalled
	amd64.Installed.MultiArch = database.MultiArchSame
	amd64.Installed.Version = ver

	const relPath = "/usr/share/doc/libfoo/copyright"
	node := fs.Find(relPath)
	node.AddOwner(amd64)

	hostPath := filepath.Join(dir, "usr/share/doc/libfoo/copyright")
	if err := os.MkdirAll(filepath.Dir(hostPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(hostPath, []byte(existingContent), 0644); err != nil {
		t.Fatal(err)
	}

	i386 := db.FindPkg("libfoo", reg.Find("i386"))
	i386.Available.MultiArch = database.MultiArchSame
	i386.Available.Version = ver

	return eng, i386, relPath
}

func TestProcessEntrySharedMultiArchSameInSyncIdenticalContentSucceeds(t *testing.T) {
	eng, i386, relPath := setupSharedMultiArchSame(t, "copyright text")

	e := &Entry{Name: relPath, Type: EntryFile, Mode: 0644, Data: strings.NewReader("copyright text")}
	dec, err := eng.ProcessEntry(i386, e)
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if dec != DecisionDeferred {
		t.Fatalf("expected DecisionDeferred, got %v", dec)
	}
}

func TestProcessEntrySharedMultiArchSameInSyncDifferentContentFails(t *testing.T) {
	eng, i386, relPath := setupSharedMultiArchSame(t, "copyright text")

	e := &Entry{Name: relPath, Type: EntryFile, Mode: 0644, Data: strings.NewReader("different text")}
	if _, err := eng.ProcessEntry(i386, e); err == nil {
		t.Fatalf("expected in-sync-violation error for differing shared content")
	}
}

func TestCheckConflictBreaksQueuesDeconfigure(t *testing.T) {
	eng, db := newTestEngine(t)
	eng.AutoDeconfigure = true
	pkg := db.FindPkg("new", nil)
	dependent := db.FindPkg("old", nil)
	dependent.Status = database.StatusInstalled

	breaks := depgraph.NewDependency(depgraph.KindBreaks, &depgraph.Possibility{TargetName: "old"})
	if err := eng.CheckConflict(pkg, breaks); err != nil {
		t.Fatalf("CheckConflict: %v", err)
	}
	if len(eng.Deconfigure) != 1 || eng.Deconfigure[0].Package != dependent {
		t.Errorf("expected old queued for deconfiguration, got %+v", eng.Deconfigure)
	}
}

func TestCheckConflictConflictsFailsWithoutForce(t *testing.T) {
	eng, db := newTestEngine(t)
	pkg := db.FindPkg("new", nil)
	other := db.FindPkg("old", nil)
	other.Status = database.StatusInstalled

	conflicts := depgraph.NewDependency(depgraph.KindConflicts, &depgraph.Possibility{TargetName: "old"})
	if err := eng.CheckConflict(pkg, conflicts); err == nil {
		t.Errorf("expected conflict to fail without force-conflicts")
	}
}

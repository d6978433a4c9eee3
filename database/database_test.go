package database

import (
	"strings"
	"testing"

	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/depgraph"
)

func newTestDB() (*Database, *arch.Registry) {
	reg := arch.NewRegistry("amd64")
	return NewDatabase(reg), reg
}

func TestFindSetCreatesAndReuses(t *testing.T) {
	db, _ := newTestDB()

	s1 := db.FindSet("Foo")
	s2 := db.FindSet("foo")
	if s1 != s2 {
		t.Fatalf("expected case-insensitive reuse of the same set")
	}
	if s1.Name != "foo" {
		t.Errorf("expected stored name to be lowercased, got %q", s1.Name)
	}
	if db.CountSets() != 1 {
		t.Errorf("expected 1 set, got %d", db.CountSets())
	}
}

func TestFindPkgNativeUsesHead(t *testing.T) {
	db, reg := newTestDB()

	p1 := db.FindPkg("foo", reg.Native())
	p2 := db.FindPkg("foo", nil)
	if p1 != p2 {
		t.Errorf("expected native arch and nil arch to both resolve to Head")
	}
	if p1 != p1.Set.Head() {
		t.Errorf("expected native instance to be the set's head")
	}
}

func TestFindPkgForeignArchCreatesInstance(t *testing.T) {
	db, reg := newTestDB()

	native := db.FindPkg("foo", reg.Native())
	armhf := db.FindPkg("foo", reg.Find("armhf"))
	if native == armhf {
		t.Fatalf("expected a distinct instance for a foreign architecture")
	}
	if armhf.Set != native.Set {
		t.Errorf("expected both instances to share one PackageSet")
	}

	again := db.FindPkg("foo", reg.Find("armhf"))
	if again != armhf {
		t.Errorf("expected repeated FindPkg for the same arch to return the identical instance")
	}
}

func TestFindPkgClaimsUndifferentiatedInstance(t *testing.T) {
	db, reg := newTestDB()

	// Simulate an arch-chain instance created without a claimed
	// architecture (as parsing an available-file entry ahead of its
	// Architecture field might), then verify FindPkg claims it instead
	// of allocating a new one.
	native := db.FindSet("foo").head
	native.ArchNext = &PackageInstance{Set: native.Set}

	p := db.FindPkg("foo", reg.Find("armhf"))
	if p != native.ArchNext {
		t.Errorf("expected FindPkg to claim the existing undifferentiated instance")
	}
	if p.Installed.Arch.Name() != "armhf" {
		t.Errorf("expected claimed instance to carry the requested arch")
	}
}

func TestInstances(t *testing.T) {
	db, reg := newTestDB()
	db.FindPkg("foo", reg.Native())
	db.FindPkg("foo", reg.Find("armhf"))
	db.FindPkg("bar", reg.Native())

	n := 0
	for range db.Instances() {
		n++
	}
	if n != 3 {
		t.Errorf("expected 3 instances total, got %d", n)
	}
}

func TestReset(t *testing.T) {
	db, reg := newTestDB()
	db.FindPkg("foo", reg.Native())
	db.Reset()

	if db.CountSets() != 0 || db.CountPkgs() != 0 {
		t.Errorf("expected Reset to clear counts")
	}
	n := 0
	for range db.Sets() {
		n++
	}
	if n != 0 {
		t.Errorf("expected Reset to clear the table")
	}
}

func TestReport(t *testing.T) {
	db, reg := newTestDB()
	db.FindPkg("foo", reg.Native())
	db.FindPkg("bar", reg.Native())

	var b strings.Builder
	if err := db.Report(&b); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !strings.Contains(b.String(), "bin ") {
		t.Errorf("expected bin occupancy lines in report, got: %s", b.String())
	}
}

func TestInstallDependencyReverseThread(t *testing.T) {
	db, _ := newTestDB()

	alt := &depgraph.Possibility{TargetName: "libfoo"}
	dep := depgraph.NewDependency(depgraph.KindDepends, alt)

	db.InstallDependency(dep, true)

	set := db.FindSet("libfoo")
	if set.DependedInstalled != alt {
		t.Errorf("expected the possibility to be threaded onto the target set")
	}
	if alt.RevNext != nil || alt.RevPrev != nil {
		t.Errorf("expected a lone entry to have nil neighbors")
	}

	alt2 := &depgraph.Possibility{TargetName: "libfoo"}
	dep2 := depgraph.NewDependency(depgraph.KindDepends, alt2)
	db.InstallDependency(dep2, true)

	if set.DependedInstalled != alt2 {
		t.Errorf("expected most recently installed dependency at the head")
	}
	if alt2.RevNext != alt {
		t.Errorf("expected alt2 to chain to alt")
	}
	if alt.RevPrev != alt2 {
		t.Errorf("expected alt's RevPrev to be alt2")
	}
}

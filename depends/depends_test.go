package depends

import (
	"testing"

	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/database"
	"github.com/dpkg-go/dpkgcore/depgraph"
	"github.com/dpkg-go/dpkgcore/version"
)

func v(t *testing.T, s string) version.Version {
	t.Helper()
	p, err := version.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return p
}

func TestVersionSatisfied(t *testing.T) {
	have := v(t, "1.2")
	cases := []struct {
		want string
		rel  depgraph.VerRel
		ok   bool
	}{
		{"1.0", depgraph.VerRelLaterEqual, true},
		{"1.2", depgraph.VerRelLaterEqual, true},
		{"1.3", depgraph.VerRelLaterEqual, false},
		{"1.2", depgraph.VerRelExact, true},
		{"1.3", depgraph.VerRelEarlierStrict, true},
		{"1.2", depgraph.VerRelEarlierStrict, false},
		{"0.0", depgraph.VerRelNone, true},
	}
	for _, c := range cases {
		got := VersionSatisfied(have, v(t, c.want), c.rel)
		if got != c.ok {
			t.Errorf("VersionSatisfied(1.2, %v %s) = %v, want %v", c.rel, c.want, got, c.ok)
		}
	}
}

func TestArchSatisfiedSameArch(t *testing.T) {
	reg := arch.NewRegistry("amd64")
	native := reg.Native()
	if !ArchSatisfied(native, database.MultiArchNo, native, depgraph.KindDepends, native) {
		t.Errorf("expected same-architecture dependency to be satisfied")
	}
}

func TestArchSatisfiedForeignPackage(t *testing.T) {
	reg := arch.NewRegistry("amd64")
	native := reg.Native()
	if !ArchSatisfied(reg.Find("armhf"), database.MultiArchForeign, native, depgraph.KindDepends, native) {
		t.Errorf("expected Multi-Arch: foreign to satisfy any unqualified dependency")
	}
}

func TestArchSatisfiedWildcardRequiresAllowed(t *testing.T) {
	reg := arch.NewRegistry("amd64")
	native := reg.Native()
	any_ := reg.Find("any")

	if ArchSatisfied(reg.Find("armhf"), database.MultiArchNo, any_, depgraph.KindDepends, native) {
		t.Errorf("expected pkg:any depends to require Multi-Arch: allowed on a foreign-arch candidate")
	}
	if !ArchSatisfied(reg.Find("armhf"), database.MultiArchAllowed, any_, depgraph.KindDepends, native) {
		t.Errorf("expected Multi-Arch: allowed to satisfy a pkg:any depends")
	}
}

func TestArchSatisfiedWildcardConflicts(t *testing.T) {
	reg := arch.NewRegistry("amd64")
	native := reg.Native()
	any_ := reg.Find("any")

	if !ArchSatisfied(reg.Find("armhf"), database.MultiArchNo, any_, depgraph.KindConflicts, native) {
		t.Errorf("expected Conflicts against pkg:any to match any architecture")
	}
}

func TestArchSatisfiedAllTreatedAsNative(t *testing.T) {
	reg := arch.NewRegistry("amd64")
	native := reg.Native()
	allArch := reg.Find("all")

	if !ArchSatisfied(allArch, database.MultiArchNo, native, depgraph.KindDepends, native) {
		t.Errorf("expected an 'all' package to satisfy a native-arch dependency")
	}
}

func TestDepIsOKDirectSatisfaction(t *testing.T) {
	reg := arch.NewRegistry("amd64")
	db := database.NewDatabase(reg)

	libfoo := db.FindPkg("libfoo", reg.Native())
	libfoo.Status = database.StatusInstalled
	libfoo.Installed.Version = v(t, "2.0")
	libfoo.Installed.Arch = reg.Native()

	alt := &depgraph.Possibility{TargetName: "libfoo", VerRel: depgraph.VerRelLaterEqual, Version: v(t, "1.0"), Arch: reg.Native()}
	dep := depgraph.NewDependency(depgraph.KindDepends, alt)

	exp := DepIsOK(dep, db)
	if !exp.Satisfied {
		t.Errorf("expected dependency on libfoo >= 1.0 to be satisfied by installed 2.0")
	}
}

func TestDepIsOKUnsatisfiedExplains(t *testing.T) {
	reg := arch.NewRegistry("amd64")
	db := database.NewDatabase(reg)

	alt := &depgraph.Possibility{TargetName: "libfoo", Arch: reg.Native()}
	dep := depgraph.NewDependency(depgraph.KindDepends, alt)

	exp := DepIsOK(dep, db)
	if exp.Satisfied {
		t.Errorf("expected dependency on a never-seen package to be unsatisfied")
	}
	if exp.Why == "" {
		t.Errorf("expected a non-empty explanation")
	}
}

func TestDepIsOKViaProvides(t *testing.T) {
	reg := arch.NewRegistry("amd64")
	db := database.NewDatabase(reg)

	provider := db.FindPkg("libfoo-impl", reg.Native())
	provider.Status = database.StatusInstalled
	provider.Installed.Arch = reg.Native()

	providesAlt := &depgraph.Possibility{TargetName: "libfoo"}
	providesDep := depgraph.NewDependency(depgraph.KindProvides, providesAlt)
	providesDep.Owner = provider
	db.InstallDependency(providesDep, true)

	alt := &depgraph.Possibility{TargetName: "libfoo", Arch: reg.Native()}
	dep := depgraph.NewDependency(depgraph.KindDepends, alt)

	exp := DepIsOK(dep, db)
	if !exp.Satisfied {
		t.Errorf("expected dependency to be satisfied via Provides")
	}
}

package arch

import "testing"

func TestNewRegistryBuiltins(t *testing.T) {
	r := NewRegistry("amd64")

	if got := r.Native().Name(); got != "amd64" {
		t.Errorf("expected native amd64, got %s", got)
	}
	if r.Native().Kind() != KindNative {
		t.Errorf("expected KindNative, got %v", r.Native().Kind())
	}
	if r.Find("all").Kind() != KindAll {
		t.Errorf("expected all to be KindAll")
	}
	if r.Find("any").Kind() != KindWildcard {
		t.Errorf("expected any to be KindWildcard")
	}
	if r.Find("").Kind() != KindNone {
		t.Errorf("expected empty name to be KindNone")
	}
}

func TestFindIsStable(t *testing.T) {
	r := NewRegistry("amd64")

	a1 := r.Find("armhf")
	a2 := r.Find("armhf")
	if a1 != a2 {
		t.Errorf("expected repeated Find to return the identical *Arch")
	}
	if a1.Kind() != KindUnknown {
		t.Errorf("expected armhf to be KindUnknown, got %v", a1.Kind())
	}
}

func TestFindIllegal(t *testing.T) {
	r := NewRegistry("amd64")

	a := r.Find("_bad")
	if a.Kind() != KindIllegal {
		t.Errorf("expected _bad to be KindIllegal, got %v", a.Kind())
	}
}

func TestAllOrder(t *testing.T) {
	r := NewRegistry("amd64")
	r.Find("armhf")
	r.Find("i386")

	all := r.All()
	if len(all) != 5 {
		t.Fatalf("expected 5 architectures, got %d", len(all))
	}
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.Name()
	}
	want := []string{"amd64", "all", "any", "armhf", "i386"}
	for i, w := range want {
		if names[i] != w {
			t.Errorf("position %d: expected %s, got %s", i, w, names[i])
		}
	}
}

func TestReset(t *testing.T) {
	r := NewRegistry("amd64")
	r.Find("armhf")
	r.Reset()

	if len(r.All()) != 3 {
		t.Errorf("expected reset to leave native/all/any only, got %d", len(r.All()))
	}
	// re-discovering armhf after reset must yield a fresh Arch
	a := r.Find("armhf")
	if a.Kind() != KindUnknown {
		t.Errorf("expected armhf rediscoverable after reset")
	}
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"amd64", true},
		{"x86-64", true},
		{"", false},
		{"-amd64", false},
		{"amd_64", false},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if (err == nil) != c.ok {
			t.Errorf("ValidateName(%q): expected ok=%v, got err=%v", c.name, c.ok, err)
		}
	}
}

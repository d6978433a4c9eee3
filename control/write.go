package control

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dpkg-go/dpkgcore/database"
	"github.com/dpkg-go/dpkgcore/depgraph"
)

// WriteParagraph writes pkg's Installed (or Available, if available is
// true) metadata as one control-file stanza, followed by a blank line.
func WriteParagraph(w io.Writer, pkg *database.PackageInstance, available bool) error {
	bin := pkg.Installed
	if available {
		bin = pkg.Available
	}

	field := func(name Field, value string) error {
		if value == "" {
			return nil
		}
		_, err := fmt.Fprintf(w, "%s: %s\n", name, value)
		return err
	}

	if err := field(FieldPackage, pkg.Set.Name); err != nil {
		return err
	}
	if !available {
		status := fmt.Sprintf("%s %s %s", wantString(pkg.Want), eflagString(pkg.EFlag), statusString(pkg.Status))
		if err := field(FieldStatus, status); err != nil {
			return err
		}
	}
	if err := field(FieldPriority, pkg.Priority); err != nil {
		return err
	}
	if err := field(FieldSection, pkg.Section); err != nil {
		return err
	}
	if bin.Arch != nil {
		if err := field(FieldArchitecture, bin.Arch.Name()); err != nil {
			return err
		}
	}
	switch bin.MultiArch {
	case database.MultiArchSame:
		field(FieldMultiArch, "same")
	case database.MultiArchForeign:
		field(FieldMultiArch, "foreign")
	case database.MultiArchAllowed:
		field(FieldMultiArch, "allowed")
	}
	if bin.Essential {
		if err := field(FieldEssential, "yes"); err != nil {
			return err
		}
	}
	if err := field(FieldMaintainer, bin.Maintainer); err != nil {
		return err
	}
	if bin.Version.IsInformative() {
		if err := field(FieldVersion, bin.Version.String()); err != nil {
			return err
		}
	}

	byKind := map[depgraph.Kind][]string{}
	for _, d := range bin.Depends {
		byKind[d.Kind] = append(byKind[d.Kind], renderDependency(d))
	}
	for field2, kind := range dependencyFields {
		if vals := byKind[kind]; len(vals) > 0 {
			if err := field(field2, strings.Join(vals, ", ")); err != nil {
				return err
			}
		}
	}

	if err := field(FieldDescription, bin.Description); err != nil {
		return err
	}

	keys := make([]string, 0, len(bin.ArbFields))
	for k := range bin.ArbFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s: %s\n", k, bin.ArbFields[k]); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}

func renderDependency(d *depgraph.Dependency) string {
	parts := make([]string, len(d.Alts))
	for i, a := range d.Alts {
		s := a.TargetName
		if a.Arch != nil && a.Arch.Name() != "" && !a.ArchIsImplicit {
			s += ":" + a.Arch.Name()
		}
		if a.VerRel != depgraph.VerRelNone {
			s += fmt.Sprintf(" (%s %s)", relopString(a.VerRel), a.Version.String())
		}
		parts[i] = s
	}
	return strings.Join(parts, " | ")
}

func relopString(r depgraph.VerRel) string {
	switch r {
	case depgraph.VerRelEarlierEqual:
		return "<="
	case depgraph.VerRelLaterEqual:
		return ">="
	case depgraph.VerRelEarlierStrict:
		return "<<"
	case depgraph.VerRelLaterStrict:
		return ">>"
	case depgraph.VerRelExact:
		return "="
	default:
		return ""
	}
}

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

func eflagString(f database.EFlag) string {
	if f.Reinstreq() {
		return "reinstreq"
	}
	return "ok"
}

func statusString(s database.Status) string {
	switch s {
	case database.StatusNotInstalled:
		return "not-installed"
	case database.StatusConfigFiles:
		return "config-files"
	case database.StatusHalfInstalled:
		return "half-installed"
	case database.StatusUnpacked:
		return "unpacked"
	case database.StatusHalfConfigured:
		return "half-configured"
	case database.StatusTriggersAwaited:
		return "triggers-awaited"
	case database.StatusTriggersPending:
		return "triggers-pending"
	case database.StatusInstalled:
		return "installed"
	default:
		return "not-installed"
	}
}

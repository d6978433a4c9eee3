// Package control implements the RFC822-like Debian control-file parser:
// splitting a stream into paragraphs, folding continuation lines, and
// dispatching known field names into a database.PackageInstance's
// Installed or Available metadata. Field dispatch is adapted from the
// teacher's deb.parseControlFile (a hardcoded switch); the dependency
// clause grammar is ported from f_dependency in lib/dpkg/fields.c.
package control

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dpkg-go/dpkgcore/arch"
	"github.com/dpkg-go/dpkgcore/database"
	"github.com/dpkg-go/dpkgcore/depgraph"
)

// Field is a known control-file field name.
type Field string

const (
	FieldPackage       Field = "Package"
	FieldVersion       Field = "Version"
	FieldArchitecture  Field = "Architecture"
	FieldMultiArch     Field = "Multi-Arch"
	FieldMaintainer    Field = "Maintainer"
	FieldDescription   Field = "Description"
	FieldSection       Field = "Section"
	FieldPriority      Field = "Priority"
	FieldEssential     Field = "Essential"
	FieldInstalledSize Field = "Installed-Size"
	FieldMD5sum        Field = "MD5sum"
	FieldConffiles     Field = "Conffiles"
	FieldStatus        Field = "Status"
	FieldConfigVersion Field = "Config-Version"

	FieldDepends     Field = "Depends"
	FieldPreDepends  Field = "Pre-Depends"
	FieldRecommends  Field = "Recommends"
	FieldSuggests    Field = "Suggests"
	FieldEnhances    Field = "Enhances"
	FieldProvides    Field = "Provides"
	FieldConflicts   Field = "Conflicts"
	FieldBreaks      Field = "Breaks"
	FieldReplaces    Field = "Replaces"
)

var dependencyFields = map[Field]depgraph.Kind{
	FieldDepends:    depgraph.KindDepends,
	FieldPreDepends: depgraph.KindPreDepends,
	FieldRecommends: depgraph.KindRecommends,
	FieldSuggests:   depgraph.KindSuggests,
	FieldProvides:   depgraph.KindProvides,
	FieldConflicts:  depgraph.KindConflicts,
	FieldBreaks:     depgraph.KindBreaks,
	FieldReplaces:   depgraph.KindReplaces,
	FieldEnhances:   depgraph.KindEnhances,
}

// Mode selects which set of fields a parse pass accepts, mirroring
// dpkg's parsedbflags.
type Mode uint32

const (
	// Available parses into the instance's Available BinMeta; the
	// default (zero value) parses into Installed and additionally
	// accepts the Status/Config-Version fields.
	Available Mode = 1 << iota
)

// Paragraph is one RFC822-like stanza: field name to its (continuation-
// joined) raw value.
type Paragraph map[string]string

// ParseStream splits r into paragraphs separated by blank lines, folding
// continuation lines (lines starting with a space or tab) into the
// previous field's value exactly as the teacher's parseControlFile does.
func ParseStream(r io.Reader) ([]Paragraph, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var paras []Paragraph
	cur := Paragraph{}
	var key string
	var val strings.Builder

	flush := func() {
		if key != "" {
			cur[key] = strings.TrimSpace(val.String())
			key = ""
			val.Reset()
		}
	}
	endPara := func() {
		flush()
		if len(cur) > 0 {
			paras = append(paras, cur)
			cur = Paragraph{}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.TrimSpace(line) == "":
			endPara()
		case line[0] == ' ' || line[0] == '\t':
			val.WriteString("\n")
			val.WriteString(line)
		case strings.Contains(line, ":"):
			flush()
			k, v, _ := strings.Cut(line, ":")
			key = strings.TrimSpace(k)
			val.Reset()
			val.WriteString(strings.TrimSpace(v))
		default:
			return nil, fmt.Errorf("control: malformed line %q", line)
		}
	}
	endPara()
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return paras, nil
}

// ParseInto parses every paragraph of r into db, dispatching each to the
// BinMeta (Installed by default, Available when mode has the Available
// bit) of the instance named by its Package/Architecture fields.
func ParseInto(db *database.Database, r io.Reader, mode Mode) error {
	paras, err := ParseStream(r)
	if err != nil {
		return err
	}
	for _, p := range paras {
		if err := applyParagraph(db, p, mode); err != nil {
			return err
		}
	}
	return nil
}

func applyParagraph(db *database.Database, p Paragraph, mode Mode) error {
	name := p[string(FieldPackage)]
	if name == "" {
		return fmt.Errorf("control: paragraph missing Package field")
	}

	archReg := db.Architectures()
	var a *arch.Arch
	if an := p[string(FieldArchitecture)]; an != "" {
		a = archReg.Find(an)
	}
	inst := db.FindPkg(name, a)

	bin := &inst.Installed
	if mode&Available != 0 {
		bin = &inst.Available
	}

	bin.Arch = archReg.Find(p[string(FieldArchitecture)])
	bin.Maintainer = p[string(FieldMaintainer)]
	bin.Description = p[string(FieldDescription)]
	bin.MD5 = p[string(FieldMD5sum)]

	if v := p[string(FieldVersion)]; v != "" {
		ver, err := parseVersionField(v)
		if err != nil {
			return fmt.Errorf("control: package %s: %w", name, err)
		}
		bin.Version = ver
	}

	if ma := p[string(FieldMultiArch)]; ma != "" {
		switch ma {
		case "same":
			bin.MultiArch = database.MultiArchSame
		case "foreign":
			bin.MultiArch = database.MultiArchForeign
		case "allowed":
			bin.MultiArch = database.MultiArchAllowed
		default:
			bin.MultiArch = database.MultiArchNo
		}
	}

	bin.Essential = p[string(FieldEssential)] == "yes"

	if sz := p[string(FieldInstalledSize)]; sz != "" {
		if n, err := strconv.ParseInt(sz, 10, 64); err == nil {
			bin.Size = n
		}
	}

	if cf := p[string(FieldConffiles)]; cf != "" {
		confs, err := ParseConffiles(strings.Split(cf, "\n"))
		if err != nil {
			return fmt.Errorf("control: package %s: %w", name, err)
		}
		bin.ConfFiles = confs
	}

	for field, kind := range dependencyFields {
		raw := p[string(field)]
		if raw == "" {
			continue
		}
		deps, err := ParseDependencyField(raw, kind, db)
		if err != nil {
			return fmt.Errorf("control: package %s, field %s: %w", name, field, err)
		}
		for _, d := range deps {
			d.Owner = inst
			bin.Depends = append(bin.Depends, d)
			db.InstallDependency(d, mode&Available == 0)
		}
	}

	if mode&Available == 0 {
		if st := p[string(FieldStatus)]; st != "" {
			applyStatus(inst, st)
		}
		if cv := p[string(FieldConfigVersion)]; cv != "" {
			if ver, err := parseVersionField(cv); err == nil {
				inst.ConfigVersion = ver
			}
		}
		inst.Priority = p[string(FieldPriority)]
		inst.Section = p[string(FieldSection)]
	}

	bin.ArbFields = extraFields(p)
	return nil
}

var knownFields = func() map[string]bool {
	m := map[string]bool{
		string(FieldPackage): true, string(FieldVersion): true, string(FieldArchitecture): true,
		string(FieldMultiArch): true, string(FieldMaintainer): true, string(FieldDescription): true,
		string(FieldSection): true, string(FieldPriority): true, string(FieldEssential): true,
		string(FieldInstalledSize): true, string(FieldMD5sum): true, string(FieldConffiles): true,
		string(FieldStatus): true, string(FieldConfigVersion): true,
	}
	for f := range dependencyFields {
		m[string(f)] = true
	}
	return m
}()

func extraFields(p Paragraph) map[string]string {
	out := map[string]string{}
	for k, v := range p {
		if !knownFields[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func applyStatus(inst *database.PackageInstance, raw string) {
	parts := strings.Fields(raw)
	if len(parts) != 3 {
		return
	}
	switch parts[0] {
	case "install":
		inst.Want = database.WantInstall
	case "hold":
		inst.Want = database.WantHold
	case "deinstall":
		inst.Want = database.WantDeinstall
	case "purge":
		inst.Want = database.WantPurge
	default:
		inst.Want = database.WantUnknown
	}

	switch parts[1] {
	case "reinstreq":
		inst.EFlag |= database.EFlagReinstreq
	case "ok":
		// no flags
	}

	switch parts[2] {
	case "not-installed":
		inst.Status = database.StatusNotInstalled
	case "config-files":
		inst.Status = database.StatusConfigFiles
	case "half-installed":
		inst.Status = database.StatusHalfInstalled
	case "unpacked":
		inst.Status = database.StatusUnpacked
	case "half-configured":
		inst.Status = database.StatusHalfConfigured
	case "triggers-awaited":
		inst.Status = database.StatusTriggersAwaited
	case "triggers-pending":
		inst.Status = database.StatusTriggersPending
	case "installed":
		inst.Status = database.StatusInstalled
	}
}

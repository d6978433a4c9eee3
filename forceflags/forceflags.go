// Package forceflags loads the force-flags policy that tells the unpack
// engine and dependency evaluator which otherwise-fatal conditions to
// downgrade to a warning, the Go equivalent of dpkg's --force-* command
// line options. The policy file is YAML, loaded the same one-shot way the
// teacher's main.go loads apt-repo-config.yaml.
package forceflags

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Name identifies one force-flag, mirroring dpkg's force_* option names.
type Name string

const (
	Overwrite         Name = "overwrite"
	OverwriteDir      Name = "overwrite-dir"
	OverwriteDiverted Name = "overwrite-diverted"
	Depends           Name = "depends"
	DependsVersion    Name = "depends-version"
	Conflicts         Name = "conflicts"
	Breaks            Name = "breaks"
	ConfNew           Name = "confnew"
	ConfOld           Name = "confold"
	ConfDef           Name = "confdef"
	RemoveReinstreq   Name = "remove-reinstreq"
	RemoveEssential   Name = "remove-essential"
	Architecture      Name = "architecture"
)

// document is the on-disk YAML shape: a flat map of flag name to enabled.
type document struct {
	Force map[string]bool `yaml:"force"`
}

// Set is a resolved force-flags policy.
type Set struct {
	enabled map[Name]bool
}

// Load reads a force-flags policy document from path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("forceflags: reading %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("forceflags: parsing %s: %w", path, err)
	}

	s := &Set{enabled: make(map[Name]bool, len(doc.Force))}
	for k, v := range doc.Force {
		s.enabled[Name(k)] = v
	}
	return s, nil
}

// Empty returns a Set with every flag disabled, the default policy when
// no force-flags file is configured.
func Empty() *Set {
	return &Set{enabled: map[Name]bool{}}
}

// Enabled reports whether name has been force-enabled.
func (s *Set) Enabled(name Name) bool {
	if s == nil {
		return false
	}
	return s.enabled[name]
}

// Set enables or disables name, for programmatic policy construction
// (tests, or a CLI's --force-<name> flags) without a YAML file.
func (s *Set) Set(name Name, enabled bool) {
	s.enabled[name] = enabled
}

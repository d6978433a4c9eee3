// Package dpkglog carries progress and diagnostic events out to a
// caller-supplied callback, the same Listener/event-struct separation the teacher uses to
// keep its library packages silent and push all user-facing output to the
// command layer. Adapted from manifest/events.go.
//
// The unpack engine emits EventFileReplaced and EventAutoDeconfigure; the
// other event types are defined here but no dpkgcore package emits them.
package dpkglog

import (
	"encoding/json"
	"fmt"
)

// Listener receives every Event an operation emits. A nil Listener is
// valid and simply discards events.
type Listener func(Event)

// Event is anything dpkglog can report; String renders it for a plain-text
// log, and the concrete type additionally round-trips through JSON for
// structured consumers.
type Event interface {
	String() string
}

func jsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T", v)
	}
	return string(b)
}

// EventFileReplaced is emitted when, during an unpack, one package's copy
// of a path gives way to another package's: OldOwner's copy is replaced
// and NewOwner's version is the one left on disk.
type EventFileReplaced struct {
	Path        string `json:"path"`
	OldOwner    string `json:"old_owner"`
	NewOwner    string `json:"new_owner"`
}

func (e EventFileReplaced) String() string {
	return fmt.Sprintf("Replacing %s (owned by %s) with version from %s: %s", e.Path, e.OldOwner, e.NewOwner, jsonString(e))
}

// EventConffileDeferred reports a modified conffile kept on disk rather
// than overwritten with the package's new version.
type EventConffileDeferred struct {
	Path string `json:"path"`
}

func (e EventConffileDeferred) String() string {
	return fmt.Sprintf("Configuration file %q: keeping locally modified version", e.Path)
}

// EventDependencyUnsatisfied reports a dependency clause that cannot be
// satisfied.
type EventDependencyUnsatisfied struct {
	Package string `json:"package"`
	Clause  string `json:"clause"`
	Why     string `json:"why"`
}

func (e EventDependencyUnsatisfied) String() string {
	return fmt.Sprintf("%s: dependency problem: %s (%s)", e.Package, e.Clause, e.Why)
}

// EventInfoDBUpgraded reports the completion of the info directory's
// one-shot multiarch format upgrade.
type EventInfoDBUpgraded struct {
	Format int `json:"format"`
}

func (e EventInfoDBUpgraded) String() string {
	return fmt.Sprintf("info database upgraded to format %d", e.Format)
}

// EventInfoDBUpgradeRolledBack reports a failed multiarch format upgrade
// unwound back to format 0.
type EventInfoDBUpgradeRolledBack struct {
	Reason string `json:"reason"`
}

func (e EventInfoDBUpgradeRolledBack) String() string {
	return fmt.Sprintf("info database upgrade rolled back: %s", e.Reason)
}

// EventPackageUnpacked reports that an archive's entries have all been
// processed and staged for commit.
type EventPackageUnpacked struct {
	Package string `json:"package"`
	Version string `json:"version"`
}

func (e EventPackageUnpacked) String() string {
	return fmt.Sprintf("Unpacking %s (%s) ...", e.Package, e.Version)
}

// EventAutoDeconfigure is emitted when installing or removing a package
// forces a dependent package to be deconfigured first.
type EventAutoDeconfigure struct {
	Package   string `json:"package"`
	Dependent string `json:"dependent"`
}

func (e EventAutoDeconfigure) String() string {
	return fmt.Sprintf("De-configuring %s, since it depends on %s and the latter is being removed", e.Dependent, e.Package)
}

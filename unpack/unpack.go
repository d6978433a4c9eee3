// Package unpack implements the archive-member extraction engine: for each
// entry of a package's data tarball, decide how it interacts with whatever
// already owns or occupies that path, stage the new content beside the old
// under ".dpkg-new"/".dpkg-tmp", and defer the final rename of plain files
// and symlinks until the whole archive has been processed without error.
// Ported from the tarobject/tar_deferred_extract/try_deconfigure_can family
// in src/archives.c.
package unpack

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dpkg-go/dpkgcore/database"
	"github.com/dpkg-go/dpkgcore/depgraph"
	"github.com/dpkg-go/dpkgcore/depends"
	"github.com/dpkg-go/dpkgcore/dpkglog"
	"github.com/dpkg-go/dpkgcore/files"
	"github.com/dpkg-go/dpkgcore/forceflags"
	"github.com/dpkg-go/dpkgcore/version"
)

const (
	newSuffix = ".dpkg-new"
	tmpSuffix = ".dpkg-tmp"
)

// EntryType is the tar-entry type of one archive member.
type EntryType int

const (
	EntryFile EntryType = iota
	EntryDir
	EntrySymlink
	EntryHardlink
	EntryCharDev
	EntryBlockDev
	EntryFifo
)

// Entry is one member of a package's data tarball, already stripped of the
// trailing '/' tar puts on directory names.
type Entry struct {
	Name     string // absolute target path, e.g. "/usr/bin/foo"
	Type     EntryType
	LinkName string // symlink target, or hardlink source member name
	Mode     os.FileMode
	UID, GID int
	Dev      uint64
	Size     int64
	Conffile bool
	Data     io.Reader // member content, for EntryFile
}

// Decision records what ProcessEntry did with one archive member.
type Decision int

const (
	// DecisionInstalled means the member was written straight into place.
	DecisionInstalled Decision = iota
	// DecisionDeferred means the member was staged in ".dpkg-new" and
	// awaits Commit to rename it into place.
	DecisionDeferred
	// DecisionDeferredConffile means the member is a conffile staged in
	// ".dpkg-new" for the configuration step to reconcile, not Commit.
	DecisionDeferredConffile
	// DecisionExistingDir means the member is a directory, or a symlink
	// to one, that already existed and needed no change.
	DecisionExistingDir
	// DecisionKeptExisting means another package's Replaces relation
	// covers this package, and the on-disk file was left untouched.
	DecisionKeptExisting
)

// Fault wraps an error encountered while unwinding a partially-applied
// entry, bundling the triggering error together with any failure that
// happened while trying to undo the partial work.
type Fault struct {
	Op       string
	Err      error
	TidyErr  error
}

func (f *Fault) Error() string {
	if f.TidyErr != nil {
		return fmt.Sprintf("%s: %v (cleanup also failed: %v)", f.Op, f.Err, f.TidyErr)
	}
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// cleanupFrame is one entry of the engine's LIFO unwind stack, the Go
// equivalent of dpkg's push_cleanup/pop_cleanup with ehflag_bombout and
// ehflag_normaltidy.
type cleanupFrame struct {
	fn      func() error
	bombout bool // run if the enclosing operation is unwound by an error
	tidy    bool // run if the enclosing operation completes normally
}

// PendingDeconfigure records a package queued for deconfiguration by
// AutoDeconfigure, mirroring struct pkg_deconf_list.
type PendingDeconfigure struct {
	Package *database.PackageInstance
	Removal *database.PackageInstance // non-nil when triggered by a removal, nil when by an installation (Breaks)
}

// Engine drives archive-member unpacking against one instdir-rooted
// filesystem tree, database, and filename namespace.
type Engine struct {
	InstDir  string
	DB       *database.Database
	Files    *files.Namespace
	Force    *forceflags.Set
	Listener dpkglog.Listener

	// AutoDeconfigure mirrors dpkg's separate (non --force) --auto-deconfigure
	// option: whether a blocking dependent may be queued for deconfiguration
	// rather than aborting the operation outright.
	AutoDeconfigure bool

	Deconfigure []*PendingDeconfigure

	stack   []cleanupFrame
	pending []*files.Node // members awaiting Commit's deferred rename
}

// NewEngine constructs an Engine rooted at instDir.
func NewEngine(instDir string, db *database.Database, fs *files.Namespace, force *forceflags.Set, listener dpkglog.Listener) *Engine {
	if force == nil {
		force = forceflags.Empty()
	}
	return &Engine{InstDir: instDir, DB: db, Files: fs, Force: force, Listener: listener}
}

func (eng *Engine) emit(e dpkglog.Event) {
	if eng.Listener != nil {
		eng.Listener(e)
	}
}

func (eng *Engine) pushCleanup(fn func() error, bombout, tidy bool) {
	eng.stack = append(eng.stack, cleanupFrame{fn: fn, bombout: bombout, tidy: tidy})
}

// popCleanup removes the most recently pushed frame, running it if failed
// matches the frame's trigger condition.
func (eng *Engine) popCleanup(failed bool) error {
	if len(eng.stack) == 0 {
		return nil
	}
	frame := eng.stack[len(eng.stack)-1]
	eng.stack = eng.stack[:len(eng.stack)-1]
	run := (failed && frame.bombout) || (!failed && frame.tidy)
	if !run {
		return nil
	}
	return frame.fn()
}

// unwind runs and discards every remaining frame, used when ProcessEntry
// fails partway through and needs to undo everything it pushed so far.
func (eng *Engine) unwind() error {
	var tidyErr error
	for len(eng.stack) > 0 {
		if err := eng.popCleanup(true); err != nil && tidyErr == nil {
			tidyErr = err
		}
	}
	return tidyErr
}

func hostPath(instDir, name string) string {
	return filepath.Join(instDir, strings.TrimPrefix(name, "/"))
}

// doesReplace reports whether replacer's available Replaces field covers
// replaced's installed version, per does_replace in src/archives.c.
func (eng *Engine) doesReplace(replacer, replaced *database.PackageInstance) bool {
	if replacer.Set == replaced.Set {
		return false
	}
	native := eng.DB.Architectures().Native()
	for _, dep := range replacer.Available.Depends {
		if dep.Kind != depgraph.KindReplaces {
			continue
		}
		for _, alt := range dep.Alts {
			if alt.TargetName != replaced.Set.Name {
				continue
			}
			if !depends.VersionSatisfied(replaced.Installed.Version, alt.Version, alt.VerRel) {
				continue
			}
			if depends.ArchSatisfied(replaced.Installed.Arch, replaced.Installed.MultiArch, alt.Arch, dep.Kind, native) {
				return true
			}
		}
	}
	return false
}

// inSync reports whether two Multi-Arch:same instances of the same package
// set are "in sync": sharing the same upstream version and Debian revision,
// per the pkg_in_sync check in src/archives.c (epoch is deliberately
// ignored, matching the original's versiondescribe(vdew_nonambig) compare).
func inSync(a, b version.Version) bool {
	return a.Upstream == b.Upstream && a.Revision == b.Revision
}

// md5File returns the hex-encoded MD5 digest of path's content.
func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ensureSameContent verifies that the member just staged at newPath
// byte-matches whatever already exists at path, per ensure_same_file in
// src/archives.c: Multi-Arch:same instances that are in sync must ship
// byte-identical shared files. A path with nothing on disk yet has nothing
// to compare against.
func ensureSameContent(path, newPath string, e *Entry) error {
	existing, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	mismatch := fmt.Errorf("%q is different from the same file on the system", e.Name)

	switch e.Type {
	case EntryDir:
		return nil
	case EntrySymlink:
		if existing.Mode()&os.ModeSymlink == 0 {
			return mismatch
		}
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		if target != e.LinkName {
			return mismatch
		}
		return nil
	case EntryCharDev, EntryBlockDev, EntryFifo:
		// device/fifo identity has no separate content to compare.
		return nil
	default: // EntryFile, EntryHardlink
		if existing.IsDir() {
			return mismatch
		}
		oldHash, err := md5File(path)
		if err != nil {
			return err
		}
		newHash, err := md5File(newPath)
		if err != nil {
			return err
		}
		if oldHash != newHash {
			return mismatch
		}
		return nil
	}
}

// ensureSameConffile verifies that every other instance of pkg's set that
// has progressed past config-files already agrees, by recorded hash, with
// the content just staged at newPath for node. prevNewHash is the hash of
// whatever ".dpkg-new" already existed for this path before this entry was
// staged (snapshotted at step 9 of the decision tree), used as the
// reference hash for a peer that hasn't itself been configured yet: its
// own Conffiles record isn't trustworthy until then. Ported from the
// ensuresameconff branch of tarobject in src/archives.c.
func ensureSameConffile(pkg *database.PackageInstance, node *files.Node, newPath, prevNewHash string) error {
	distHash, err := md5File(newPath)
	if err != nil {
		return err
	}
	for _, other := range pkg.Set.Instances() {
		if other == pkg || other.Status <= database.StatusConfigFiles {
			continue
		}
		recorded := ""
		found := false
		for _, cf := range other.Installed.ConfFiles {
			if cf.Path == node.Name {
				recorded = cf.Hash
				found = true
				break
			}
		}
		if !found {
			continue
		}
		refHash := prevNewHash
		if other.Status > database.StatusUnpacked {
			refHash = recorded
		}
		if refHash != "" && refHash != distHash {
			return fmt.Errorf("conffile %q is not in sync with other instances of the same package", node.Name)
		}
	}
	return nil
}

// existingIsDirLike reports whether the path already on disk needs no
// change for this entry: an existing directory, in place of a directory or
// a symlink-to-directory member.
func existingIsDirLike(e *Entry, path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	switch e.Type {
	case EntryDir:
		return info.IsDir()
	case EntrySymlink:
		if info.IsDir() {
			return true
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return false
		}
		target, err := os.Readlink(path)
		if err != nil {
			return false
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		ti, err := os.Stat(target)
		return err == nil && ti.IsDir()
	default:
		return false
	}
}

// ProcessEntry decides how to handle one archive member of pkg, staging its
// content on disk as needed. Ported from tarobject.
func (eng *Engine) ProcessEntry(pkg *database.PackageInstance, e *Entry) (Decision, error) {
	name := e.Name
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	node := eng.Files.Find(name)
	node.Flags |= files.NewInArchive
	if e.Conffile {
		node.Flags |= files.NewConffile
	}

	if node.Divert != nil && node.Divert.CameFrom == name {
		if !eng.Force.Enabled(forceflags.OverwriteDiverted) {
			return 0, fmt.Errorf("trying to overwrite %q, which is the diverted version of %q", name, node.Divert.CameFrom)
		}
	}

	path := hostPath(eng.InstDir, name)

	if existingIsDirLike(e, path) {
		node.AddOwner(pkg)
		return DecisionExistingDir, nil
	}

	keepExisting := false
	sharedInSync := false
	for _, other := range node.Owners {
		if other == pkg {
			continue
		}
		// Multi-Arch:same packages of the same set may legitimately share
		// this path. Overwriting is allowed when they are not in sync;
		// when they are, the shared content must match exactly, verified
		// once the new member has been staged (see below and step 13's
		// conffile branch), not here.
		if other.Set == pkg.Set &&
			other.Installed.MultiArch == database.MultiArchSame &&
			pkg.Available.MultiArch == database.MultiArchSame {
			if inSync(pkg.Available.Version, other.Installed.Version) {
				sharedInSync = true
			}
			continue
		}
		if other.Status == database.StatusConfigFiles {
			continue
		}
		if eng.doesReplace(pkg, other) {
			eng.emit(dpkglog.EventFileReplaced{Path: name, OldOwner: other.Set.Name, NewOwner: pkg.Set.Name})
			continue
		}
		if eng.doesReplace(other, pkg) {
			keepExisting = true
			eng.emit(dpkglog.EventFileReplaced{Path: name, OldOwner: pkg.Set.Name, NewOwner: other.Set.Name})
			continue
		}
		if !eng.Force.Enabled(forceflags.Overwrite) {
			return 0, fmt.Errorf("trying to overwrite %q, which is also in package %s", name, other.Set.Name)
		}
		eng.emit(dpkglog.EventFileReplaced{Path: name, OldOwner: other.Set.Name, NewOwner: pkg.Set.Name})
	}
	if keepExisting {
		return DecisionKeptExisting, nil
	}

	newPath := path + newSuffix
	tmpPath := path + tmpSuffix
	prevNewHash, _ := md5File(newPath)
	_ = os.Remove(newPath)
	_ = os.Remove(tmpPath)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, &Fault{Op: "stage " + name, Err: err}
	}
	if err := eng.stageNew(newPath, e); err != nil {
		if tidyErr := eng.unwind(); tidyErr != nil {
			return 0, &Fault{Op: "stage " + name, Err: err, TidyErr: tidyErr}
		}
		return 0, &Fault{Op: "stage " + name, Err: err}
	}

	node.AddOwner(pkg)

	if e.Conffile {
		if sharedInSync {
			if err := ensureSameConffile(pkg, node, newPath, prevNewHash); err != nil {
				return 0, err
			}
		}
		return DecisionDeferredConffile, nil
	}

	if sharedInSync {
		if err := ensureSameContent(path, newPath, e); err != nil {
			return 0, err
		}
	}

	existing, statErr := os.Lstat(path)
	if statErr == nil {
		if err := backupOld(path, tmpPath, existing); err != nil {
			return 0, &Fault{Op: "backup " + name, Err: err}
		}
		if existing.IsDir() {
			node.Flags |= files.NoAtomicOverwrite
		}
	}

	switch e.Type {
	case EntryFile, EntrySymlink:
		node.Flags |= files.DeferredRename
		if e.Type == EntryFile {
			node.Flags |= files.DeferredFsync
		}
		eng.pending = append(eng.pending, node)
		return DecisionDeferred, nil
	default:
		if err := os.Rename(newPath, path); err != nil {
			return 0, &Fault{Op: "install " + name, Err: err}
		}
		node.Flags |= files.PlacedOnDisk | files.ElideOtherLists
		return DecisionInstalled, nil
	}
}

// stageNew writes e's content to newPath, the ".dpkg-new" staging copy.
func (eng *Engine) stageNew(newPath string, e *Entry) error {
	switch e.Type {
	case EntryFile:
		f, err := os.OpenFile(newPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0)
		if err != nil {
			return err
		}
		eng.pushCleanup(func() error { return os.Remove(newPath) }, true, false)
		if _, err := io.Copy(f, e.Data); err != nil {
			f.Close()
			eng.popCleanup(true)
			return err
		}
		if err := f.Chown(e.UID, e.GID); err != nil && !os.IsPermission(err) {
			f.Close()
			eng.popCleanup(true)
			return err
		}
		if err := f.Chmod(e.Mode &^ os.ModeType); err != nil {
			f.Close()
			eng.popCleanup(true)
			return err
		}
		if err := f.Close(); err != nil {
			eng.popCleanup(true)
			return err
		}
		eng.popCleanup(false)
		return nil
	case EntryDir:
		if err := os.Mkdir(newPath, e.Mode&^os.ModeType|0700); err != nil {
			return err
		}
		return os.Chmod(newPath, e.Mode&^os.ModeType)
	case EntrySymlink:
		if err := os.Symlink(e.LinkName, newPath); err != nil {
			return err
		}
		return os.Lchown(newPath, e.UID, e.GID)
	case EntryHardlink:
		target := hostPath(eng.InstDir, e.LinkName)
		linkNode := eng.Files.Find(normalizeName(e.LinkName))
		if linkNode.Flags&files.DeferredRename != 0 {
			target += newSuffix
		}
		return os.Link(target, newPath)
	case EntryFifo:
		if err := syscall.Mkfifo(newPath, 0); err != nil {
			return err
		}
		return os.Chown(newPath, e.UID, e.GID)
	case EntryCharDev, EntryBlockDev:
		mode := uint32(syscall.S_IFCHR)
		if e.Type == EntryBlockDev {
			mode = syscall.S_IFBLK
		}
		if err := syscall.Mknod(newPath, mode, int(e.Dev)); err != nil {
			return err
		}
		return os.Chown(newPath, e.UID, e.GID)
	default:
		return fmt.Errorf("unknown entry type %d", e.Type)
	}
}

func normalizeName(name string) string {
	if !strings.HasPrefix(name, "/") {
		return "/" + name
	}
	return name
}

// backupOld moves the previously-installed object out of the way to
// tmpPath so it can be restored, or discarded, once the new object has
// been committed.
func backupOld(path, tmpPath string, existing os.FileInfo) error {
	switch {
	case existing.IsDir():
		return os.Rename(path, tmpPath)
	case existing.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		return os.Symlink(target, tmpPath)
	default:
		return os.Link(path, tmpPath)
	}
}

// Commit renames every member deferred by ProcessEntry into place, the Go
// equivalent of tar_deferred_extract. It runs in two passes: a first pass
// that opens and closes every pending ".dpkg-new" file marked
// DeferredFsync, without issuing any writeback request, then a commit pass
// that fsyncs each such file and renames every pending member into place,
// in list order, so test harnesses can rely on deterministic on-disk
// state. Each fsync therefore waits for its own file's writeback; the
// writeback of the pending files is not started ahead of time.
func (eng *Engine) Commit() error {
	for _, node := range eng.pending {
		if node.Flags&files.DeferredFsync == 0 {
			continue
		}
		path := hostPath(eng.InstDir, node.Name) + newSuffix
		if f, err := os.Open(path); err == nil {
			f.Close()
		}
	}

	for _, node := range eng.pending {
		if node.Flags&files.DeferredRename == 0 {
			continue
		}
		path := hostPath(eng.InstDir, node.Name)
		newPath := path + newSuffix
		// fsync is only meaningful for regular files; a symlink's content
		// lives in its directory entry, which the rename below covers.
		if node.Flags&files.DeferredFsync != 0 {
			if f, err := os.OpenFile(newPath, os.O_WRONLY, 0); err == nil {
				_ = f.Sync()
				f.Close()
			}
		}
		if err := os.Rename(newPath, path); err != nil {
			return fmt.Errorf("committing %s: %w", node.Name, err)
		}
		node.Flags &^= files.DeferredRename | files.DeferredFsync
		node.Flags |= files.PlacedOnDisk | files.ElideOtherLists
	}
	eng.pending = nil
	return nil
}

// TryDeconfigure attempts to queue pkg for deconfiguration so that action
// (a human-readable description of the install/removal causing the
// conflict) can proceed. Ported from try_deconfigure_can.
func (eng *Engine) TryDeconfigure(pkg *database.PackageInstance, action string, removal *database.PackageInstance, forced bool) (bool, string) {
	if forced {
		return true, fmt.Sprintf("ignoring dependency problem with %s", action)
	}
	if !eng.AutoDeconfigure {
		return false, fmt.Sprintf("cannot proceed with %s (auto-deconfigure not enabled)", action)
	}
	if pkg.Installed.Essential && !eng.Force.Enabled(forceflags.RemoveEssential) {
		return false, fmt.Sprintf("%s is essential, will not deconfigure it to enable %s", pkg.Set.Name, action)
	}
	eng.Deconfigure = append(eng.Deconfigure, &PendingDeconfigure{Package: pkg, Removal: removal})
	dependent := pkg.Set.Name
	subject := dependent
	if removal != nil {
		subject = removal.Set.Name
	}
	eng.emit(dpkglog.EventAutoDeconfigure{Package: subject, Dependent: dependent})
	return true, ""
}

// CheckConflict evaluates one Conflicts or Breaks dependency of pkg's
// available metadata against the database's installed packages, queuing a
// deconfiguration for Breaks or failing outright for Conflicts when the
// force flag for that kind is not set. Ported from check_conflict/check_breaks.
func (eng *Engine) CheckConflict(pkg *database.PackageInstance, dep *depgraph.Dependency) error {
	if dep.Kind != depgraph.KindConflicts && dep.Kind != depgraph.KindBreaks {
		return fmt.Errorf("CheckConflict: not a Conflicts/Breaks dependency: %s", dep.Kind)
	}
	native := eng.DB.Architectures().Native()
	for _, alt := range dep.Alts {
		set := eng.DB.FindSet(alt.TargetName)
		for _, inst := range set.Instances() {
			if inst.Set == pkg.Set {
				continue
			}
			if inst.Status < database.StatusHalfInstalled {
				continue
			}
			if !depends.VersionSatisfied(inst.Installed.Version, alt.Version, alt.VerRel) {
				continue
			}
			if !depends.ArchSatisfied(inst.Installed.Arch, inst.Installed.MultiArch, alt.Arch, dep.Kind, native) {
				continue
			}
			if eng.doesReplace(pkg, inst) {
				continue
			}

			if dep.Kind == depgraph.KindBreaks {
				action := fmt.Sprintf("installation of %s", pkg.Set.Name)
				if ok, why := eng.TryDeconfigure(inst, action, nil, eng.Force.Enabled(forceflags.Breaks)); !ok {
					return fmt.Errorf("installing %s would break %s: %s", pkg.Set.Name, inst.Set.Name, why)
				}
				continue
			}

			if !eng.Force.Enabled(forceflags.Conflicts) {
				return fmt.Errorf("%s conflicts with installed package %s", pkg.Set.Name, inst.Set.Name)
			}
		}
	}
	return nil
}

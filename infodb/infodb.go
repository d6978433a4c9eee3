// Package infodb implements the per-package control-information database
// on disk: one file per (package[, architecture], filetype) under the
// admin directory's info/ subdirectory, plus the one-shot format upgrade
// that renames pre-multiarch filenames ("pkg.list") to their multiarch
// form ("pkg:arch.list"). Ported from src/infodb.c.
package infodb

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dpkg-go/dpkgcore/database"
)

// Format values recorded in the info directory's "format" file.
const (
	FormatLegacy        = 0 // pre-multiarch, "pkg.filetype" names
	FormatUpgrading      = 1 // hard links created, originals not yet removed
	FormatMultiArch      = 2 // upgrade complete
)

// DB is a handle on one admin directory's info subdirectory.
type DB struct {
	dir        string // .../info
	formatFile string
	format     int
}

// Open reads (or initializes) the format marker of the info directory at
// dir. It does not itself perform the multiarch upgrade; call
// UpgradeToMultiArch explicitly once the database is open for writing,
// mirroring pkg_infodb_init's msdbrw_write gate.
func Open(dir string) (*DB, error) {
	db := &DB{dir: dir, formatFile: filepath.Join(dir, "format")}

	data, err := os.ReadFile(db.formatFile)
	switch {
	case err == nil:
		s := strings.TrimSpace(string(data))
		n, perr := strconv.Atoi(s)
		if perr != nil {
			return nil, fmt.Errorf("infodb: %s is corrupted, expected an integer format version", db.formatFile)
		}
		db.format = n
	case os.IsNotExist(err):
		db.format = FormatLegacy
	default:
		return nil, fmt.Errorf("infodb: opening %s: %w", db.formatFile, err)
	}
	return db, nil
}

// Format returns the currently recorded database format.
func (db *DB) Format() int { return db.format }

func (db *DB) recordFormat(version int) error {
	tmp := db.formatFile + ".dpkg-new"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(version)), 0644); err != nil {
		return fmt.Errorf("infodb: writing %s: %w", tmp, err)
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY, 0644)
	if err == nil {
		_ = f.Sync()
		f.Close()
	}
	if err := os.Rename(tmp, db.formatFile); err != nil {
		return fmt.Errorf("infodb: renaming %s: %w", tmp, err)
	}
	db.format = version
	return nil
}

// filenameMatch pairs an original on-disk path with the hard-linked
// multiarch-form path created for it, so the upgrade can be rolled back.
type filenameMatch struct{ old, new string }

// UpgradeToMultiArch performs the one-shot, crash-safe rename of every
// info file belonging to a Multi-Arch: same package from "pkg.filetype"
// to "pkg:arch.filetype". It follows the five-step protocol of
// pkg_infodb_upgrade_to_multiarch: hard-link the new names in (format 0),
// record format 1, unlink the old names, record format 2. If anything
// fails before format 2 is recorded, the hard links created so far are
// rolled back and format is left at 0, matching cu_abort_db_upgrade.
func (db *DB) UpgradeToMultiArch(pkgs iter.Seq[*database.PackageInstance]) (err error) {
	if db.format >= FormatMultiArch {
		return nil
	}

	var matches []filenameMatch
	rollback := func() {
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			if _, statErr := os.Lstat(m.old); os.IsNotExist(statErr) {
				_ = os.Link(m.new, m.old)
			}
			_ = os.Remove(m.new)
		}
		_ = db.recordFormat(FormatLegacy)
	}
	defer func() {
		if err != nil {
			rollback()
		}
	}()

	entries, rerr := os.ReadDir(db.dir)
	if rerr != nil {
		return fmt.Errorf("infodb: reading %s: %w", db.dir, rerr)
	}

	byName := map[string]*database.PackageInstance{}
	for p := range pkgs {
		if p.Installed.MultiArch == database.MultiArchSame && p.Installed.Arch != nil {
			byName[p.Set.Name] = p
		}
	}

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dot := strings.LastIndexByte(e.Name(), '.')
		if dot < 0 {
			continue
		}
		pkgName := e.Name()[:dot]
		if strings.Contains(pkgName, ":") {
			continue // already converted
		}
		filetype := e.Name()[dot+1:]

		pkg, ok := byName[pkgName]
		if !ok {
			continue
		}

		oldPath := filepath.Join(db.dir, e.Name())
		newPath := filepath.Join(db.dir, pkgName+":"+pkg.Installed.Arch.Name()+"."+filetype)

		if _, statErr := os.Lstat(newPath); os.IsNotExist(statErr) {
			if linkErr := os.Link(oldPath, newPath); linkErr != nil {
				return fmt.Errorf("infodb: creating hard link %s: %w", newPath, linkErr)
			}
		}
		matches = append(matches, filenameMatch{old: oldPath, new: newPath})
	}

	if err = db.recordFormat(FormatUpgrading); err != nil {
		return err
	}
	for _, m := range matches {
		if rerr := os.Remove(m.old); rerr != nil {
			err = fmt.Errorf("infodb: removing %s: %w", m.old, rerr)
			return err
		}
	}
	if err = db.recordFormat(FormatMultiArch); err != nil {
		return err
	}
	return nil
}

// pathFor returns the on-disk path for one info file of pkg, honoring the
// current format: pkg:arch.filetype once the database has been upgraded
// and pkg is Multi-Arch: same, otherwise the legacy pkg.filetype.
func (db *DB) pathFor(pkg *database.PackageInstance, multiArch database.MultiArch, filetype string) string {
	name := pkg.Set.Name
	if multiArch == database.MultiArchSame && db.format > FormatLegacy && pkg.Installed.Arch != nil {
		name += ":" + pkg.Installed.Arch.Name()
	}
	return filepath.Join(db.dir, name+"."+filetype)
}

// HasFile reports whether pkg has an info file of the given filetype.
func (db *DB) HasFile(pkg *database.PackageInstance, multiArch database.MultiArch, filetype string) (bool, error) {
	_, err := os.Lstat(db.pathFor(pkg, multiArch, filetype))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ReadFile returns the content of pkg's info file of the given filetype.
func (db *DB) ReadFile(pkg *database.PackageInstance, multiArch database.MultiArch, filetype string) ([]byte, error) {
	return os.ReadFile(db.pathFor(pkg, multiArch, filetype))
}

// ForEach calls fn for every info file on disk, optionally restricted to
// one package's files when pkg is non-nil. Ported from pkg_infodb_foreach.
func (db *DB) ForEach(pkg *database.PackageInstance, fn func(filename, filetype string) error) error {
	var prefix string
	if pkg != nil {
		prefix = pkg.Set.Name
		if pkg.Installed.MultiArch == database.MultiArchSame && db.format > FormatLegacy && pkg.Installed.Arch != nil {
			prefix += ":" + pkg.Installed.Arch.Name()
		}
	}

	return filepath.WalkDir(db.dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() {
			if path == db.dir {
				return nil
			}
			return filepath.SkipDir
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			return nil
		}
		dot := strings.LastIndexByte(name, '.')
		if dot < 0 {
			return nil
		}
		if pkg != nil {
			if name[:dot] != prefix {
				return nil
			}
		}
		return fn(path, name[dot+1:])
	})
}

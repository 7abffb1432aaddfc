// Package workarea manages the directories the pipeline runs in: the run
// root, the shared index area and one area per sample.
package workarea

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	// SentinelName marks a directory as initialized by virocov.
	SentinelName = ".virocov"
	// TmpName is the scratch subdirectory of every area.
	TmpName = "tmp"
)

// Area is a directory owned by one scope of the run.
type Area struct {
	Dir string
}

// New returns the area rooted at dir.
func New(dir string) Area {
	return Area{Dir: dir}
}

// Sub returns the child area name.
func (a Area) Sub(name string) Area {
	return Area{Dir: filepath.Join(a.Dir, name)}
}

// Path joins name onto the area directory.
func (a Area) Path(name string) string {
	return filepath.Join(a.Dir, name)
}

// TmpDir returns the area's scratch directory.
func (a Area) TmpDir() string {
	return a.Path(TmpName)
}

// Ensure creates the area directory and its scratch directory.
func (a Area) Ensure() error {
	if err := os.MkdirAll(a.TmpDir(), 0o755); err != nil {
		return fmt.Errorf("create work area %s: %w", a.Dir, err)
	}
	return nil
}

// ResetTmp empties the scratch directory, creating the area if needed.
func (a Area) ResetTmp() error {
	if err := os.RemoveAll(a.TmpDir()); err != nil {
		return fmt.Errorf("clear scratch dir %s: %w", a.TmpDir(), err)
	}
	return a.Ensure()
}

// WriteSentinel creates the empty sentinel marker, creating the area if needed.
func (a Area) WriteSentinel() error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("create work area %s: %w", a.Dir, err)
	}
	f, err := os.OpenFile(a.Path(SentinelName), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("write sentinel: %w", err)
	}
	return f.Close()
}

// HasSentinel reports whether the sentinel marker exists.
func (a Area) HasSentinel() bool {
	return a.Exists(SentinelName)
}

// Exists reports whether name is present in the area.
func (a Area) Exists(name string) bool {
	_, err := os.Stat(a.Path(name))
	return err == nil
}

// Entries lists the names directly inside the area, sorted. A missing area has no entries.
func (a Area) Entries() ([]string, error) {
	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list work area %s: %w", a.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Stale returns the entries of the area that are not in keep, sorted.
func (a Area) Stale(keep []string) ([]string, error) {
	names, err := a.Entries()
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(keep))
	for _, k := range keep {
		allowed[k] = true
	}
	var stale []string
	for _, n := range names {
		if !allowed[n] {
			stale = append(stale, n)
		}
	}
	sort.Strings(stale)
	return stale, nil
}

// Prune removes every entry not in keep and returns the removed names, sorted.
func (a Area) Prune(keep []string) ([]string, error) {
	stale, err := a.Stale(keep)
	if err != nil {
		return nil, err
	}
	for i, name := range stale {
		if err := os.RemoveAll(a.Path(name)); err != nil {
			return stale[:i], fmt.Errorf("remove %s: %w", a.Path(name), err)
		}
	}
	return stale, nil
}

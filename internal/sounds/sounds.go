// Package sounds synchronizes per-source sound catalogs into one shared,
// namespaced directory.
//
// Files are stored as "{sourceID}-{name}" so vendors cannot collide. Sync
// is a diff against what is already on disk: copy what is missing or stale,
// delete what the vendor no longer ships. Re-running it is safe.
package sounds

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"alertkit/internal/alert"
	logx "alertkit/pkg/logx"
)

// Vendor is implemented by sources that ship custom audio assets.
type Vendor interface {
	// SoundBaseDir is the directory holding the vendor's source files.
	SoundBaseDir() string
	// Sounds lists the file names in the current catalog.
	Sounds() []string
}

// Manager owns the shared sounds directory.
type Manager struct {
	dir string
	log logx.Logger
}

func NewManager(dir string, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{dir: dir, log: log}
}

// Dir returns the shared sounds directory.
func (m *Manager) Dir() string { return m.dir }

// SoundPath resolves an alert's sound to its namespaced file in the shared
// directory. Only named sounds map to a file.
func (m *Manager) SoundPath(a alert.Alert) (string, bool) {
	if a.Sound == nil {
		return "", false
	}
	name, ok := a.Sound.Filename()
	if !ok {
		return "", false
	}
	return filepath.Join(m.dir, destName(a.Identifier.SourceID, name)), true
}

// SyncVendor diffs the vendor's catalog against the shared directory:
// copies files that are missing or older than the vendor's copy, then
// removes previously-copied files for this source that left the catalog.
// Individual file failures are logged and skipped; the rest proceed.
//
// Sync may block on file I/O and must not run on a latency-sensitive path.
func (m *Manager) SyncVendor(sourceID string, v Vendor) error {
	base := strings.TrimSpace(v.SoundBaseDir())
	catalog := v.Sounds()
	if base == "" || len(catalog) == 0 {
		return nil
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("sounds: create shared dir: %w", err)
	}

	current := make(map[string]struct{}, len(catalog))
	copied := 0
	for _, name := range catalog {
		if name == "" {
			continue
		}
		current[destName(sourceID, name)] = struct{}{}

		src := filepath.Join(base, name)
		dst := filepath.Join(m.dir, destName(sourceID, name))
		did, err := copyIfNewer(src, dst)
		if err != nil {
			m.log.Warn("sound copy failed",
				logx.String("source", sourceID), logx.String("sound", name), logx.Err(err))
			continue
		}
		if did {
			copied++
		}
	}

	removed, err := m.pruneStale(sourceID, current)
	if err != nil {
		return err
	}

	m.log.Debug("sound catalog synced",
		logx.String("source", sourceID),
		logx.Int("catalog", len(catalog)),
		logx.Int("copied", copied),
		logx.Int("removed", removed))
	return nil
}

// pruneStale removes files namespaced to this source that no longer appear
// in the catalog.
func (m *Manager) pruneStale(sourceID string, current map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("sounds: read shared dir: %w", err)
	}

	prefix := sourceID + "-"
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if _, ok := current[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, e.Name())); err != nil {
			m.log.Warn("stale sound removal failed",
				logx.String("source", sourceID), logx.String("file", e.Name()), logx.Err(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func destName(sourceID, name string) string {
	return sourceID + "-" + name
}

// copyIfNewer copies src over dst when dst is missing or has an older
// modification time. Reports whether a copy happened.
func copyIfNewer(src, dst string) (bool, error) {
	si, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if di, err := os.Stat(dst); err == nil {
		if !si.ModTime().After(di.ModTime()) {
			return false, nil
		}
	} else if !os.IsNotExist(err) {
		return false, err
	}

	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return false, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	return true, nil
}

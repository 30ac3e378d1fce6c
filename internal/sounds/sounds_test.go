package sounds

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"alertkit/internal/alert"
	logx "alertkit/pkg/logx"
)

type fakeVendor struct {
	base  string
	names []string
}

func (v fakeVendor) SoundBaseDir() string { return v.base }
func (v fakeVendor) Sounds() []string     { return v.names }

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSyncVendorDiffs(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	shared := t.TempDir()
	now := time.Now()

	writeFile(t, filepath.Join(base, "new.mp3"), "new", now)
	writeFile(t, filepath.Join(base, "updated.mp3"), "v2", now)
	writeFile(t, filepath.Join(base, "current.mp3"), "same", now.Add(-time.Hour))

	// Shared dir already holds an outdated copy, an up-to-date copy, and a
	// file the vendor no longer ships.
	writeFile(t, filepath.Join(shared, "pump-updated.mp3"), "v1", now.Add(-time.Hour))
	writeFile(t, filepath.Join(shared, "pump-current.mp3"), "same", now)
	writeFile(t, filepath.Join(shared, "pump-stale.mp3"), "old", now)
	writeFile(t, filepath.Join(shared, "cgm-keep.mp3"), "other source", now)

	m := NewManager(shared, logx.Nop())
	v := fakeVendor{base: base, names: []string{"new.mp3", "updated.mp3", "current.mp3"}}

	if err := m.SyncVendor("pump", v); err != nil {
		t.Fatalf("SyncVendor: %v", err)
	}

	for name, want := range map[string]string{
		"pump-new.mp3":     "new",
		"pump-updated.mp3": "v2",
		"pump-current.mp3": "same",
		"cgm-keep.mp3":     "other source",
	} {
		got, err := os.ReadFile(filepath.Join(shared, name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(shared, "pump-stale.mp3")); !os.IsNotExist(err) {
		t.Error("pump-stale.mp3 should have been pruned")
	}

	// Re-running against an unchanged catalog is a no-op.
	if err := m.SyncVendor("pump", v); err != nil {
		t.Fatalf("SyncVendor (rerun): %v", err)
	}
}

func TestSyncVendorEmptyCatalogIsNoop(t *testing.T) {
	t.Parallel()

	shared := filepath.Join(t.TempDir(), "never-created")
	m := NewManager(shared, logx.Nop())

	if err := m.SyncVendor("pump", fakeVendor{}); err != nil {
		t.Fatalf("SyncVendor: %v", err)
	}
	if _, err := os.Stat(shared); !os.IsNotExist(err) {
		t.Error("empty catalog must not create the shared dir")
	}
}

func TestSyncVendorSkipsMissingSourceFile(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	shared := t.TempDir()
	writeFile(t, filepath.Join(base, "real.mp3"), "x", time.Time{})

	m := NewManager(shared, logx.Nop())
	v := fakeVendor{base: base, names: []string{"missing.mp3", "real.mp3"}}

	if err := m.SyncVendor("pump", v); err != nil {
		t.Fatalf("SyncVendor: %v", err)
	}
	if _, err := os.Stat(filepath.Join(shared, "pump-real.mp3")); err != nil {
		t.Error("real.mp3 should still sync when a sibling fails")
	}
}

func TestSoundPath(t *testing.T) {
	t.Parallel()

	m := NewManager("/var/lib/alertd/sounds", logx.Nop())

	a := alert.Alert{
		Identifier: alert.NewIdentifier("pump", "occlusion"),
		Sound:      &alert.Sound{Type: alert.SoundNamed, Name: "chime.mp3"},
	}
	path, ok := m.SoundPath(a)
	if !ok || path != filepath.Join("/var/lib/alertd/sounds", "pump-chime.mp3") {
		t.Fatalf("SoundPath = %q, %v", path, ok)
	}

	a.Sound = &alert.Sound{Type: alert.SoundDefault}
	if _, ok := m.SoundPath(a); ok {
		t.Error("default sound must not resolve to a file")
	}
	a.Sound = nil
	if _, ok := m.SoundPath(a); ok {
		t.Error("nil sound must not resolve to a file")
	}
}

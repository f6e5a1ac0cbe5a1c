package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestStore_SaveAndRestore(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "profiles"))
	if err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Default", "Local Storage", "leveldb", "000003.log"), "session-keys")
	writeFile(t, filepath.Join(src, "Default", "Cache", "data_0"), "cached")
	writeFile(t, filepath.Join(src, "Local State"), "{}")

	p, err := store.Save("default", src)
	if err != nil {
		t.Fatal(err)
	}
	if p.Size == 0 {
		t.Error("Size = 0, want archive size")
	}

	dst := filepath.Join(t.TempDir(), "restored")
	restored, err := store.Restore("default", dst)
	if err != nil {
		t.Fatal(err)
	}
	if !restored {
		t.Fatal("Restore() = false, want true for empty target")
	}

	data, err := os.ReadFile(filepath.Join(dst, "Default", "Local Storage", "leveldb", "000003.log"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "session-keys" {
		t.Errorf("restored content = %q, want session-keys", data)
	}
	if _, err := os.Stat(filepath.Join(dst, "Default", "Cache")); !os.IsNotExist(err) {
		t.Errorf("Cache dir restored, want it skipped (err = %v)", err)
	}
}

func TestStore_RestoreLeavesExistingProfile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Local State"), "saved")
	if _, err := store.Save("default", src); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, "Local State"), "live")

	restored, err := store.Restore("default", dst)
	if err != nil {
		t.Fatal(err)
	}
	if restored {
		t.Error("Restore() = true, want false for non-empty target")
	}

	data, _ := os.ReadFile(filepath.Join(dst, "Local State"))
	if string(data) != "live" {
		t.Errorf("live profile overwritten: %q", data)
	}
}

func TestStore_Missing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Restore("nobody", t.TempDir()); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Restore() error = %v, want ErrNoSnapshot", err)
	}
	if _, err := store.Get("../escape"); err == nil {
		t.Error("Get() accepted a path-like name")
	}
	if err := store.Delete("nobody"); err != nil {
		t.Errorf("Delete() of missing profile = %v, want nil", err)
	}
}

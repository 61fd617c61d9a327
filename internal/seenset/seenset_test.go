package seenset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	set, err := store.Load("first run")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Len() != 0 {
		t.Fatalf("Len = %d, want 0", set.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	set, err := store.Load("watch seller")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	set.Add("item-1")
	set.Add("item-2")
	set.Add("item-1") // 重复添加幂等

	if err := store.Save("watch seller", set); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := store.Load("watch seller")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reloaded.Len())
	}
	if !reloaded.Contains("item-1") || !reloaded.Contains("item-2") {
		t.Fatal("reloaded set missing ids")
	}
	if reloaded.Contains("item-3") {
		t.Fatal("contains id that was never added")
	}
}

func TestTaskNameSanitized(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	set := NewSet([]string{"a"})
	if err := store.Save("卖家/主页 监控", set); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}
	name := entries[0].Name()
	if name != "seen_products_卖家_主页_监控.json" {
		t.Fatalf("file name = %q", name)
	}
}

func TestCorruptedFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	path := filepath.Join(dir, "seen_products_bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	set, err := store.Load("bad")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Len() != 0 {
		t.Fatalf("Len = %d, want 0", set.Len())
	}
}

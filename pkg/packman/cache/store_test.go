package cache

import (
	"errors"
	"testing"
	"time"
)

func TestStoreOpenClose(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestStoreGetPut(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	entry := &Entry{
		Name:    "ModuleManager",
		Version: "4.2.3",
		Option:  "ModuleManager-4.2.3",
		Archive: "abc.zip",
		Size:    1024,
		Created: time.Now().UnixNano(),
	}
	if err := store.Put(entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get("ModuleManager", "4.2.3")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != *entry {
		t.Errorf("Get = %+v, want %+v", got, entry)
	}

	if _, err := store.Get("ModuleManager", "4.2.2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing version: got %v, want ErrNotFound", err)
	}
}

func TestStoreListAndDeletePrefix(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	for _, e := range []*Entry{
		{Name: "a", Version: "1"},
		{Name: "a", Version: "2"},
		{Name: "ab", Version: "1"},
	} {
		if err := store.Put(e); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.List(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List(nil) returned %d entries, want 3", len(all))
	}

	// The separator keeps "a" from matching "ab".
	if err := store.DeletePrefix(MakeKeyPrefix("a")); err != nil {
		t.Fatal(err)
	}
	rest, err := store.List(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].Name != "ab" {
		t.Errorf("after DeletePrefix got %+v, want only ab", rest)
	}
}

func TestParseKey(t *testing.T) {
	name, version := ParseKey(MakeKey("pkg/with/slash", "1.0"))
	if name != "pkg/with/slash" || version != "1.0" {
		t.Errorf("ParseKey = %q, %q", name, version)
	}
	name, version = ParseKey([]byte("bare"))
	if name != "bare" || version != "" {
		t.Errorf("ParseKey(bare) = %q, %q", name, version)
	}
}

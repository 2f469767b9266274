package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newCache(t *testing.T, maxBytes int64) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := New(dir, maxBytes, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, dir
}

func TestPutAndGet(t *testing.T) {
	c, _ := newCache(t, 1024*1024)

	data := []byte("step one audio")
	if err := c.Put("key1", data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("Get returned false, want true")
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get returned true for a missing key")
	}

	st := c.Stats()
	if st.Entries != 1 || st.Hits != 1 || st.Misses != 1 || st.Bytes != int64(len(data)) {
		t.Errorf("Stats = %+v", st)
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(t.TempDir(), 0, nil); err == nil {
		t.Fatal("expected error for zero max size")
	}
}

func TestEvictionOrder(t *testing.T) {
	c, _ := newCache(t, 150)

	c.Put("old", make([]byte, 50))
	c.Put("mid", make([]byte, 50))
	c.Get("old")
	c.Put("new", make([]byte, 60))

	if _, ok := c.Get("mid"); ok {
		t.Error("mid should have been evicted as least recently used")
	}
	for _, k := range []string{"old", "new"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still exist", k)
		}
	}
}

func TestPutSkipsOversizedAndEmpty(t *testing.T) {
	c, dir := newCache(t, 50)

	if err := c.Put("big", make([]byte, 100)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put("empty", nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if c.Stats().Entries != 0 {
		t.Errorf("Entries = %d, want 0", c.Stats().Entries)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+fileExt))
	if len(matches) != 0 {
		t.Errorf("files on disk = %v, want none", matches)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newCache(t, 1024*1024)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := UtteranceKey{Engine: "stub", Text: "打蛋", Voice: "v"}.Key()
			c.Put(key, make([]byte, 100))
			c.Get(key)
		}()
	}
	wg.Wait()
}

func TestUtteranceKey(t *testing.T) {
	base := UtteranceKey{Engine: "elevenlabs", Text: "hello", Voice: "v1", Model: "m1", Lang: "zh", Pitch: 1, Rate: 1}
	if base.Key() != base.Key() {
		t.Error("same input produced different keys")
	}

	variants := []UtteranceKey{base, base, base, base, base}
	variants[0].Text = "world"
	variants[1].Voice = "v2"
	variants[2].Rate = 1.25
	variants[3].Engine = "remote"
	variants[4].Lang = ""
	for i, v := range variants {
		if v.Key() == base.Key() {
			t.Errorf("variant %d produced the base key", i)
		}
	}
}

func TestLoadExisting(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "abc123.pcm"), []byte("audio data"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	c, err := New(dir, 1024*1024, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, ok := c.Get("abc123")
	if !ok || string(got) != "audio data" {
		t.Errorf("abc123 = %q, %v", got, ok)
	}
	if c.Stats().Entries != 1 {
		t.Errorf("Entries = %d, want 1", c.Stats().Entries)
	}
}

func TestLoadExistingEvictsOverCapacity(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"aaa", "bbb", "ccc"} {
		os.WriteFile(filepath.Join(dir, name+fileExt), make([]byte, 50), 0o644)
	}

	c, err := New(dir, 100, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st := c.Stats()
	if st.Bytes > 100 || st.Entries > 2 {
		t.Errorf("Stats after load = %+v, want at most 100 bytes in 2 entries", st)
	}
}

func TestLoadExistingKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"oldest", "middle", "newest"} {
		p := filepath.Join(dir, name+fileExt)
		os.WriteFile(p, make([]byte, 40), 0o644)
		mtime := base.Add(time.Duration(i) * time.Minute)
		os.Chtimes(p, mtime, mtime)
	}

	c, err := New(dir, 100, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.Get("oldest"); ok {
		t.Error("oldest file should have been evicted")
	}
	for _, k := range []string{"middle", "newest"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should survive", k)
		}
	}
}

func TestStaleFileCleanup(t *testing.T) {
	c, dir := newCache(t, 1024*1024)
	c.Put("stale", []byte("data"))
	os.Remove(filepath.Join(dir, "stale"+fileExt))

	if _, ok := c.Get("stale"); ok {
		t.Error("Get should return false for deleted file")
	}
	if c.Stats().Entries != 0 {
		t.Error("stale entry should be dropped")
	}
}

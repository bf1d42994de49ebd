package vectorindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "index.lrx")

	idx := New("test-model")
	idx.InsertBatch([]Entry{
		{ID: "c1", Vector: []float32{1, 0, 0}, Text: "Lungs are clear bilaterally.", Source: "clear.pdf", Page: 1},
		{ID: "c2", Vector: []float32{0, 1, 0}, Text: "Consolidation in the right lower lobe.", Source: "pneumonia.pdf", Page: 3},
		{ID: "c3", Vector: []float32{0, 0, 1}, Text: "Überblick — ünïcödé text", Source: "intl.pdf", Page: 12},
	})

	if err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !Exists(path) {
		t.Fatal("index file should exist after Save")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be gone after Save")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Model() != idx.Model() {
		t.Errorf("model mismatch: got %s, want %s", loaded.Model(), idx.Model())
	}
	if loaded.Dimensions() != idx.Dimensions() {
		t.Errorf("dimensions mismatch: got %d, want %d", loaded.Dimensions(), idx.Dimensions())
	}
	if !loaded.CreatedAt().Equal(idx.CreatedAt()) {
		t.Errorf("created mismatch: got %v, want %v", loaded.CreatedAt(), idx.CreatedAt())
	}

	want := idx.Entries()
	got := loaded.Entries()
	if len(got) != len(want) {
		t.Fatalf("entry count mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Text != want[i].Text ||
			got[i].Source != want[i].Source || got[i].Page != want[i].Page {
			t.Errorf("entry %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
		for j := range want[i].Vector {
			if got[i].Vector[j] != want[i].Vector[j] {
				t.Errorf("entry %d vector[%d]: got %v, want %v", i, j, got[i].Vector[j], want[i].Vector[j])
			}
		}
	}
}

func TestSaveAndLoad_SearchRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const dims = 16

	idx := New("test-model")
	var entries []Entry
	for i := 0; i < 200; i++ {
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		entries = append(entries, Entry{
			ID:     "chunk-" + string(rune('a'+i%26)) + "-" + itoa(i),
			Vector: vec,
			Text:   "chunk text " + itoa(i),
			Source: "doc" + itoa(i%7) + ".pdf",
			Page:   i%11 + 1,
		})
	}
	// Duplicate a vector so ties must survive the round trip.
	entries[150].Vector = append([]float32(nil), entries[10].Vector...)
	if err := idx.InsertBatch(entries); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "index.lrx")
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	for q := 0; q < 20; q++ {
		query := make([]float32, dims)
		for j := range query {
			query[j] = rng.Float32()*2 - 1
		}
		if q == 0 {
			query = entries[10].Vector
		}
		for _, k := range []int{0, 1, 4, 10, 500} {
			a, errA := idx.Search(query, k)
			b, errB := loaded.Search(query, k)
			if errA != nil || errB != nil {
				t.Fatalf("search errors: %v, %v", errA, errB)
			}
			if len(a) != len(b) {
				t.Fatalf("query %d k=%d: %d vs %d results", q, k, len(a), len(b))
			}
			for i := range a {
				if a[i] != b[i] {
					t.Fatalf("query %d k=%d result %d differs: %+v vs %+v", q, k, i, a[i], b[i])
				}
			}
		}
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{byte('0' + i%10)}, b...)
		i /= 10
	}
	return string(b)
}

func TestSaveAndLoad_EmptyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.lrx")
	if err := New("m").Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Size() != 0 {
		t.Errorf("expected empty index, got %d entries", loaded.Size())
	}
	if _, err := loaded.Search([]float32{1}, 1); err != ErrEmptyIndex {
		t.Errorf("expected ErrEmptyIndex, got %v", err)
	}
}

func TestSave_ReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.lrx")

	first := New("m")
	first.InsertBatch([]Entry{entry("old", 1, 0)})
	first.Save(path)

	second := New("m")
	second.InsertBatch([]Entry{entry("new", 0, 1)})
	if err := second.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Has("old") || !loaded.Has("new") {
		t.Error("Save should replace the previous index")
	}
}

func TestSave_ConcurrentWritersDoNotShareTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.lrx")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx := New("m")
			idx.InsertBatch([]Entry{entry(fmt.Sprintf("writer-%d", i), float32(i+1), 1)})
			errs[i] = idx.Save(path)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("writer %d: Save() error = %v", i, err)
		}
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after concurrent saves = %v", err)
	}
	if loaded.Size() != 1 {
		t.Errorf("expected one writer's index, got %d entries", loaded.Size())
	}

	names, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 {
		t.Errorf("temp files left behind: %v", names)
	}
}

func TestSave_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	// A regular file where a directory is expected cannot hold the index.
	err := New("m").Save(filepath.Join(blocker, "index.lrx"))
	if err == nil {
		t.Error("expected error saving under a regular file")
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.lrx"))
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func savedBytes(t *testing.T) []byte {
	t.Helper()
	idx := New("test-model")
	idx.InsertBatch([]Entry{entry("c1", 1, 0, 0), entry("c2", 0, 1, 0)})
	path := filepath.Join(t.TempDir(), "good.lrx")
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestLoad_Corrupt(t *testing.T) {
	good := savedBytes(t)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty file", func(b []byte) []byte { return nil }},
		{"wrong magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"truncated header", func(b []byte) []byte { return b[:12] }},
		{"truncated entries", func(b []byte) []byte { return b[:len(b)-20] }},
		{"missing checksum", func(b []byte) []byte { return b[:len(b)-4] }},
		{"flipped payload byte", func(b []byte) []byte { b[len(b)-10] ^= 0xFF; return b }},
		{"trailing garbage", func(b []byte) []byte { return append(b, 0x00) }},
		{"absurd entry count", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[16:24], 1<<40)
			return b
		}},
		{"pickle file", func(b []byte) []byte { return []byte("\x80\x04\x95faiss") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			path := filepath.Join(t.TempDir(), "bad.lrx")
			if err := os.WriteFile(path, data, 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.Is(err, ErrCorruptIndex) {
				t.Errorf("expected ErrCorruptIndex, got %v", err)
			}
		})
	}
}

func TestLoad_UnsupportedVersion(t *testing.T) {
	data := savedBytes(t)
	binary.LittleEndian.PutUint32(data[8:12], CurrentVersion+1)

	path := filepath.Join(t.TempDir(), "future.lrx")
	os.WriteFile(path, data, 0644)

	_, err := Load(path)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
	if !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("version errors should also match ErrCorruptIndex, got %v", err)
	}
}

func TestFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.lrx")
	if _, err := FileSize(path); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	idx := New("m")
	idx.InsertBatch([]Entry{entry("c1", 1, 0)})
	idx.Save(path)

	size, err := FileSize(path)
	if err != nil {
		t.Fatalf("FileSize failed: %v", err)
	}
	if size <= 0 {
		t.Error("index size should be positive")
	}
}

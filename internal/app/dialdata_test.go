package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileDataStore(t *testing.T) {
	t.Run("missing file yields empty map", func(t *testing.T) {
		store, err := NewFileDataStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileDataStore() error = %v", err)
		}

		data, err := store.Load("Unknown")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(data) != 0 {
			t.Errorf("Load() = %v, want empty map", data)
		}
	})

	t.Run("save and reload roundtrip", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileDataStore(dir)
		if err != nil {
			t.Fatalf("NewFileDataStore() error = %v", err)
		}

		want := map[string]string{"a": "1", "b": "2"}
		if err := store.Save("Test", want); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		// Reopen to prove the data survives the store instance.
		store2, err := NewFileDataStore(dir)
		if err != nil {
			t.Fatalf("NewFileDataStore() error = %v", err)
		}
		got, err := store2.Load("Test")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != len(want) || got["a"] != "1" || got["b"] != "2" {
			t.Errorf("Load() = %v, want %v", got, want)
		}
	})

	t.Run("save overwrites wholesale", func(t *testing.T) {
		store, err := NewFileDataStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileDataStore() error = %v", err)
		}

		if err := store.Save("Test", map[string]string{"a": "1"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := store.Save("Test", map[string]string{"b": "2"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load("Test")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if _, ok := got["a"]; ok {
			t.Error("old key survived a wholesale replacement")
		}
		if got["b"] != "2" {
			t.Errorf("Load()[b] = %q, want %q", got["b"], "2")
		}
	})

	t.Run("corrupt file reports an error", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileDataStore(dir)
		if err != nil {
			t.Fatalf("NewFileDataStore() error = %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "test.json"), []byte("{"), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		if _, err := store.Load("Test"); err == nil {
			t.Error("Load() error = nil, want decode error")
		}
	})
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Test", "test"},
		{"YouTube", "youtube"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"My App 2", "my_app_2"},
	}
	for _, tt := range tests {
		if got := sanitizeFileName(tt.in); got != tt.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

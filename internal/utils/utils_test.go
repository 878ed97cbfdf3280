package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "snapshot.json")

	if err := WriteFileAtomic(path, []byte(`{"a":1}`), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte(`{"a":2}`), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":2}` {
		t.Errorf("Expected latest content, got %s", got)
	}

	// No temp files may be left behind next to the target
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly 1 file in dir, found %d", len(entries))
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	in := map[string][]int{"values": {1, 2, 3}}

	if err := WriteJSONAtomic(path, in); err != nil {
		t.Fatalf("WriteJSONAtomic failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string][]int
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if len(out["values"]) != 3 {
		t.Errorf("Expected 3 values, got %v", out["values"])
	}
}

func TestNewSafeCommand_CapturesStderr(t *testing.T) {
	c := NewSafeCommand("sh", "-c", "echo boom 1>&2")
	if err := c.Run(); err != nil {
		t.Skipf("sh not available: %v", err)
	}
	if c.Stderr.String() != "boom\n" {
		t.Errorf("Expected captured stderr 'boom', got %q", c.Stderr.String())
	}
}

package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWorkspaceLifecycle(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root, "9f3a2b1c-0d4e-4f56-8a9b-aabbccddeeff")
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	info, err := os.Stat(ws.Dir())
	if err != nil {
		t.Fatalf("stat workspace: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("workspace is not a directory")
	}
	if perm := info.Mode().Perm(); perm != 0o777 {
		t.Errorf("workspace perm = %o, want 777", perm)
	}
	if !strings.HasPrefix(filepath.Base(ws.Dir()), workspacePrefix) {
		t.Errorf("workspace name %q missing prefix", filepath.Base(ws.Dir()))
	}

	if err := ws.WriteSource("main.cpp", "int main() {}\n"); err != nil {
		t.Fatalf("WriteSource: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(ws.Dir(), "main.cpp"))
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if string(data) != "int main() {}\n" {
		t.Errorf("source content = %q", data)
	}

	dir := ws.Dir()
	if err := ws.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("workspace still exists after cleanup")
	}
	if err := ws.Cleanup(); err != nil {
		t.Errorf("second Cleanup: %v", err)
	}
}

func TestWorkspaceRequiresRoot(t *testing.T) {
	if _, err := NewWorkspace("", "abc"); err == nil {
		t.Fatal("empty root accepted")
	}
}

func TestWriteSourceRequiresName(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "abc")
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	defer ws.Cleanup()
	if err := ws.WriteSource("", "x"); err == nil {
		t.Fatal("empty source name accepted")
	}
}

func TestSweepStaleWorkspaces(t *testing.T) {
	root := t.TempDir()

	stale := filepath.Join(root, workspacePrefix+"old-123")
	if err := os.Mkdir(stale, 0o777); err != nil {
		t.Fatalf("mkdir stale: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	fresh := filepath.Join(root, workspacePrefix+"new-456")
	if err := os.Mkdir(fresh, 0o777); err != nil {
		t.Fatalf("mkdir fresh: %v", err)
	}

	unrelated := filepath.Join(root, "keepme")
	if err := os.Mkdir(unrelated, 0o777); err != nil {
		t.Fatalf("mkdir unrelated: %v", err)
	}
	if err := os.Chtimes(unrelated, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if removed := SweepStaleWorkspaces(root, time.Hour); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale workspace survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh workspace was swept")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("unrelated directory was swept")
	}
}

func TestShortID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"9f3a2b1c-0d4e-4f56-8a9b-aabbccddeeff", "9f3a2b1c0d4e"},
		{"case-1", "case1"},
		{"", "anon"},
		{"..//..", "anon"},
	}
	for _, tc := range cases {
		if got := shortID(tc.in); got != tc.want {
			t.Errorf("shortID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildSubmitWithSourceFile(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "main.py")
	if err := os.WriteFile(sourcePath, []byte("print(42)"), 0o600); err != nil {
		t.Fatalf("write temp source failed: %v", err)
	}

	cmd := Registry()["submit"]
	params := Params{}
	params.Set("problem_id", "42")
	params.Set("user_id", "7")
	params.Set("language_id", "python3")
	params.Set("file", sourcePath)
	params.Set("code", FileSentinel)

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/v1/submissions" {
		t.Fatalf("unexpected request: %s %s", req.Method, req.Path)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		t.Fatalf("unmarshal body failed: %v", err)
	}
	if payload["code"] != "print(42)" {
		t.Errorf("code = %q, want file contents", payload["code"])
	}
	if payload["language_id"] != "python3" {
		t.Errorf("language_id = %q", payload["language_id"])
	}
}

func TestBuildSubmitCanonicalizesAliases(t *testing.T) {
	cmd := Registry()["submit"]
	params := Params{}
	params.Set("problem", "42")
	params.Set("user", "7")
	params.Set("lang", "cpp17")
	params.Set("source", "int main() {}")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		t.Fatalf("unmarshal body failed: %v", err)
	}
	if payload["problem_id"] != float64(42) || payload["user_id"] != float64(7) {
		t.Errorf("ids not canonicalized: %v", payload)
	}
	if payload["code"] != "int main() {}" {
		t.Errorf("code = %q", payload["code"])
	}
}

func TestBuildSubmitRequiresCode(t *testing.T) {
	cmd := Registry()["submit"]
	params := Params{}
	params.Set("problem_id", "42")
	params.Set("user_id", "7")
	params.Set("language_id", "python3")

	if _, err := BuildRequest(cmd, params); err == nil {
		t.Fatal("expected error for missing code")
	}
}

func TestBuildStatusPath(t *testing.T) {
	cmd := Registry()["status"]
	params := Params{}
	params.Set("id", "7c9e4a2f")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Path != "/api/v1/submissions/7c9e4a2f" {
		t.Errorf("path = %s", req.Path)
	}
	if len(req.Body) != 0 {
		t.Errorf("GET request carries a body: %s", req.Body)
	}
}

func TestBuildStatusMissingID(t *testing.T) {
	cmd := Registry()["status"]
	if _, err := BuildRequest(cmd, Params{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

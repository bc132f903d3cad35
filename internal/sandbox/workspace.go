package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	appErr "judgecore/pkg/errors"
)

const workspacePrefix = "sub-"

// Workspace is the ephemeral host directory mounted into the container as
// /work. It holds nothing but the submission source and whatever the compile
// step writes next to it.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh workspace directory under root.
func NewWorkspace(root, submissionID string) (*Workspace, error) {
	if root == "" {
		return nil, appErr.ValidationError("work_root", "required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkspaceError, "create work root failed")
	}
	dir, err := os.MkdirTemp(root, workspacePrefix+shortID(submissionID)+"-")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkspaceError, "create workspace failed")
	}
	// The container user is unprivileged, so the mount must stay writable
	// for it during the compile step.
	if err := os.Chmod(dir, 0o777); err != nil {
		_ = os.RemoveAll(dir)
		return nil, appErr.Wrapf(err, appErr.WorkspaceError, "chmod workspace failed")
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the host path of the workspace.
func (w *Workspace) Dir() string {
	return w.dir
}

// WriteSource places the submission source in the workspace under the file
// name the language toolchain expects.
func (w *Workspace) WriteSource(name, content string) error {
	if name == "" {
		return appErr.ValidationError("source_file_name", "required")
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return appErr.Wrapf(err, appErr.WorkspaceError, "write source failed")
	}
	return nil
}

// Cleanup removes the workspace. Safe to call more than once.
func (w *Workspace) Cleanup() error {
	if w == nil || w.dir == "" {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return appErr.Wrapf(err, appErr.WorkspaceError, "remove workspace failed")
	}
	w.dir = ""
	return nil
}

// SweepStaleWorkspaces removes leftover workspace directories older than
// maxAge. Crashed workers leave these behind; the sweep runs at startup and
// from the engine cleanup loop. Returns the number of directories removed.
func SweepStaleWorkspaces(root string, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultConfig().WorkspaceMaxAge
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.RemoveAll(filepath.Join(root, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// shortID trims a submission id down to a path and container-name friendly
// fragment.
func shortID(id string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, id)
	if len(cleaned) > 12 {
		cleaned = cleaned[:12]
	}
	if cleaned == "" {
		cleaned = "anon"
	}
	return cleaned
}

package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	appErr "judgecore/pkg/errors"
)

// Config holds the tunable parts of the sandbox security profile.
// Everything here has a hardened default; configuration can tighten or relax
// sizes and limits but cannot turn isolation off.
type Config struct {
	// SeccompDir is where the generated seccomp JSON is written.
	SeccompDir string `yaml:"seccompDir"`

	// AppArmorProfile names an optional host-managed AppArmor profile.
	AppArmorProfile string `yaml:"apparmorProfile"`

	// User is the uid:gid the judged process runs as. Must be non-root.
	User string `yaml:"user"`

	// TmpfsSize bounds the writable /tmp mount, e.g. "64m".
	TmpfsSize string `yaml:"tmpfsSize"`

	// MaxProcesses caps processes per container (ulimit nproc).
	MaxProcesses int `yaml:"maxProcesses"`

	// MaxOpenFiles caps file descriptors (ulimit nofile).
	MaxOpenFiles int `yaml:"maxOpenFiles"`

	// MaxFileSizeBytes caps any single written file (ulimit fsize).
	MaxFileSizeBytes int64 `yaml:"maxFileSizeBytes"`

	// CPUSeconds is the hard CPU-time backstop (ulimit cpu). The wall-clock
	// timeout fires first in normal operation.
	CPUSeconds int `yaml:"cpuSeconds"`
}

// DefaultConfig returns the hardened defaults.
func DefaultConfig() Config {
	return Config{
		User:             "65534:65534",
		TmpfsSize:        "64m",
		MaxProcesses:     64,
		MaxOpenFiles:     64,
		MaxFileSizeBytes: 64 << 20,
		CPUSeconds:       20,
	}
}

// Profile is the immutable security posture applied to every sandbox
// container. It is built once at startup; a build failure must abort the
// service rather than fall back to a weaker posture.
type Profile struct {
	SeccompPath     string
	AppArmorProfile string
	User            string
	TmpfsSize       string
	MaxProcesses    int
	MaxOpenFiles    int
	MaxFileSize     int64
	CPUSeconds      int
}

// Build validates the configuration, writes the seccomp profile to disk and
// returns the assembled Profile.
func Build(cfg Config) (*Profile, error) {
	defaults := DefaultConfig()
	if cfg.User == "" {
		cfg.User = defaults.User
	}
	if cfg.TmpfsSize == "" {
		cfg.TmpfsSize = defaults.TmpfsSize
	}
	if cfg.MaxProcesses <= 0 {
		cfg.MaxProcesses = defaults.MaxProcesses
	}
	if cfg.MaxOpenFiles <= 0 {
		cfg.MaxOpenFiles = defaults.MaxOpenFiles
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = defaults.MaxFileSizeBytes
	}
	if cfg.CPUSeconds <= 0 {
		cfg.CPUSeconds = defaults.CPUSeconds
	}
	if cfg.SeccompDir == "" {
		cfg.SeccompDir = filepath.Join(os.TempDir(), "judged-security")
	}

	if err := validateUser(cfg.User); err != nil {
		return nil, err
	}

	profile := &Profile{
		AppArmorProfile: cfg.AppArmorProfile,
		User:            cfg.User,
		TmpfsSize:       cfg.TmpfsSize,
		MaxProcesses:    cfg.MaxProcesses,
		MaxOpenFiles:    cfg.MaxOpenFiles,
		MaxFileSize:     cfg.MaxFileSizeBytes,
		CPUSeconds:      cfg.CPUSeconds,
	}

	path, err := writeSeccompProfile(cfg.SeccompDir)
	if err != nil {
		return nil, err
	}
	profile.SeccompPath = path

	return profile, nil
}

// writeSeccompProfile validates and persists the built-in filter, returning
// the written path.
func writeSeccompProfile(dir string) (string, error) {
	seccomp := DefaultSeccompProfile()
	if err := validateSeccompProfile(seccomp); err != nil {
		return "", appErr.Wrapf(err, appErr.SecurityProfileError, "seccomp profile validation failed")
	}
	data, err := json.MarshalIndent(seccomp, "", "  ")
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SecurityProfileError, "marshal seccomp profile failed")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", appErr.Wrapf(err, appErr.SecurityProfileError, "create seccomp dir failed")
	}
	path := filepath.Join(dir, "seccomp.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", appErr.Wrapf(err, appErr.SecurityProfileError, "write seccomp profile failed")
	}
	return path, nil
}

func validateUser(user string) error {
	uidStr, gidStr, ok := strings.Cut(user, ":")
	if !ok {
		return appErr.Newf(appErr.SecurityProfileError, "sandbox user %q must be uid:gid", user)
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return appErr.Newf(appErr.SecurityProfileError, "sandbox uid %q is not numeric", uidStr)
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return appErr.Newf(appErr.SecurityProfileError, "sandbox gid %q is not numeric", gidStr)
	}
	if uid == 0 || gid == 0 {
		return appErr.New(appErr.SecurityProfileError).WithMessage("sandbox must not run as root")
	}
	return nil
}

// Args returns the static docker run arguments that apply the profile.
// Per-run resource limits (memory, cpus, pids) are appended by the caller.
func (p *Profile) Args() []string {
	args := []string{
		"--network=none",
		"--read-only",
		"--tmpfs", fmt.Sprintf("/tmp:rw,noexec,nosuid,nodev,size=%s,mode=1777", p.TmpfsSize),
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges:true",
	}
	if p.SeccompPath != "" {
		args = append(args, "--security-opt", "seccomp="+p.SeccompPath)
	}
	if p.AppArmorProfile != "" {
		args = append(args, "--security-opt", "apparmor="+p.AppArmorProfile)
	}
	args = append(args,
		"--user", p.User,
		"--ulimit", fmt.Sprintf("nproc=%d:%d", p.MaxProcesses, p.MaxProcesses),
		"--ulimit", fmt.Sprintf("nofile=%d:%d", p.MaxOpenFiles, p.MaxOpenFiles),
		"--ulimit", fmt.Sprintf("fsize=%d:%d", p.MaxFileSize, p.MaxFileSize),
		"--ulimit", fmt.Sprintf("cpu=%d:%d", p.CPUSeconds, p.CPUSeconds),
	)
	return args
}

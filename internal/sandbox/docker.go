package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"judgecore/internal/security"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

// Config controls the docker engine.
type Config struct {
	WorkRoot         string        `yaml:"workRoot"`
	NamePrefix       string        `yaml:"namePrefix"`
	DockerBin        string        `yaml:"dockerBin"`
	CompileTimeout   time.Duration `yaml:"compileTimeout"`
	CompileMemoryMB  int64         `yaml:"compileMemoryMB"`
	CompileCPUs      float64       `yaml:"compileCPUs"`
	CompilePIDs      int64         `yaml:"compilePIDs"`
	TeardownGrace    time.Duration `yaml:"teardownGrace"`
	OutputLimitBytes int64         `yaml:"outputLimitBytes"`
	WorkspaceMaxAge  time.Duration `yaml:"workspaceMaxAge"`
}

// DefaultConfig returns production defaults for the docker engine.
func DefaultConfig() Config {
	return Config{
		WorkRoot:         filepath.Join(os.TempDir(), "judged-work"),
		NamePrefix:       "judged",
		DockerBin:        "docker",
		CompileTimeout:   20 * time.Second,
		CompileMemoryMB:  1024,
		CompileCPUs:      1.0,
		CompilePIDs:      128,
		TeardownGrace:    5 * time.Second,
		OutputLimitBytes: 1 << 20,
		WorkspaceMaxAge:  30 * time.Minute,
	}
}

func applyConfigDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = def.WorkRoot
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = def.NamePrefix
	}
	if cfg.DockerBin == "" {
		cfg.DockerBin = def.DockerBin
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = def.CompileTimeout
	}
	if cfg.CompileMemoryMB <= 0 {
		cfg.CompileMemoryMB = def.CompileMemoryMB
	}
	if cfg.CompileCPUs <= 0 {
		cfg.CompileCPUs = def.CompileCPUs
	}
	if cfg.CompilePIDs <= 0 {
		cfg.CompilePIDs = def.CompilePIDs
	}
	if cfg.TeardownGrace <= 0 {
		cfg.TeardownGrace = def.TeardownGrace
	}
	if cfg.OutputLimitBytes <= 0 {
		cfg.OutputLimitBytes = def.OutputLimitBytes
	}
	if cfg.WorkspaceMaxAge <= 0 {
		cfg.WorkspaceMaxAge = def.WorkspaceMaxAge
	}
}

// DockerEngine runs submissions through the docker CLI. One container per
// compile and per test case, never reused.
type DockerEngine struct {
	cfg     Config
	profile *security.Profile
}

var _ Engine = (*DockerEngine)(nil)

// NewDockerEngine creates a docker-backed engine. It fails when the security
// profile is missing or the docker daemon is unreachable.
func NewDockerEngine(cfg Config, profile *security.Profile) (*DockerEngine, error) {
	if profile == nil {
		return nil, appErr.New(appErr.SecurityProfileError).WithMessage("security profile is required")
	}
	applyConfigDefaults(&cfg)
	e := &DockerEngine{cfg: cfg, profile: profile}
	if err := e.checkDockerAvailable(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *DockerEngine) checkDockerAvailable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, e.cfg.DockerBin, "info").Run(); err != nil {
		return appErr.Wrapf(err, appErr.SandboxUnavailable, "docker daemon not reachable")
	}
	return nil
}

// Compile builds the workspace source with the language's compile command
// under a fixed timeout. Languages without a compile step return a zero
// result immediately.
func (e *DockerEngine) Compile(ctx context.Context, req CompileRequest) (ExecutionResult, error) {
	if err := validateCompileRequest(req); err != nil {
		return ExecutionResult{}, err
	}
	if !req.Language.CompileEnabled() {
		return ExecutionResult{}, nil
	}
	cmd, err := buildCommand(req.Language.CompileCmdTpl, req.Language)
	if err != nil {
		return ExecutionResult{}, err
	}
	limits := Limits{
		TimeLimitMs:   e.cfg.CompileTimeout.Milliseconds(),
		MemoryLimitMB: e.cfg.CompileMemoryMB,
		CPUs:          e.cfg.CompileCPUs,
		PIDs:          e.cfg.CompilePIDs,
	}
	name := e.containerName(req.SubmissionID, "compile")
	args := e.buildCompileArgs(name, req, limits, cmd)
	return e.execute(ctx, name, args, "", e.cfg.CompileTimeout)
}

// Run executes the submission against one test-case input in a fresh
// container with the test's resource limits.
func (e *DockerEngine) Run(ctx context.Context, req RunRequest) (ExecutionResult, error) {
	if err := validateRunRequest(req); err != nil {
		return ExecutionResult{}, err
	}
	cmd, err := buildCommand(req.Language.RunCmdTpl, req.Language)
	if err != nil {
		return ExecutionResult{}, err
	}
	limits := normalizeLimits(req.Limits)
	name := e.containerName(req.SubmissionID, req.TestID)
	args := e.buildRunArgs(name, req, limits, cmd)
	defer e.removeContainer(name)

	wall := time.Duration(limits.TimeLimitMs) * time.Millisecond
	res, err := e.execute(ctx, name, args, req.Stdin, wall)
	if err != nil {
		return res, err
	}
	return classifyRun(res, e.inspectOOMKilled(name), limits.TimeLimitMs), nil
}

func (e *DockerEngine) buildCompileArgs(name string, req CompileRequest, limits Limits, cmd []string) []string {
	args := []string{"run", "--rm", "--name", name}
	args = append(args, limitArgs(limits)...)
	args = append(args, e.profile.Args()...)
	args = append(args, envArgs(req.Language.Env)...)
	// Compile writes the binary next to the source, so /work stays writable.
	args = append(args, "-v", req.Workspace.Dir()+":"+containerWorkDir)
	args = append(args, "-w", containerWorkDir)
	args = append(args, req.Language.Image)
	args = append(args, wrapWithTimeout(cmd, limits.TimeLimitMs)...)
	return args
}

func (e *DockerEngine) buildRunArgs(name string, req RunRequest, limits Limits, cmd []string) []string {
	// No --rm here: the exit state must stay inspectable for the OOM flag.
	// Removal is explicit on every path.
	args := []string{"run", "--name", name}
	args = append(args, limitArgs(limits)...)
	args = append(args, e.profile.Args()...)
	args = append(args, envArgs(req.Language.Env)...)
	args = append(args, "-v", req.Workspace.Dir()+":"+containerWorkDir+":ro")
	args = append(args, "-w", containerWorkDir)
	args = append(args, req.Language.Image)
	args = append(args, wrapWithTimeout(cmd, limits.TimeLimitMs)...)
	return args
}

func limitArgs(l Limits) []string {
	return []string{
		"--memory", fmt.Sprintf("%dm", l.MemoryLimitMB),
		"--memory-swap", fmt.Sprintf("%dm", l.MemoryLimitMB), // swap disabled
		"--cpus", fmt.Sprintf("%.2f", l.CPUs),
		"--pids-limit", fmt.Sprintf("%d", l.PIDs),
	}
}

func envArgs(env []string) []string {
	var args []string
	for _, kv := range env {
		if kv == "" {
			continue
		}
		args = append(args, "-e", kv)
	}
	return args
}

func (e *DockerEngine) execute(ctx context.Context, name string, args []string, stdin string, wall time.Duration) (ExecutionResult, error) {
	if stdin != "" {
		// Required for piping stdin into `docker run`.
		args = append(args[:1], append([]string{"-i"}, args[1:]...)...)
	}

	runCtx, cancel := context.WithTimeout(ctx, wall+e.cfg.TeardownGrace)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.cfg.DockerBin, args...)
	setSysProcAttr(cmd)
	stdout := newLimitedWriter(e.cfg.OutputLimitBytes)
	stderr := newLimitedWriter(e.cfg.OutputLimitBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	start := time.Now()
	runErr := cmd.Run()

	res := ExecutionResult{
		TimeMs: time.Since(start).Milliseconds(),
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		killProcessGroup(cmd)
		e.forceKillContainer(name)
		return res, appErr.Wrapf(ctxErr, appErr.SandboxUnavailable, "execution canceled")
	}
	if runCtx.Err() == context.DeadlineExceeded {
		// The container outlived the wall limit plus grace. The client
		// process is already dead; kill the rest by name.
		killProcessGroup(cmd)
		e.forceKillContainer(name)
		res.TimedOut = true
		res.ExitCode = timeoutExitCode
		return res, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			e.forceKillContainer(name)
			return res, appErr.Wrapf(runErr, appErr.SandboxUnavailable, "docker run failed")
		}
		res.ExitCode = exitErr.ExitCode()
	}
	if res.ExitCode == timeoutExitCode {
		res.TimedOut = true
	}
	return res, nil
}

// classifyRun folds the OOM flag and the kill exit code into the result. A
// SIGKILL without the OOM flag at or past the wall limit is the timeout
// wrapper escalating; the same signal well before the limit is the kernel
// OOM killer, whose flag docker can lose when the init process dies.
func classifyRun(res ExecutionResult, oomFlag bool, wallMs int64) ExecutionResult {
	res.OOMKilled = oomFlag
	if res.ExitCode != killExitCode || res.TimedOut {
		return res
	}
	if !res.OOMKilled {
		if res.TimeMs >= wallMs {
			res.TimedOut = true
		} else {
			res.OOMKilled = true
		}
	}
	return res
}

func (e *DockerEngine) inspectOOMKilled(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, e.cfg.DockerBin, "inspect", "-f", "{{.State.OOMKilled}}", name).Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "true"
}

// forceKillContainer stops a container gracefully, then removes it by force.
func (e *DockerEngine) forceKillContainer(name string) {
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, e.cfg.DockerBin, "stop", "-t", "2", name).Run()
	_ = exec.CommandContext(ctx, e.cfg.DockerBin, "rm", "-f", name).Run()
}

func (e *DockerEngine) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, e.cfg.DockerBin, "rm", "-f", name).Run()
}

// SweepOrphans removes exited judge containers and stale workspaces left
// behind by crashed workers. Runs at startup and from the cleanup ticker.
func (e *DockerEngine) SweepOrphans(ctx context.Context) {
	if removed := SweepStaleWorkspaces(e.cfg.WorkRoot, e.cfg.WorkspaceMaxAge); removed > 0 {
		logger.Info(ctx, "removed stale workspaces", zap.Int("count", removed))
	}

	out, err := exec.CommandContext(ctx, e.cfg.DockerBin, "ps", "-a",
		"--filter", "name="+e.cfg.NamePrefix+"-",
		"--format", "{{.Names}}\t{{.Status}}").Output()
	if err != nil {
		logger.Warn(ctx, "orphan container sweep failed", zap.Error(err))
		return
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) < 2 {
			continue
		}
		name, status := parts[0], parts[1]
		if strings.Contains(status, "Exited") || strings.Contains(status, "Created") {
			_ = exec.CommandContext(ctx, e.cfg.DockerBin, "rm", "-f", name).Run()
			logger.Info(ctx, "removed orphaned container", zap.String("container", name))
		}
	}
}

// WorkRoot returns the directory new workspaces are created under.
func (e *DockerEngine) WorkRoot() string {
	return e.cfg.WorkRoot
}

func (e *DockerEngine) containerName(submissionID, step string) string {
	return fmt.Sprintf("%s-%s-%s-%s", e.cfg.NamePrefix, shortID(submissionID), shortID(step), nonce())
}

// nonce keeps retried runs of the same test from colliding on a container
// name that docker has not finished removing.
func nonce() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%08x", uint32(time.Now().UnixNano()))
	}
	return hex.EncodeToString(b[:])
}

func normalizeLimits(l Limits) Limits {
	if l.TimeLimitMs <= 0 {
		l.TimeLimitMs = 2000
	}
	if l.MemoryLimitMB <= 0 {
		l.MemoryLimitMB = 256
	}
	if l.CPUs <= 0 {
		l.CPUs = 1.0
	}
	if l.PIDs <= 0 {
		l.PIDs = 64
	}
	return l
}

func validateCompileRequest(req CompileRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.Workspace == nil || req.Workspace.Dir() == "" {
		return appErr.ValidationError("workspace", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	return nil
}

func validateRunRequest(req RunRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.TestID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if req.Workspace == nil || req.Workspace.Dir() == "" {
		return appErr.ValidationError("workspace", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	return nil
}

package language

import (
	"strings"

	appErr "judgecore/pkg/errors"
)

// Spec describes how one language is compiled and run inside the sandbox.
// CompileCmdTpl and RunCmdTpl are shell-like templates; {src} expands to the
// source file path and {bin} to the binary path inside the container.
type Spec struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Image            string   `yaml:"image"`
	SourceFile       string   `yaml:"sourceFile"`
	BinaryFile       string   `yaml:"binaryFile"`
	CompileCmdTpl    string   `yaml:"compileCmd"`
	RunCmdTpl        string   `yaml:"runCmd"`
	Env              []string `yaml:"env"`
	TimeMultiplier   float64  `yaml:"timeMultiplier"`
	MemoryMultiplier float64  `yaml:"memoryMultiplier"`
}

// CompileEnabled reports whether the language has a compile step.
// An empty compile template means the language runs from source.
func (s Spec) CompileEnabled() bool {
	return strings.TrimSpace(s.CompileCmdTpl) != ""
}

// Validate checks that the spec carries everything the sandbox needs.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if strings.TrimSpace(s.Image) == "" {
		return appErr.ValidationError("image", "required")
	}
	if strings.TrimSpace(s.SourceFile) == "" {
		return appErr.ValidationError("source_file", "required")
	}
	if strings.TrimSpace(s.RunCmdTpl) == "" {
		return appErr.ValidationError("run_cmd", "required")
	}
	if s.CompileEnabled() && strings.TrimSpace(s.BinaryFile) == "" {
		return appErr.ValidationError("binary_file", "required when compile command is set")
	}
	return nil
}

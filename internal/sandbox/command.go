package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"judgecore/internal/language"
	appErr "judgecore/pkg/errors"
)

// buildCommand expands a language command template into argv. {src} and {bin}
// resolve to the container paths of the source and binary files.
func buildCommand(tpl string, lang language.Spec) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := tpl
	expanded = strings.ReplaceAll(expanded, "{src}", filepath.Join(containerWorkDir, lang.SourceFile))
	expanded = strings.ReplaceAll(expanded, "{bin}", filepath.Join(containerWorkDir, lang.BinaryFile))
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// wrapWithTimeout prefixes argv with the coreutils timeout wrapper. TERM is
// sent at the wall limit and KILL one second later, so a normal timeout exits
// 124 and a TERM-ignoring process exits 137.
func wrapWithTimeout(cmd []string, wallMs int64) []string {
	secs := ceilSeconds(wallMs)
	wrapped := []string{"timeout", "-k", "1", fmt.Sprintf("%ds", secs)}
	return append(wrapped, cmd...)
}

// ceilSeconds rounds a millisecond limit up to whole seconds, minimum one.
func ceilSeconds(ms int64) int64 {
	if ms <= 0 {
		return 1
	}
	secs := (ms + 999) / 1000
	if secs < 1 {
		return 1
	}
	return secs
}

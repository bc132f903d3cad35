//go:build linux && cgo

package security

import (
	"fmt"

	libseccomp "github.com/seccomp/libseccomp-golang"
)

// validateSeccompProfile resolves every syscall name against libseccomp.
// An unknown name means a typo in the filter; refusing to start beats
// shipping a profile that silently fails to match.
func validateSeccompProfile(profile *SeccompProfile) error {
	if profile.DefaultAction != actErrno {
		return fmt.Errorf("default action must be %s, got %s", actErrno, profile.DefaultAction)
	}
	for _, group := range profile.Syscalls {
		for _, name := range group.Names {
			if _, err := libseccomp.GetSyscallFromName(name); err != nil {
				return fmt.Errorf("unknown syscall %q: %w", name, err)
			}
		}
	}
	return nil
}

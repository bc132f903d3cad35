package prescreen

// DefaultRules returns the built-in screening set. The sandbox blocks these
// behaviors at the syscall level regardless; screening them up front turns a
// doomed run into an immediate rejection with a readable reason.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "c-system-call",
			Pattern:   `\bsystem\s*\(`,
			Languages: []string{"c17", "cpp17"},
			Reason:    "calling system() is not allowed",
		},
		{
			Name:      "c-exec-call",
			Pattern:   `\bexec[lv]p?e?\s*\(`,
			Languages: []string{"c17", "cpp17"},
			Reason:    "spawning processes is not allowed",
		},
		{
			Name:      "c-fork-call",
			Pattern:   `\bfork\s*\(\s*\)`,
			Languages: []string{"c17", "cpp17"},
			Reason:    "forking processes is not allowed",
		},
		{
			Name:      "c-inline-asm",
			Pattern:   `\b__asm__\b|\basm\s+volatile\b`,
			Languages: []string{"c17", "cpp17"},
			Reason:    "inline assembly is not allowed",
		},
		{
			Name:      "c-unsafe-buffer",
			Pattern:   `\b(gets|strcpy|strcat|sprintf)\s*\(`,
			Languages: []string{"c17", "cpp17"},
			Reason:    "unsafe buffer functions are not allowed",
		},
		{
			Name:      "c-raw-socket",
			Pattern:   `\bsocket\s*\(`,
			Languages: []string{"c17", "cpp17"},
			Reason:    "network access is not allowed",
		},
		{
			Name:      "python-process-spawn",
			Pattern:   `\b(os\.system|os\.popen|os\.exec\w*|os\.fork|os\.spawn\w*|subprocess)\b`,
			Languages: []string{"python3"},
			Reason:    "spawning processes is not allowed",
		},
		{
			Name:      "python-ctypes",
			Pattern:   `\bctypes\b`,
			Languages: []string{"python3"},
			Reason:    "loading native libraries is not allowed",
		},
		{
			Name:      "node-child-process",
			Pattern:   `child_process`,
			Languages: []string{"javascript"},
			Reason:    "spawning processes is not allowed",
		},
		{
			Name:      "java-runtime-exec",
			Pattern:   `\bRuntime\s*\.\s*getRuntime\s*\(\s*\)|\bProcessBuilder\b`,
			Languages: []string{"java17"},
			Reason:    "spawning processes is not allowed",
		},
		{
			Name:      "go-os-exec",
			Pattern:   `"os/exec"`,
			Languages: []string{"go"},
			Reason:    "spawning processes is not allowed",
		},
		{
			Name:    "sensitive-path",
			Pattern: `/etc/(passwd|shadow|sudoers)`,
			Reason:  "accessing system credential files is not allowed",
		},
	}
}

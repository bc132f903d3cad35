package security

// SeccompProfile is the JSON document handed to the container runtime via
// --security-opt seccomp=<path>. The default action rejects every syscall
// that is not explicitly allowed.
type SeccompProfile struct {
	DefaultAction string           `json:"defaultAction"`
	Architectures []string         `json:"architectures"`
	Syscalls      []SeccompSyscall `json:"syscalls"`
}

// SeccompSyscall binds a group of syscall names to one action.
type SeccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

const (
	actAllow = "SCMP_ACT_ALLOW"
	actErrno = "SCMP_ACT_ERRNO"
)

// DefaultSeccompProfile returns the built-in filter: a default-deny profile
// with an allow list wide enough for the supported compilers and runtimes.
// The trailing deny entries stay explicit so the denial survives any future
// widening of the allow list.
func DefaultSeccompProfile() *SeccompProfile {
	return &SeccompProfile{
		DefaultAction: actErrno,
		Architectures: []string{
			"SCMP_ARCH_X86_64",
			"SCMP_ARCH_X86",
			"SCMP_ARCH_AARCH64",
			"SCMP_ARCH_ARM",
		},
		Syscalls: []SeccompSyscall{
			// File IO
			{Names: []string{"read", "write", "readv", "writev", "pread64", "pwrite64", "preadv", "pwritev", "preadv2", "pwritev2", "lseek", "close", "close_range"}, Action: actAllow},
			{Names: []string{"open", "openat", "openat2", "creat", "access", "faccessat", "faccessat2"}, Action: actAllow},
			{Names: []string{"stat", "fstat", "lstat", "newfstatat", "statx", "statfs", "fstatfs"}, Action: actAllow},
			{Names: []string{"getdents", "getdents64", "getcwd", "chdir", "fchdir"}, Action: actAllow},
			{Names: []string{"mkdir", "mkdirat", "rmdir", "rename", "renameat", "renameat2", "unlink", "unlinkat"}, Action: actAllow},
			{Names: []string{"link", "linkat", "symlink", "symlinkat", "readlink", "readlinkat"}, Action: actAllow},
			{Names: []string{"chmod", "fchmod", "fchmodat", "umask", "chown", "fchown", "lchown", "fchownat"}, Action: actAllow},
			{Names: []string{"truncate", "ftruncate", "fallocate", "fsync", "fdatasync", "sync", "syncfs", "fadvise64", "readahead"}, Action: actAllow},
			{Names: []string{"utime", "utimes", "utimensat", "futimesat", "mknod", "mknodat"}, Action: actAllow},
			{Names: []string{"getxattr", "lgetxattr", "fgetxattr", "listxattr", "llistxattr", "flistxattr"}, Action: actAllow},
			// Memory
			{Names: []string{"mmap", "munmap", "mprotect", "mremap", "brk", "madvise", "mincore"}, Action: actAllow},
			{Names: []string{"mlock", "mlock2", "munlock", "mlockall", "munlockall", "membarrier"}, Action: actAllow},
			// Signals
			{Names: []string{"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "rt_sigpending", "rt_sigtimedwait", "rt_sigqueueinfo", "rt_sigsuspend", "sigaltstack"}, Action: actAllow},
			{Names: []string{"kill", "tkill", "tgkill", "pause"}, Action: actAllow},
			// Processes and threads
			{Names: []string{"clone", "clone3", "fork", "vfork", "execve", "execveat", "exit", "exit_group", "wait4", "waitid"}, Action: actAllow},
			{Names: []string{"getpid", "getppid", "gettid", "getpgid", "getpgrp", "setpgid", "getsid", "setsid"}, Action: actAllow},
			{Names: []string{"futex", "set_tid_address", "set_robust_list", "get_robust_list", "set_thread_area", "get_thread_area", "arch_prctl", "prctl", "rseq"}, Action: actAllow},
			// Credentials (needed by runtimes that drop or inspect ids)
			{Names: []string{"getuid", "geteuid", "getgid", "getegid", "getgroups", "getresuid", "getresgid"}, Action: actAllow},
			{Names: []string{"setuid", "setgid", "setgroups", "setreuid", "setregid", "setresuid", "setresgid", "setfsuid", "setfsgid", "capget", "capset"}, Action: actAllow},
			// Scheduling
			{Names: []string{"sched_yield", "sched_getaffinity", "sched_setaffinity", "sched_getparam", "sched_setparam", "sched_getscheduler", "sched_setscheduler", "sched_get_priority_max", "sched_get_priority_min", "sched_rr_get_interval", "getpriority", "setpriority", "getcpu"}, Action: actAllow},
			// Time
			{Names: []string{"nanosleep", "clock_nanosleep", "clock_gettime", "clock_getres", "gettimeofday", "time", "times", "getitimer", "setitimer", "alarm"}, Action: actAllow},
			{Names: []string{"timer_create", "timer_settime", "timer_gettime", "timer_getoverrun", "timer_delete", "timerfd_create", "timerfd_settime", "timerfd_gettime"}, Action: actAllow},
			// Polling and notification
			{Names: []string{"poll", "ppoll", "select", "pselect6", "epoll_create", "epoll_create1", "epoll_ctl", "epoll_wait", "epoll_pwait", "epoll_pwait2"}, Action: actAllow},
			{Names: []string{"eventfd", "eventfd2", "signalfd", "signalfd4", "inotify_init", "inotify_init1", "inotify_add_watch", "inotify_rm_watch"}, Action: actAllow},
			// Pipes and descriptors
			{Names: []string{"pipe", "pipe2", "dup", "dup2", "dup3", "fcntl", "flock", "ioctl"}, Action: actAllow},
			{Names: []string{"splice", "tee", "vmsplice", "sendfile", "copy_file_range"}, Action: actAllow},
			// Local sockets (network access is removed at the container level)
			{Names: []string{"socket", "socketpair", "connect", "bind", "listen", "accept", "accept4", "getsockname", "getpeername", "setsockopt", "getsockopt", "shutdown"}, Action: actAllow},
			{Names: []string{"sendto", "recvfrom", "sendmsg", "recvmsg", "sendmmsg", "recvmmsg"}, Action: actAllow},
			// System information and limits
			{Names: []string{"uname", "sysinfo", "getrusage", "getrlimit", "setrlimit", "prlimit64"}, Action: actAllow},
			{Names: []string{"getrandom", "memfd_create", "restart_syscall"}, Action: actAllow},
			// Denied even though the default action already blocks them.
			{Names: []string{"ptrace", "process_vm_readv", "process_vm_writev", "kcmp"}, Action: actErrno},
			{Names: []string{"mount", "umount2", "pivot_root", "chroot"}, Action: actErrno},
			{Names: []string{"reboot", "swapon", "swapoff", "kexec_load", "kexec_file_load"}, Action: actErrno},
			{Names: []string{"init_module", "finit_module", "delete_module"}, Action: actErrno},
			{Names: []string{"bpf", "perf_event_open", "userfaultfd"}, Action: actErrno},
			{Names: []string{"keyctl", "add_key", "request_key"}, Action: actErrno},
			{Names: []string{"acct", "settimeofday", "clock_settime", "sethostname", "setdomainname"}, Action: actErrno},
			{Names: []string{"setns", "unshare"}, Action: actErrno},
			{Names: []string{"io_uring_setup", "io_uring_enter", "io_uring_register"}, Action: actErrno},
		},
	}
}

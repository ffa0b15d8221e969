package forkexec

import (
	"fmt"
	"syscall"
)

// ErrorLocation 定义了子进程启动失败的具体位置
type ErrorLocation int

// ChildError 是子进程在 execve 之前发生的错误，
// 通过管道回传给父进程
type ChildError struct {
	Err      syscall.Errno // 系统调用错误码
	Location ErrorLocation // 错误发生的位置
	Index    int           // 操作序号（如果适用，例如第几条 rlimit）
}

// 错误位置按子进程初始化的顺序排列
const (
	LocClone ErrorLocation = iota + 1
	LocCloseWrite
	LocGetPid
	LocDup3
	LocFcntl
	LocSetSid
	LocIoctl
	LocChdir
	LocSetRlimit
	LocSetNoNewPrivs
	LocPtraceMe
	LocStop
	LocSeccomp
	LocSyncWrite
	LocSyncRead
	LocExecve
)

var locToString = []string{
	"unknown",
	"clone",
	"close_write",
	"getpid",
	"dup3",
	"fcntl",
	"setsid",
	"ioctl",
	"chdir",
	"setrlimit",
	"set_no_new_privs",
	"ptrace_me",
	"stop",
	"seccomp",
	"sync_write",
	"sync_read",
	"execve",
}

func (e ErrorLocation) String() string {
	if e >= LocClone && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

func (e ChildError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s(%d): %s", e.Location.String(), e.Index, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Location.String(), e.Err.Error())
}

// Package forkexec 提供创建被跟踪子进程的功能：
// clone 后在子进程中完成描述符映射、资源限制、PTRACE_TRACEME
// 与可选的 seccomp 加载，最终 execve 目标程序
package forkexec

import (
	"syscall"

	"github.com/zqzqsb/sctrace/pkg/rlimit"
)

// Runner 是创建被跟踪子进程的配置
type Runner struct {
	// Args 和 Env 用于子进程的 execve 系统调用
	// Args[0] 是要执行的程序路径，Env 格式为 "KEY=VALUE"
	Args []string
	Env  []string

	// ExecFile 如果大于 0，使用 execveat 通过文件描述符执行程序
	ExecFile uintptr

	// RLimits 定义了通过 setrlimit 设置的资源限制
	RLimits []rlimit.RLimit

	// Files 定义了子进程的文件描述符映射
	// 索引对应新进程中的描述符编号（0/1/2 为标准输入/输出/错误）
	Files []uintptr

	// WorkDir 设置子进程的工作目录（为空则继承）
	WorkDir string

	// Seccomp 为可选的 seccomp 过滤器
	// 与 Ptrace 同时使用时子进程会在加载过滤器前与父进程同步
	Seccomp *syscall.SockFprog

	// Ptrace 控制子进程调用 ptrace(PTRACE_TRACEME)
	// 跟踪器必须先 runtime.LockOSThread 再调用 Start
	Ptrace bool

	// NoNewPrivs 通过 prctl(PR_SET_NO_NEW_PRIVS) 禁用 setuid 提权
	// 提供 seccomp 过滤器时自动启用
	NoNewPrivs bool

	// StopBeforeSeccomp 在加载 seccomp 前通过 kill(getpid(), SIGSTOP)
	// 等待跟踪器；同时启用 seccomp 与 ptrace 时自动启用，
	// 因为 execve 可能被过滤器跟踪，不能在 seccomp 之后再停止
	StopBeforeSeccomp bool

	// SyncFunc 在子进程 execve 之前被父进程调用，参数为子进程 pid
	// 返回错误时子进程被终止，启动失败
	SyncFunc func(int) error

	// CTTY 指定是否将文件描述符 0 设置为控制终端
	CTTY bool
}

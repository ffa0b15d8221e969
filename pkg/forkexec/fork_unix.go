package forkexec

// 导入 unsafe 是为了使用 go:linkname 链接 runtime 的 fork 钩子
import _ "unsafe"

// beforeFork 在 fork 之前锁定线程、刷新 I/O 并保存信号掩码
//
//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

// afterFork 在父进程侧恢复被锁定的线程与信号处理
//
//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

// afterForkInChild 在子进程侧重置运行时状态
// 此时子进程中只有当前线程存在
//
//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

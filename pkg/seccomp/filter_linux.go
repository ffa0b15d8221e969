// Package seccomp 提供了 seccomp 过滤器的生成功能。
// seccomp (secure computing mode) 是 Linux 内核提供的安全机制，
// 用于限制进程可以使用的系统调用。
package seccomp

import "syscall"

// Filter 是 BPF 格式的 seccomp 过滤器。
// 每个 SockFilter 结构体表示一条在内核虚拟机中执行的 BPF 指令
type Filter []syscall.SockFilter

// SockFprog 将 Filter 转换为内核可以理解的 SockFprog 格式，
// 用于 prctl(PR_SET_SECCOMP, SECCOMP_MODE_FILTER, prog)。
// Filter 指针必须指向连续内存，因此取切片底层数组的指针
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}

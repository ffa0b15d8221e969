package ptracer

import (
	"syscall"
)

/*
	; x86_64 系统调用参数顺序
	syscall_number -> rax    ; 系统调用号
	arg0 -> rdi              ; 第1个参数
	arg1 -> rsi              ; 第2个参数
	arg2 -> rdx              ; 第3个参数
	arg3 -> r10              ; 第4个参数（注意：不是 rcx）
	arg4 -> r8               ; 第5个参数
	arg5 -> r9               ; 第6个参数
*/

// SyscallNo 获取当前系统调用号
func (c *Context) SyscallNo() uint {
	// rax 会被返回值覆盖，Orig_rax 保存原始调用号
	return uint(c.regs.Orig_rax)
}

// Arg0 获取当前系统调用的 arg0
func (c *Context) Arg0() uint {
	return uint(c.regs.Rdi)
}

// Arg1 获取当前系统调用的 arg1
func (c *Context) Arg1() uint {
	return uint(c.regs.Rsi)
}

// Arg2 获取当前系统调用的 arg2
func (c *Context) Arg2() uint {
	return uint(c.regs.Rdx)
}

// Arg3 获取当前系统调用的 arg3
func (c *Context) Arg3() uint {
	return uint(c.regs.R10)
}

// Arg4 获取当前系统调用的 arg4
func (c *Context) Arg4() uint {
	return uint(c.regs.R8)
}

// Arg5 获取当前系统调用的 arg5
func (c *Context) Arg5() uint {
	return uint(c.regs.R9)
}

// ReturnValue 获取系统调用返回值，仅在出口停止点有意义。
// 负值对应 -errno
func (c *Context) ReturnValue() int {
	return int(int64(c.regs.Rax))
}

// SetReturnValue 设置系统调用返回值，在出口恢复前写回寄存器
func (c *Context) SetReturnValue(retval int) {
	c.regs.Rax = uint64(retval)
	c.dirty = true
}

// skipSyscall 跳过当前系统调用
// 将系统调用号设置为 -1，内核不会执行任何调用并返回 ENOSYS
// https://www.kernel.org/doc/Documentation/prctl/seccomp_filter.txt
func (c *Context) skipSyscall() error {
	c.regs.Orig_rax = ^uint64(0)
	c.dirty = false
	return syscall.PtraceSetRegs(c.Pid, &c.regs)
}

// ptraceGetRegSet 获取寄存器集，进程必须处于停止状态
func ptraceGetRegSet(pid int, regs *syscall.PtraceRegs) error {
	return syscall.PtraceGetRegs(pid, regs)
}

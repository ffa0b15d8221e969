package ptracer

import (
	"os"
	"syscall"
)

// Context 是一次系统调用停止点的寄存器快照上下文。
// 它同时充当跨进程内存读取的入口：指针参数只在子进程
// 完全停止期间才可以安全解引用。
type Context struct {
	// Pid 是当前上下文进程的 pid
	Pid int
	// 当前寄存器上下文（平台相关）
	regs syscall.PtraceRegs
	// 处理器修改过寄存器但尚未写回
	dirty bool
}

var (
	// UseVMReadv 决定是否使用 process_vm_readv 系统调用读取子进程内存
	// 初始为 true，如果调用失败并返回 ENOSYS 则回退到 PTRACE_PEEKDATA
	UseVMReadv = true
	pageSize   = 4 << 10
)

func init() {
	pageSize = os.Getpagesize()
}

func getTrapContext(pid int) (*Context, error) {
	var regs syscall.PtraceRegs
	if err := ptraceGetRegSet(pid, &regs); err != nil {
		return nil, err
	}
	return &Context{
		Pid:  pid,
		regs: regs,
	}, nil
}

// ProcessID 返回快照所属的被跟踪进程 pid
func (c *Context) ProcessID() int {
	return c.Pid
}

// flushRegs 将处理器修改过的寄存器写回子进程
func (c *Context) flushRegs() error {
	if !c.dirty {
		return nil
	}
	c.dirty = false
	return syscall.PtraceSetRegs(c.Pid, &c.regs)
}

// Package trace 把 ptrace 跟踪循环、分发表与文件状态模型组装成
// 针对单个子进程的系统调用观察引擎
package trace

import (
	"fmt"
	"os"
	"path"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/sctrace/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/sctrace/ptracer"
	"github.com/zqzqsb/sctrace/runner/trace/filestate"
)

// BanRet 是系统调用被软禁用时写入的错误码
var BanRet = syscall.EACCES

// tracerHandler 实现 ptracer.Handler，在两个停止点之间完成
// 调用识别、分发和状态更新
type tracerHandler struct {
	ShowDetails bool
	Config      *SyscallConfig
	State       *filestate.ProcessState
	Counter     *SyscallCounter
	Logger      logrus.FieldLogger

	// pendingExit 是入口处解析出的出口处理器，在匹配的出口一次性消费。
	// 软禁用会把调用号改写为 -1，出口不能再按调用号查表；
	// 单子进程下入口与出口严格交替，入口解析一次即可
	pendingExit ExitHandler
}

// Debug 输出调试信息，只在 ShowDetails 为 true 时生效
func (h *tracerHandler) Debug(v ...interface{}) {
	if !h.ShowDetails {
		return
	}
	if h.Logger != nil {
		h.Logger.Debugln(v...)
		return
	}
	fmt.Fprintln(os.Stderr, v...)
}

// HandleEnter 在入口停止点识别系统调用并分发入口处理器。
// 未注册的调用直接放行，不产生交接值也不改动任何状态
func (h *tracerHandler) HandleEnter(ctx *ptracer.Context) (ptracer.Handoff, ptracer.TraceAction) {
	return h.enter(ctx)
}

// HandleExit 在出口停止点分发出口处理器，更新文件状态模型
func (h *tracerHandler) HandleExit(hd ptracer.Handoff, ctx *ptracer.Context) {
	h.exit(hd, ctx)
}

func (h *tracerHandler) enter(s Syscall) (ptracer.Handoff, ptracer.TraceAction) {
	no := s.SyscallNo()
	name, err := libseccomp.ToSyscallName(no)
	if err != nil {
		// 调用号在本架构上无名称，按未注册放行
		h.Debug("syscall:", no, "(unknown)")
		return nil, ptracer.TraceAllow
	}
	h.Debug("syscall:", no, name)

	if h.Counter != nil && !h.Counter.Tick(name) {
		h.Debug("syscall count exceeded:", name)
		return nil, ptracer.TraceKill
	}

	e, ok := h.Config.Lookup(no)
	if !ok {
		return nil, ptracer.TraceAllow
	}
	h.pendingExit = e.OnExit
	if e.OnEnter == nil {
		return nil, ptracer.TraceAllow
	}
	hd, action := e.OnEnter(s, h.State)
	if action == ptracer.TraceBan {
		h.Debug("<soft ban syscall>", name)
		softBanSyscall(s)
	}
	return hd, action
}

func (h *tracerHandler) exit(hd ptracer.Handoff, s Syscall) {
	onExit := h.pendingExit
	h.pendingExit = nil
	if onExit == nil {
		return
	}
	onExit(hd, s, h.State)
}

// softBanSyscall 软禁用系统调用，不杀死进程而是返回错误码
func softBanSyscall(s Syscall) {
	s.SetReturnValue(-int(BanRet))
}

// getProcCwd 获取进程的当前工作目录
func getProcCwd(pid int) string {
	fileName := "/proc/self/cwd"
	if pid > 0 {
		fileName = fmt.Sprintf("/proc/%d/cwd", pid)
	}
	s, err := os.Readlink(fileName)
	if err != nil {
		return ""
	}
	return s
}

// absPath 计算进程相对的绝对路径
func absPath(pid int, p string) string {
	// 相对路径基于进程的工作目录计算
	if !path.IsAbs(p) {
		return path.Join(getProcCwd(pid), p)
	}
	return path.Clean(p)
}

// absPathAt 计算 *at 族调用的绝对路径：相对路径在 dirfd 指向的
// 目录下解析，AT_FDCWD 或目录读取失败时退回工作目录
func absPathAt(pid, dirfd int, p string) string {
	if !path.IsAbs(p) && dirfd != unix.AT_FDCWD {
		if base, err := os.Readlink(procFdPath(pid, dirfd)); err == nil {
			return path.Join(base, p)
		}
	}
	return absPath(pid, p)
}

func procFdPath(pid, fd int) string {
	if pid > 0 {
		return fmt.Sprintf("/proc/%d/fd/%d", pid, fd)
	}
	return fmt.Sprintf("/proc/self/fd/%d", fd)
}

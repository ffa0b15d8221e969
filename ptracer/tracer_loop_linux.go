package ptracer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	unix "golang.org/x/sys/unix"

	"github.com/zqzqsb/sctrace/runner"
)

/*
	Trace 启动并跟踪目标进程

Trace 在当前 goroutine 中启动被跟踪的子进程并驱动两阶段停止循环。
每个系统调用经历两次停止：入口停止（参数可读、指针可解引用）与
出口停止（返回值可读）。寄存器只在进程完全停止时有效，因此每个
阶段边界都需要一次 resume/wait 对，这是同时看到请求参数与实际
结果的唯一无竞争方式。

注意事项：
 1. ptrace 基于线程，必须锁定当前 goroutine 到 OS 线程
 2. 在整个跟踪过程中保持线程锁定
 3. Runner.Start 必须让子进程在 execve 处于停止状态
*/
func (t *Tracer) Trace(c context.Context) (result runner.Result) {
	// Goroutine 1 -----> OS Thread 1  -----> Child Process
	//                   (locked)            (being traced)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pid, err := t.Runner.Start()
	t.Handler.Debug("tracer started:", pid, err)
	if err != nil {
		t.Handler.Debug("failed to start traced process:", err)
		result.Status = runner.StatusRunnerError
		result.Error = err.Error()
		return
	}
	return t.trace(c, pid)
}

// 两阶段停止循环的状态机：
//
//	Idle（子进程运行）→ PreStop（入口停止）→ Running（内核执行调用）
//	→ PostStop（出口停止）→ Idle，终态为 Exited
type traceLoop struct {
	*Tracer
	pid int

	// insyscall 为 true 表示子进程处于内核执行阶段，
	// 下一个系统调用停止是出口
	insyscall bool
	// 入口处理器产生的交接值，在匹配的出口消费
	handoff Handoff
	// 入口处被跳过的调用，出口时需要写入处理器指定的返回值
	skipped bool
	skipRet int

	fTime time.Time
}

func newTraceLoop(t *Tracer, pid int) *traceLoop {
	return &traceLoop{Tracer: t, pid: pid}
}

func (t *Tracer) trace(c context.Context, pid int) (result runner.Result) {
	cc, cancel := context.WithCancel(c)
	defer cancel()

	// 上下文取消时终止子进程，循环随后在 wait 中观察到退出
	go func() {
		<-cc.Done()
		killProcess(pid)
	}()

	sTime := time.Now()
	lp := newTraceLoop(t, pid)

	defer func() {
		if err := recover(); err != nil {
			t.Handler.Debug("panic occurred:", err)
			result.Status = runner.StatusRunnerError
			result.Error = fmt.Sprintf("%v", err)
		}
		killProcess(pid)
		collectZombie(pid)
		if !lp.fTime.IsZero() {
			result.SetUpTime = lp.fTime.Sub(sTime)
			result.RunningTime = time.Since(lp.fTime)
		}
	}()

	// 等待 execve 触发的首次停止，建立跟踪选项
	var (
		wstatus unix.WaitStatus
		rusage  unix.Rusage
	)
	if err := waitStop(pid, &wstatus, &rusage); err != nil {
		result.Status = runner.StatusRunnerError
		result.Error = err.Error()
		return
	}
	if !wstatus.Stopped() {
		result.Status = runner.StatusRunnerError
		result.Error = "child exited before initial trap"
		return
	}
	if err := setPtraceOption(pid); err != nil {
		t.Handler.Debug("failed to set ptrace options:", err)
		result.Status = runner.StatusRunnerError
		result.Error = err.Error()
		return
	}
	lp.fTime = time.Now()

	// 请求在下一个系统调用停止
	if err := unix.PtraceSyscall(pid, 0); err != nil {
		result.Status = runner.StatusRunnerError
		result.Error = err.Error()
		return
	}

	for {
		_, err := unix.Wait4(pid, &wstatus, unix.WALL, &rusage)
		if err == unix.EINTR {
			t.Handler.Debug("wait4 interrupted")
			continue
		}
		if err != nil {
			t.Handler.Debug("wait4 failed:", err)
			result.Status = runner.StatusRunnerError
			result.Error = err.Error()
			return
		}

		// 资源使用检查
		userTime, userMem, curStatus := t.checkUsage(rusage)
		result.Status = curStatus
		result.Time = userTime
		result.Memory = userMem
		if curStatus != runner.StatusNormal {
			return
		}

		status, exitStatus, errStr, finished := lp.handle(wstatus)
		if finished || status != runner.StatusNormal {
			result.Status = status
			result.ExitStatus = exitStatus
			result.Error = errStr
			return
		}
	}
}

func (t *Tracer) checkUsage(rusage unix.Rusage) (time.Duration, runner.Size, runner.Status) {
	status := runner.StatusNormal
	userTime := time.Duration(rusage.Utime.Nano()) // 纳秒
	userMem := runner.Size(rusage.Maxrss << 10)    // 字节

	if t.Limit.TimeLimit > 0 && userTime > t.Limit.TimeLimit {
		status = runner.StatusTimeLimitExceeded
	}
	if t.Limit.MemoryLimit > 0 && userMem > t.Limit.MemoryLimit {
		status = runner.StatusMemoryLimitExceeded
	}
	return userTime, userMem, status
}

// handle 处理一次 wait 返回的进程状态变化并完成状态机迁移
func (lp *traceLoop) handle(wstatus unix.WaitStatus) (status runner.Status, exitStatus int, errStr string, finished bool) {
	status = runner.StatusNormal

	switch {
	// 1. 进程正常退出
	case wstatus.Exited():
		lp.Handler.Debug("process exited:", lp.pid, "status:", wstatus.ExitStatus())
		finished = true
		exitStatus = wstatus.ExitStatus()
		if exitStatus == 0 {
			status = runner.StatusNormal
		} else {
			status = runner.StatusNonzeroExitStatus
		}
		return

	// 2. 进程被信号终止
	case wstatus.Signaled():
		sig := wstatus.Signal()
		lp.Handler.Debug("process terminated by signal:", lp.pid, "signal:", sig)
		finished = true
		status = runner.StatusSignalled
		exitStatus = int(sig)
		errStr = fmt.Sprintf("process killed by signal %d", sig)
		return

	// 3. 进程停止
	case wstatus.Stopped():
		sig := wstatus.StopSignal()

		switch {
		case sig == sigTraceSysGood:
			// 系统调用停止（TRACESYSGOOD 置位）
			resume, st := lp.handleSyscallStop()
			if st != runner.StatusNormal {
				status = st
				errStr = st.Error()
				return
			}
			if !resume {
				// 进程已消失，等待 wait 报告最终退出状态
				return
			}
			sig = 0

		case sig == unix.SIGTRAP:
			// exec 或其他跟踪陷阱，不传递给进程
			lp.Handler.Debug("process trap:", lp.pid, "cause:", wstatus.TrapCause())
			sig = 0

		default:
			// 普通信号停止：原样转发，不改变系统调用阶段
			lp.Handler.Debug("process got signal:", sig)
		}

		if err := unix.PtraceSyscall(lp.pid, int(sig)); err != nil {
			if err == unix.ESRCH {
				// 停止与退出之间的竞争，循环等待最终状态
				return
			}
			lp.Handler.Debug("failed to resume process:", err)
			status = runner.StatusRunnerError
			errStr = fmt.Sprintf("failed to resume process: %v", err)
			return
		}
	}
	return
}

// handleSyscallStop 处理入口或出口系统调用停止。
// 返回 resume=false 表示进程已不存在，调用方不应再恢复它
func (lp *traceLoop) handleSyscallStop() (resume bool, status runner.Status) {
	status = runner.StatusNormal

	if !lp.insyscall {
		// 入口停止：读取快照并分发入口处理器
		ctx, err := getTrapContext(lp.pid)
		if err != nil {
			if err == unix.ESRCH {
				lp.Handler.Debug("process vanished at syscall entry")
				return false, status
			}
			// 瞬时竞争：跳过本次分发，保持阶段推进
			lp.Handler.Debug("failed to read entry registers:", err)
			lp.insyscall = true
			lp.handoff = nil
			return true, status
		}

		handoff, act := lp.Handler.HandleEnter(ctx)
		switch act {
		case TraceBan:
			// 处理器已通过 SetReturnValue 指定返回值；
			// 内核会在出口覆盖 rax，记下来出口时再写入
			lp.skipped = true
			lp.skipRet = ctx.ReturnValue()
			if err := ctx.skipSyscall(); err != nil {
				lp.Handler.Debug("failed to skip syscall:", err)
			}
		case TraceKill:
			return true, runner.StatusDisallowedSyscall
		default:
			if err := ctx.flushRegs(); err != nil {
				lp.Handler.Debug("failed to write entry registers:", err)
			}
		}
		lp.handoff = handoff
		lp.insyscall = true
		return true, status
	}

	// 出口停止：读取结果并分发出口处理器
	handoff := lp.handoff
	lp.handoff = nil
	lp.insyscall = false

	ctx, err := getTrapContext(lp.pid)
	if err != nil {
		lp.skipped = false
		if err == unix.ESRCH {
			// 进程已终止：优雅退出路径，而不是错误
			lp.Handler.Debug("process terminated")
			return false, status
		}
		// 其他读取失败视为信号投递与进程状态之间的瞬时竞争
		lp.Handler.Debug("failed to read exit registers:", err)
		return true, status
	}

	if lp.skipped {
		ctx.SetReturnValue(lp.skipRet)
		lp.skipped = false
	}
	lp.Handler.HandleExit(handoff, ctx)
	if err := ctx.flushRegs(); err != nil {
		lp.Handler.Debug("failed to write exit registers:", err)
	}
	return true, status
}

// sigTraceSysGood 是设置 PTRACE_O_TRACESYSGOOD 后系统调用停止的信号值，
// 用于与真实的 SIGTRAP 区分
const sigTraceSysGood = unix.Signal(int(unix.SIGTRAP) | 0x80)

// waitStop 等待子进程的下一次状态变化，重试被中断的 wait
func waitStop(pid int, wstatus *unix.WaitStatus, rusage *unix.Rusage) error {
	for {
		_, err := unix.Wait4(pid, wstatus, unix.WALL, rusage)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// setPtraceOption 设置 ptrace 选项：
// TRACESYSGOOD 区分系统调用停止，EXITKILL 保证跟踪器退出时子进程不会失控，
// TRACESECCOMP 让过滤器的 RET_TRACE 判定产生事件停止而不是 ENOSYS
func setPtraceOption(pid int) error {
	if err := unix.PtraceSetOptions(pid, unix.PTRACE_O_TRACESYSGOOD|unix.PTRACE_O_EXITKILL|unix.PTRACE_O_TRACESECCOMP); err != nil {
		return fmt.Errorf("failed to set ptrace options: %v", err)
	}
	return nil
}

// killProcess 终止被跟踪的进程
func killProcess(pid int) {
	unix.Kill(pid, unix.SIGKILL)
}

// collectZombie 回收已终止的子进程
func collectZombie(pid int) {
	var (
		wstatus unix.WaitStatus
		rusage  unix.Rusage
	)
	for {
		p, err := unix.Wait4(pid, &wstatus, unix.WNOHANG, &rusage)
		if err != nil || p <= 0 {
			return
		}
	}
}

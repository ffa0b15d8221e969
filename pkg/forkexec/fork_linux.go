package forkexec

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Start 创建被跟踪子进程：
// 1. clone 创建子进程
// 2. 子进程完成描述符、rlimit、ptrace/seccomp 配置
// 3. execve 目标程序
//
// 如果启用了 Ptrace，调用前必须锁定当前 OS 线程，
// 返回时子进程已（或即将）处于首次停止状态
func (r *Runner) Start() (int, error) {
	argv0, argv, env, err := prepareExec(r.Args, r.Env)
	if err != nil {
		return 0, err
	}

	workdir, err := syscallStringFromString(r.WorkDir)
	if err != nil {
		return 0, err
	}

	// 创建一对 socket 用于父子进程同步：
	// p[0] 由父进程使用，p[1] 由子进程使用
	p, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}

	pid, err1 := forkAndExecInChild(r, argv0, argv, env, workdir, p)

	afterFork()
	syscall.ForkLock.Unlock()

	return syncWithChild(r, p, int(pid), err1)
}

// syncWithChild 完成父进程侧的同步：
// 读取子进程可能回传的错误、执行 SyncFunc 并发出继续信号
func syncWithChild(r *Runner, p [2]int, pid int, err1 syscall.Errno) (int, error) {
	var (
		err2     syscall.Errno
		err      error
		childErr ChildError
	)

	// 关闭子进程端的管道
	unix.Close(p[1])

	if err1 != 0 {
		unix.Close(p[0])
		childErr.Location = LocClone
		childErr.Err = err1
		return 0, childErr
	}

	// 读取子进程在 execve 前可能回传的错误
	n, err := readChildErr(p[0], &childErr)
	if (n != int(unsafe.Sizeof(err2)) && n != int(unsafe.Sizeof(childErr))) || childErr.Err != 0 || err != nil {
		childErr.Err = handlePipeError(n, childErr.Err)
		goto fail
	}

	// 执行用户定义的同步函数（如果有）
	if r.SyncFunc != nil {
		if err = r.SyncFunc(pid); err != nil {
			goto fail
		}
	}
	// 向子进程发送确认信号
	syscall.RawSyscall(syscall.SYS_WRITE, uintptr(p[0]), uintptr(unsafe.Pointer(&err1)), uintptr(unsafe.Sizeof(err1)))

	// ptrace 模式下子进程会在 execve 处停止，
	// 在另一个 goroutine 中收尾读取，避免 SIGPIPE
	if r.Ptrace || r.StopBeforeSeccomp {
		go func() {
			readChildErr(p[0], &childErr)
			unix.Close(p[0])
		}()
		return pid, nil
	}

	// 检查子进程在同步后是否失败
	n, err = readChildErr(p[0], &childErr)
	unix.Close(p[0])
	if n != 0 || err != nil {
		childErr.Err = handlePipeError(n, childErr.Err)
		goto failAfterClose
	}
	return pid, nil

fail:
	unix.Close(p[0])

failAfterClose:
	handleChildFailed(pid)
	if childErr.Err == 0 {
		return 0, err
	}
	return 0, childErr
}

// readChildErr 读取子进程错误信息，重试被 EINTR 中断的读取
func readChildErr(fd int, childErr *ChildError) (n int, err error) {
	for {
		n, err = readlen(fd, (*byte)(unsafe.Pointer(childErr)), int(unsafe.Sizeof(*childErr)))
		if err != syscall.EINTR {
			break
		}
	}
	return
}

func readlen(fd int, p *byte, np int) (n int, err error) {
	r0, _, e1 := syscall.Syscall(syscall.SYS_READ, uintptr(fd), uintptr(unsafe.Pointer(p)), uintptr(np))
	n = int(r0)
	if e1 != 0 {
		err = syscall.Errno(e1)
	}
	return
}

// handlePipeError 在读取长度不足时统一返回 EPIPE
func handlePipeError(r1 int, errno syscall.Errno) syscall.Errno {
	if uintptr(r1) >= unsafe.Sizeof(errno) {
		return syscall.Errno(errno)
	}
	return syscall.EPIPE
}

// handleChildFailed 终止启动失败的子进程并回收，避免僵尸进程
func handleChildFailed(pid int) {
	var wstatus syscall.WaitStatus
	syscall.Kill(pid, syscall.SIGKILL)
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}

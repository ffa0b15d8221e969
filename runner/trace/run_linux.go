package trace

import (
	"context"
	"syscall"

	"github.com/zqzqsb/sctrace/pkg/forkexec"
	"github.com/zqzqsb/sctrace/ptracer"
	"github.com/zqzqsb/sctrace/runner"
	"github.com/zqzqsb/sctrace/runner/trace/filestate"
)

// Run 启动并跟踪子进程直至其退出。
// 流程：
// 1. 构建启用 ptrace 的子进程运行器
// 2. 组装分发表、文件状态模型和处理器
// 3. 交给跟踪循环驱动，返回运行结果
func (r *Runner) Run(c context.Context) runner.Result {
	if r.State == nil {
		r.State = filestate.NewProcessState()
	}
	if r.Config == nil {
		cfg, err := DefaultFileConfig(0)
		if err != nil {
			return runner.Result{
				Status: runner.StatusRunnerError,
				Error:  err.Error(),
			}
		}
		r.Config = cfg
	}

	// 空过滤器表示跟踪全部系统调用
	var filter *syscall.SockFprog
	if len(r.Seccomp) > 0 {
		filter = r.Seccomp.SockFprog()
	}

	ch := &forkexec.Runner{
		Args:     r.Args,
		Env:      r.Env,
		ExecFile: r.ExecFile,
		RLimits:  r.RLimits,
		Files:    r.Files,
		WorkDir:  r.WorkDir,
		Seccomp:  filter,
		Ptrace:   true,
		SyncFunc: r.SyncFunc,
	}

	th := &tracerHandler{
		ShowDetails: r.ShowDetails,
		Config:      r.Config,
		State:       r.State,
		Counter:     r.Counter,
		Logger:      r.Logger,
	}

	tracer := ptracer.Tracer{
		Handler: th,
		Runner:  ch,
		Limit:   r.Limit,
	}
	return tracer.Trace(c)
}

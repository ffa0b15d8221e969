//go:build linux
// +build linux

package ptracer

import "github.com/zqzqsb/sctrace/runner"

// TraceAction 定义了入口处理器返回的动作
type TraceAction int

const (
	// TraceAllow 不做任何操作，放行本次系统调用
	TraceAllow TraceAction = iota
	// TraceBan 跳过系统调用，并在出口处写入由 SetReturnValue 指定的返回值
	TraceBan
	// TraceKill 表示检测到危险操作，终止被跟踪进程
	TraceKill
)

// Handoff 是入口处理器产生、由匹配的出口处理器消费的交接值。
// 对 ptracer 而言它是不透明的：同一次系统调用的入口与出口之间
// 恰好传递一次，单子进程同步循环保证不会交错。
type Handoff interface{}

// Tracer 定义了一个 ptracer 实例，每个实例只跟踪一个子进程
type Tracer struct {
	Handler
	Runner
	runner.Limit
}

// Runner 表示进程运行器
type Runner interface {
	// Start 启动子进程并返回 pid 和错误（如果失败）
	// 子进程应该启用 ptrace 并在 execve 前后停止
	Start() (int, error)
}

// Handler 定义了系统调用两阶段停止的自定义处理器
type Handler interface {
	// HandleEnter 在系统调用入口停止点调用。
	// 此时寄存器快照包含调用号与参数，指针参数仅在本次停止期间有效。
	// 返回的交接值会原样传给同一次调用的 HandleExit。
	HandleEnter(*Context) (Handoff, TraceAction)

	// HandleExit 在系统调用出口停止点调用，快照中包含实际返回值。
	HandleExit(Handoff, *Context)

	// Debug 在调试模式下打印调试信息
	Debug(v ...interface{})
}

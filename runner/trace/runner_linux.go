package trace

import (
	"github.com/sirupsen/logrus"

	"github.com/zqzqsb/sctrace/pkg/rlimit"
	"github.com/zqzqsb/sctrace/pkg/seccomp"
	"github.com/zqzqsb/sctrace/runner"
	"github.com/zqzqsb/sctrace/runner/trace/filestate"
)

// Runner 定义了跟踪运行单个子进程的全部配置。
// 一个 Runner 对应一个子进程：它独占自己的分发表和文件状态模型，
// 跟踪多个子进程时为每个子进程构建独立的实例
type Runner struct {
	// Args 定义子进程的命令行参数
	Args []string

	// Env 定义子进程的环境变量，格式 "KEY=VALUE"
	Env []string

	// WorkDir 定义子进程的工作目录，为空则继承当前目录
	WorkDir string

	// ExecFile 是要执行文件的描述符，用于 fexecve
	ExecFile uintptr

	// Files 定义子进程的文件描述符映射，索引即新进程中的 fd
	Files []uintptr

	// RLimits 定义通过 setrlimit 设置的资源限制
	RLimits []rlimit.RLimit

	// Limit 定义由跟踪器在停止点检查的时间与内存限制
	Limit runner.Limit

	// Seccomp 是可选的预过滤器，在进入内核前完成一层裁决：
	// Errno 列表的调用直接被拒绝，默认动作为 kill 时未列出的
	// 调用会终止进程。所有到达内核的调用仍经过两阶段停止
	Seccomp seccomp.Filter

	// Config 是系统调用分发表，为 nil 时使用 DefaultFileConfig
	Config *SyscallConfig

	// State 是子进程的文件状态模型。
	// 调用方持有同一实例即可在运行结束后查询文件记录，
	// 为 nil 时 Run 会自行创建
	State *filestate.ProcessState

	// Counter 可选，按名称统计并限制系统调用次数
	Counter *SyscallCounter

	// ShowDetails 控制是否输出每次停止点的调试信息
	ShowDetails bool

	// Logger 接收调试输出，为 nil 时退回标准错误输出
	Logger logrus.FieldLogger

	// SyncFunc 在子进程 exec 前以其 pid 调用，用于外部登记
	SyncFunc func(pid int) error
}

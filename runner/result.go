package runner

import (
	"fmt"
	"time"
)

// Result 是一次跟踪运行的结果
type Result struct {
	Status            // 结果状态
	ExitStatus int    // 退出状态（如果被信号终止则为信号编号）
	Error      string // 潜在的详细错误信息（用于运行器错误）

	Time   time.Duration // 使用的用户 CPU 时间（底层类型为 int64，单位纳秒）
	Memory Size          // 使用的用户内存（底层类型为 uint64，单位字节）

	// 运行器的度量指标
	SetUpTime   time.Duration // 从启动到子进程首次停止的时间
	RunningTime time.Duration // 从首次停止到结束的时间
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormal:
		return fmt.Sprintf("Result[%v %v][%v %v]", r.Time, r.Memory, r.SetUpTime, r.RunningTime)

	case StatusSignalled:
		return fmt.Sprintf("Result[Signalled(%d)][%v %v][%v %v]", r.ExitStatus, r.Time, r.Memory, r.SetUpTime, r.RunningTime)

	case StatusRunnerError:
		return fmt.Sprintf("Result[RunnerFailed(%s)][%v %v][%v %v]", r.Error, r.Time, r.Memory, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%v(%s %d)][%v %v][%v %v]", r.Status, r.Error, r.ExitStatus, r.Time, r.Memory, r.SetUpTime, r.RunningTime)
	}
}

package runner

import (
	"fmt"
	"time"
)

// Limit 定义了由跟踪器检查的资源限制
// 零值表示对应资源不做限制
type Limit struct {
	TimeLimit   time.Duration // 用户 CPU 时间限制
	MemoryLimit Size          // 内存（最大 RSS）限制
}

func (l Limit) String() string {
	return fmt.Sprintf("Limit[Time=%v, Memory=%v]", l.TimeLimit, l.MemoryLimit)
}

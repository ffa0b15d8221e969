// Package runner 定义了跟踪运行的公共接口与结果类型
package runner

import (
	"context"
)

// Runner 接口定义了启动运行的方法
type Runner interface {
	Run(context.Context) Result
}

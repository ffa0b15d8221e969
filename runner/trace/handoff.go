package trace

import (
	"fmt"

	"github.com/zqzqsb/sctrace/runner/trace/filestate"
)

// OpenIntent 是 open 族系统调用入口阶段解析出的意图。
// 路径指针只在入口停止期间有效，必须在入口阶段解析完毕，
// 出口阶段只凭交接值和返回值更新文件状态
type OpenIntent struct {
	Path  string
	Mode  filestate.AccessMode
	Flags filestate.FileFlags
}

func (i OpenIntent) String() string {
	return fmt.Sprintf("open(%q, %s, %s)", i.Path, i.Mode, i.Flags)
}

// CloseIntent 是 close 在入口阶段捕获的描述符
type CloseIntent struct {
	FD int
}

func (i CloseIntent) String() string {
	return fmt.Sprintf("close(%d)", i.FD)
}

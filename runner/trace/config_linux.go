package trace

import (
	"fmt"
	"sort"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/sctrace/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/sctrace/ptracer"
	"github.com/zqzqsb/sctrace/runner/trace/filestate"
)

// Syscall 抽象一次系统调用停止点可观察和可操作的内容。
// *ptracer.Context 实现了它，测试时可以用桩实现驱动分发逻辑
type Syscall interface {
	SyscallNo() uint
	Arg0() uint
	Arg1() uint
	Arg2() uint
	Arg3() uint
	Arg4() uint
	Arg5() uint
	ReturnValue() int
	SetReturnValue(retval int)
	ProcessID() int
	ReadBytes(addr uintptr, length int) ([]byte, error)
	ReadString(addr uintptr, max int) (string, error)
}

// EnterHandler 在入口停止点调用。
// 指针参数只在本次停止期间有效，需要解引用的内容必须在这里读取，
// 通过交接值带到出口阶段
type EnterHandler func(s Syscall, st *filestate.ProcessState) (ptracer.Handoff, ptracer.TraceAction)

// ExitHandler 在出口停止点调用，h 是入口阶段产生的交接值
type ExitHandler func(h ptracer.Handoff, s Syscall, st *filestate.ProcessState)

// ConfigEntry 是一个系统调用的处理器对，任意一侧可以为 nil
type ConfigEntry struct {
	Name    string
	OnEnter EnterHandler
	OnExit  ExitHandler
}

// SyscallConfig 是调用号到处理器对的分发表。
// 在跟踪开始前构建完成，跟踪期间只读
type SyscallConfig struct {
	entries map[uint]ConfigEntry

	// MaxStringLen 限制路径等字符串参数的扫描长度，
	// 零值使用 ptracer.DefaultMaxStringLen
	MaxStringLen int
}

// NewSyscallConfig 创建空的分发表
func NewSyscallConfig() *SyscallConfig {
	return &SyscallConfig{
		entries: make(map[uint]ConfigEntry),
	}
}

// Register 按名称注册一个处理器对，名称在本架构上解析失败时返回错误
func (c *SyscallConfig) Register(name string, e ConfigEntry) error {
	no, err := libseccomp.ToSyscallNo(name)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	e.Name = name
	c.entries[no] = e
	return nil
}

// RegisterNo 直接按调用号注册
func (c *SyscallConfig) RegisterNo(no uint, e ConfigEntry) {
	c.entries[no] = e
}

// Lookup 按调用号查找处理器对。
// 未注册的调用号返回零值表项，由调用方按直接放行处理
func (c *SyscallConfig) Lookup(no uint) (ConfigEntry, bool) {
	e, ok := c.entries[no]
	return e, ok
}

// Names 返回全部已注册调用的名称，用于构建 seccomp 预过滤
func (c *SyscallConfig) Names() []string {
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}

// DefaultFileConfig 构建覆盖文件生命周期调用的分发表：
// open / openat / creat 与 close
func DefaultFileConfig(maxStringLen int) (*SyscallConfig, error) {
	c := NewSyscallConfig()
	c.MaxStringLen = maxStringLen

	type reg struct {
		name  string
		entry ConfigEntry
	}
	regs := []reg{
		{"open", ConfigEntry{
			OnEnter: c.openEnter(cwdFD(), argPath(0), argFlags(1)),
			OnExit:  openExit,
		}},
		{"openat", ConfigEntry{
			OnEnter: c.openEnter(argDirFD(0), argPath(1), argFlags(2)),
			OnExit:  openExit,
		}},
		{"creat", ConfigEntry{
			// creat(2) 等价于 open(path, O_CREAT|O_WRONLY|O_TRUNC)
			OnEnter: c.openEnter(cwdFD(), argPath(0), fixedFlags(syscall.O_CREAT|syscall.O_WRONLY|syscall.O_TRUNC)),
			OnExit:  openExit,
		}},
		{"close", ConfigEntry{
			OnEnter: closeEnter,
			OnExit:  closeExit,
		}},
	}
	for _, r := range regs {
		if err := c.Register(r.name, r.entry); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// argPath / argFlags 选择路径和标志位所在的参数槽
func argPath(i int) func(Syscall) uintptr {
	return func(s Syscall) uintptr {
		return uintptr(arg(s, i))
	}
}

func argFlags(i int) func(Syscall) uint {
	return func(s Syscall) uint {
		return arg(s, i)
	}
}

func fixedFlags(flags uint) func(Syscall) uint {
	return func(Syscall) uint {
		return flags
	}
}

// argDirFD 取目录 fd 参数，内核按 32 位有符号数解释它
func argDirFD(i int) func(Syscall) int {
	return func(s Syscall) int {
		return int(int32(uint32(arg(s, i))))
	}
}

// cwdFD 用于没有目录 fd 参数的调用，路径总是相对工作目录
func cwdFD() func(Syscall) int {
	return func(Syscall) int {
		return unix.AT_FDCWD
	}
}

func arg(s Syscall, i int) uint {
	switch i {
	case 0:
		return s.Arg0()
	case 1:
		return s.Arg1()
	case 2:
		return s.Arg2()
	case 3:
		return s.Arg3()
	case 4:
		return s.Arg4()
	case 5:
		return s.Arg5()
	}
	return 0
}

// openEnter 在入口解析路径与打开模式，产生 OpenIntent。
// 路径读取失败只影响本次调用的记录，不影响放行
func (c *SyscallConfig) openEnter(dirfdOf func(Syscall) int, pathOf func(Syscall) uintptr, flagsOf func(Syscall) uint) EnterHandler {
	return func(s Syscall, st *filestate.ProcessState) (ptracer.Handoff, ptracer.TraceAction) {
		path, err := s.ReadString(pathOf(s), c.MaxStringLen)
		if err != nil {
			return nil, ptracer.TraceAllow
		}
		mode, flags := filestate.ParseOpenFlags(flagsOf(s))
		return OpenIntent{
			Path:  absPathAt(s.ProcessID(), dirfdOf(s), path),
			Mode:  mode,
			Flags: flags,
		}, ptracer.TraceAllow
	}
}

// openExit 按真实返回值更新文件状态：
// 成功登记为 Opened，失败登记为 OpenFailed
func openExit(h ptracer.Handoff, s Syscall, st *filestate.ProcessState) {
	in, ok := h.(OpenIntent)
	if !ok {
		return
	}
	if fd := s.ReturnValue(); fd >= 0 {
		st.RecordOpen(fd, in.Path, in.Mode, in.Flags)
	} else {
		st.RecordOpenFailure(in.Path, in.Mode, in.Flags)
	}
}

func closeEnter(s Syscall, st *filestate.ProcessState) (ptracer.Handoff, ptracer.TraceAction) {
	return CloseIntent{FD: int(s.Arg0())}, ptracer.TraceAllow
}

// closeExit 只在 close 成功时迁移记录，失败的 close 不改变状态
func closeExit(h ptracer.Handoff, s Syscall, st *filestate.ProcessState) {
	in, ok := h.(CloseIntent)
	if !ok {
		return
	}
	if s.ReturnValue() == 0 {
		st.RecordClose(in.FD)
	}
}

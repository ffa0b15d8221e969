package libseccomp

import (
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"

	"github.com/zqzqsb/sctrace/pkg/seccomp"
)

// Builder 用于构建 seccomp 过滤器。
// 对于跟踪引擎，Errno 列表让调用方在进入内核前就拒绝指定调用，
// 被拒绝的调用依然会经过两阶段停止，引擎本身不承载任何策略
type Builder struct {
	Allow   []string // 直接放行的系统调用
	Trace   []string // 交给跟踪器处理的系统调用
	Errno   []string // 直接以 EACCES 拒绝的系统调用
	Default Action   // 不在上述列表中时的默认动作
}

var (
	actTrace = libseccomp.ActionTrace
	// SECCOMP_RET_DATA 在动作值低 16 位，库没有公开设置它的接口，
	// 错误码按位拼入
	actErrno = libseccomp.Action(uint32(libseccomp.ActionErrno) | uint32(syscall.EACCES)&0xffff)
)

// Build 将 Builder 中的配置编译为内核可加载的 BPF 过滤器。
// 策略校验拒绝重复的调用名，同名调用以先出现的列表为准，
// Allow 优先于 Trace 优先于 Errno
func (b *Builder) Build() (seccomp.Filter, error) {
	var (
		groups []libseccomp.SyscallGroup
		seen   = make(map[string]bool)
	)
	appendGroup := func(action libseccomp.Action, names []string) {
		uniq := make([]string, 0, len(names))
		for _, n := range names {
			if seen[n] {
				continue
			}
			seen[n] = true
			uniq = append(uniq, n)
		}
		if len(uniq) > 0 {
			groups = append(groups, libseccomp.SyscallGroup{
				Action: action,
				Names:  uniq,
			})
		}
	}
	appendGroup(libseccomp.ActionAllow, b.Allow)
	appendGroup(actTrace, b.Trace)
	appendGroup(actErrno, b.Errno)

	policy := libseccomp.Policy{
		DefaultAction: ToSeccompAction(b.Default),
		Syscalls:      groups,
	}

	program, err := policy.Assemble()
	if err != nil {
		return nil, err
	}
	return ExportBPF(program)
}

// ExportBPF 将 BPF 指令序列汇编为内核可读的过滤器
func ExportBPF(filter []bpf.Instruction) (seccomp.Filter, error) {
	raw, err := bpf.Assemble(filter)
	if err != nil {
		return nil, err
	}
	return sockFilter(raw), nil
}

func sockFilter(raw []bpf.RawInstruction) []syscall.SockFilter {
	filter := make([]syscall.SockFilter, 0, len(raw))
	for _, instruction := range raw {
		filter = append(filter, syscall.SockFilter{
			Code: instruction.Op,
			Jt:   instruction.Jt,
			Jf:   instruction.Jf,
			K:    instruction.K,
		})
	}
	return filter
}

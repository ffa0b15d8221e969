package libseccomp

import (
	"fmt"

	"github.com/elastic/go-seccomp-bpf/arch"
)

// info 是当前系统架构的系统调用映射表，
// 包含系统调用号与名称之间的双向映射
var info, errInfo = arch.GetInfo("")

// ToSyscallName 将系统调用号转换为对应的系统调用名称
func ToSyscallName(sysno uint) (string, error) {
	if errInfo != nil {
		return "", errInfo
	}
	n, ok := info.SyscallNumbers[int(sysno)]
	if !ok {
		return "", fmt.Errorf("syscall no %d does not exist", sysno)
	}
	return n, nil
}

// ToSyscallNo 将系统调用名称转换为当前架构上的调用号。
// 名称在当前架构不存在时返回错误（例如 arm64 上的 open）
func ToSyscallNo(name string) (uint, error) {
	if errInfo != nil {
		return 0, errInfo
	}
	no, ok := info.SyscallNames[name]
	if !ok {
		return 0, fmt.Errorf("syscall %q does not exist on this architecture", name)
	}
	return uint(no), nil
}

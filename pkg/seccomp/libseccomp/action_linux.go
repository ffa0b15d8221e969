package libseccomp

import (
	libseccomp "github.com/elastic/go-seccomp-bpf"
)

// ToSeccompAction 将 Action 转换为 go-seccomp-bpf 库的动作类型
func ToSeccompAction(a Action) libseccomp.Action {
	var action libseccomp.Action
	switch a.Action() {
	case ActionAllow:
		action = libseccomp.ActionAllow
	case ActionErrno:
		action = libseccomp.ActionErrno
	case ActionTrace:
		action = libseccomp.ActionTrace
	default:
		action = libseccomp.ActionKillProcess
	}

	// SECCOMP_RET_DATA 在返回值低 16 位，go-seccomp-bpf 没有设置它的接口，
	// 需要携带返回码时按位拼入动作值，见 builder 中的 actErrno
	return action
}

package libseccomp

// Action 定义了 seccomp 过滤器的动作类型。
// 低 16 位为基本动作，高 16 位为附加数据（如错误码）
type Action uint32

// 对系统调用的处理动作，从 1 开始以保证零值无效
const (
	ActionAllow Action = iota + 1 // 允许系统调用继续执行
	ActionErrno                   // 返回一个错误码给调用进程
	ActionTrace                   // 通知跟踪器并暂停执行
	ActionKill                    // 立即终止进程
)

// MsgDisallow 与 MsgHandle 用于和跟踪器约定触发过滤器后的处理方式
const (
	MsgDisallow int16 = iota + 1 // 禁止系统调用
	MsgHandle                    // 由跟踪器处理
)

// Action 返回基本动作类型（不包含附加数据）
func (a Action) Action() Action {
	return Action(a & 0xffff)
}

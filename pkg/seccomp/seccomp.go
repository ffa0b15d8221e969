package seccomp

// Action 编码一个系统调用的处置方式。
// 低 16 位是基本动作，高 16 位可携带 Errno 动作的返回码
type Action uint32

const (
	ActionInvalid Action = iota // 零值，未配置
	ActionAllow                 // 放行
	ActionErrno                 // 以错误码拒绝
	ActionTrace                 // 交给跟踪器裁决
	ActionKill                  // 终止进程
)

// Action 取基本动作部分
func (a Action) Action() Action {
	return Action(a & 0xffff)
}

// ReturnCode 取高 16 位携带的返回码
func (a Action) ReturnCode() uint16 {
	return uint16(a >> 16)
}

// WithReturnCode 返回携带指定返回码的动作
func (a Action) WithReturnCode(code uint16) Action {
	return a | Action(code)<<16
}

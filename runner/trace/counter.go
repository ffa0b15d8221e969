package trace

// SyscallCounter 按名称统计系统调用次数，并支持可选的次数上限。
// 用于限制某些调用的滥用，例如限制 open 或 clone 的次数
type SyscallCounter struct {
	counts map[string]int
	limits map[string]int
}

// NewSyscallCounter 创建新的 SyscallCounter
func NewSyscallCounter() *SyscallCounter {
	return &SyscallCounter{
		counts: make(map[string]int),
		limits: make(map[string]int),
	}
}

// SetLimit 设置单个系统调用的次数上限
func (c *SyscallCounter) SetLimit(name string, max int) {
	c.limits[name] = max
}

// SetLimits 批量设置次数上限
func (c *SyscallCounter) SetLimits(m map[string]int) {
	for k, v := range m {
		c.limits[k] = v
	}
}

// Tick 记录一次调用，返回是否仍在上限之内。
// 未设置上限的调用只计数，总是允许
func (c *SyscallCounter) Tick(name string) bool {
	c.counts[name]++
	max, ok := c.limits[name]
	if !ok {
		return true
	}
	return c.counts[name] <= max
}

// Count 返回某个系统调用的已观察次数
func (c *SyscallCounter) Count(name string) int {
	return c.counts[name]
}

// Counts 返回全部计数的快照
func (c *SyscallCounter) Counts() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

package trace

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zqzqsb/sctrace/pkg/seccomp"
	"github.com/zqzqsb/sctrace/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/sctrace/runner"
)

// Profile 是 YAML 格式的跟踪配置。
// 限额字段使用人类可读写法（"1s"、"256m"），加载后再转换
type Profile struct {
	// TimeLimit / MemoryLimit 是跟踪器强制的运行限额，空串表示不限
	TimeLimit   string `yaml:"timeLimit"`
	MemoryLimit string `yaml:"memoryLimit"`

	// MaxStringLen 限制字符串参数的扫描长度，0 使用默认值
	MaxStringLen int `yaml:"maxStringLen"`

	// DefaultAction 是 seccomp 预过滤的默认动作：allow / trace / kill
	DefaultAction string `yaml:"defaultAction"`

	// Allow 直接放行、Trace 停在跟踪器、Ban 直接以 EACCES 拒绝
	Allow []string `yaml:"allow"`
	Trace []string `yaml:"trace"`
	Ban   []string `yaml:"ban"`

	// SyscallLimits 是按名称的调用次数上限
	SyscallLimits map[string]int `yaml:"syscallLimits"`
}

// LoadProfile 从 reader 解析跟踪配置
func LoadProfile(r io.Reader) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

// LoadProfileFile 从文件加载跟踪配置
func LoadProfileFile(name string) (*Profile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadProfile(f)
}

// Limit 把配置中的限额字段转换为跟踪器限额
func (p *Profile) Limit() (runner.Limit, error) {
	var l runner.Limit
	if p.TimeLimit != "" {
		d, err := time.ParseDuration(p.TimeLimit)
		if err != nil {
			return l, fmt.Errorf("parse timeLimit: %w", err)
		}
		l.TimeLimit = d
	}
	if p.MemoryLimit != "" {
		var s runner.Size
		if err := s.Set(p.MemoryLimit); err != nil {
			return l, fmt.Errorf("parse memoryLimit: %w", err)
		}
		l.MemoryLimit = s
	}
	return l, nil
}

// Filter 编译配置中的 seccomp 预过滤器。
// 三个列表都为空时返回 nil，表示不安装预过滤器
func (p *Profile) Filter() (seccomp.Filter, error) {
	if len(p.Allow) == 0 && len(p.Trace) == 0 && len(p.Ban) == 0 {
		return nil, nil
	}
	def, err := parseAction(p.DefaultAction)
	if err != nil {
		return nil, err
	}
	b := libseccomp.Builder{
		Allow:   p.Allow,
		Trace:   p.Trace,
		Errno:   p.Ban,
		Default: def,
	}
	return b.Build()
}

// Counter 根据配置构建调用计数器，没有配置上限时返回 nil
func (p *Profile) Counter() *SyscallCounter {
	if len(p.SyscallLimits) == 0 {
		return nil
	}
	c := NewSyscallCounter()
	c.SetLimits(p.SyscallLimits)
	return c
}

func parseAction(s string) (libseccomp.Action, error) {
	switch s {
	case "", "trace":
		return libseccomp.ActionTrace, nil
	case "allow":
		return libseccomp.ActionAllow, nil
	case "kill":
		return libseccomp.ActionKill, nil
	default:
		return 0, fmt.Errorf("unknown default action %q", s)
	}
}

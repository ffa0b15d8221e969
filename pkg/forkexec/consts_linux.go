package forkexec

import (
	"golang.org/x/sys/unix"
)

// syscall 包中缺少的 seccomp 常量
const (
	// SECCOMP_SET_MODE_FILTER 是 seccomp 的过滤器模式
	SECCOMP_SET_MODE_FILTER = 1

	// SECCOMP_FILTER_FLAG_TSYNC 将过滤器同步到所有线程
	SECCOMP_FILTER_FLAG_TSYNC = 1
)

var (
	// empty 表示空字符串，供 execveat 使用
	empty = []byte("\000")

	// etxtbsyRetryInterval 是遇到 ETXTBSY 时的重试间隔（1 毫秒）
	etxtbsyRetryInterval = unix.Timespec{
		Nsec: 1 * 1000 * 1000,
	}
)

package ptracer

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"unsafe"

	unix "golang.org/x/sys/unix"
)

// 读取子进程字符串时的分块大小。
// 与一次拷贝整页相比，小块读取可以尽早发现终止符，
// 避免为短路径名拷贝大量无关内存
const stringChunkSize = 255

// DefaultMaxStringLen 是 ReadString 扫描终止符的默认上限
const DefaultMaxStringLen = 4096

var (
	// ErrStringUnterminated 表示在扫描上限内没有找到字符串终止符
	ErrStringUnterminated = errors.New("ptracer: string not terminated within scan bound")

	// ErrShortRead 表示目标地址范围没有完全映射，读到的字节数不足
	ErrShortRead = errors.New("ptracer: short read from traced process memory")
)

// readFunc 抽象一次对子进程内存的读取，便于对分块逻辑做桩测试。
// 返回实际读取的字节数；部分映射的范围可能返回 n < len(buff)
type readFunc func(addr uintptr, buff []byte) (int, error)

/* ReadBytes 从子进程内存读取定长字节范围

用于长度已知的场景（例如由系统调用参数给出的缓冲区）。
范围未完全映射或不可访问时返回错误；错误只影响本次调用，
不会中断跟踪循环。*/
func (c *Context) ReadBytes(addr uintptr, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("ptracer: negative read length %d", length)
	}
	buff := make([]byte, length)
	total := 0
	for total < length {
		n, err := c.remoteRead(addr+uintptr(total), buff[total:])
		if err != nil {
			return nil, fmt.Errorf("read %d bytes at 0x%x: %w", length, addr, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("read %d bytes at 0x%x: got %d: %w", length, addr, total, ErrShortRead)
		}
		total += n
	}
	return buff, nil
}

/* ReadString 从子进程内存读取以 null 结尾的字符串

算法：从 addr 开始按 stringChunkSize 分块读取并累积，直到缓冲区
出现 0 字节，只解码 0 字节之前的前缀。字符串可以跨越多个块。
扫描总量由 max 限定（max <= 0 时使用 DefaultMaxStringLen），
超出上限仍未见终止符时返回 ErrStringUnterminated，绝不无限扫描。

数据来自不受信任的子进程，非法 UTF-8 序列以替换符宽容解码，
不会使整次读取失败。*/
func (c *Context) ReadString(addr uintptr, max int) (string, error) {
	return readCString(c.remoteRead, addr, max)
}

func readCString(read readFunc, addr uintptr, max int) (string, error) {
	if max <= 0 {
		max = DefaultMaxStringLen
	}

	buff := make([]byte, 0, stringChunkSize)
	chunk := make([]byte, stringChunkSize)
	cur := addr

	for len(buff) < max {
		next := stringChunkSize
		if rest := max - len(buff); rest < next {
			next = rest
		}

		n, err := read(cur, chunk[:next])
		if err != nil {
			return "", fmt.Errorf("read string at 0x%x: %w", addr, err)
		}

		buff = append(buff, chunk[:n]...)
		cur += uintptr(n)

		if idx := indexNull(buff); idx >= 0 {
			return decodeLossy(buff[:idx]), nil
		}
		if n < next {
			// 映射在终止符之前结束
			return "", fmt.Errorf("read string at 0x%x: %w", addr, ErrShortRead)
		}
	}
	return "", fmt.Errorf("read string at 0x%x: scanned %d bytes: %w", addr, max, ErrStringUnterminated)
}

// decodeLossy 宽容解码，非法序列替换为 U+FFFD
func decodeLossy(buff []byte) string {
	return strings.ToValidUTF8(string(buff), "�")
}

// indexNull 返回缓冲区中第一个 0 字节的下标，不存在时返回 -1
func indexNull(buff []byte) int {
	for i, v := range buff {
		if v == 0 {
			return i
		}
	}
	return -1
}

// remoteRead 读取子进程内存，优先使用 process_vm_readv，
// 内核不支持（ENOSYS）时回退到 PTRACE_PEEKDATA
func (c *Context) remoteRead(addr uintptr, buff []byte) (int, error) {
	if len(buff) == 0 {
		return 0, nil
	}
	if UseVMReadv {
		n, err := vmRead(c.Pid, addr, buff)
		if err == nil {
			return n, nil
		}
		if no, ok := err.(syscall.Errno); !ok || no != syscall.ENOSYS {
			return n, err
		}
		UseVMReadv = false
	}
	return syscall.PtracePeekData(c.Pid, addr, buff)
}

/* vmRead 使用 process_vm_readv 从目标进程内存中读取数据

相比 PTRACE_PEEKDATA 的逐字读取，一次系统调用即可拷贝整个范围。
范围跨越未映射页时内核返回故障页之前的部分数据，调用方按
返回的字节数判断。*/
func vmRead(pid int, addr uintptr, buff []byte) (int, error) {
	l := len(buff)
	localIov := getIovecs(&buff[0], l)
	remoteIov := getIovecs((*byte)(unsafe.Pointer(addr)), l)
	n, _, err := processVMReadv(pid, localIov, remoteIov, 0)
	if err == 0 {
		return int(n), nil
	}
	return int(n), err
}

// processVMReadv 封装 process_vm_readv 系统调用
//
//	ssize_t process_vm_readv(pid_t pid,
//	                        const struct iovec *local_iov,
//	                        unsigned long liovcnt,
//	                        const struct iovec *remote_iov,
//	                        unsigned long riovcnt,
//	                        unsigned long flags);
func processVMReadv(pid int, localIov, remoteIov []unix.Iovec,
	flags uintptr) (r1, r2 uintptr, err syscall.Errno) {
	return syscall.Syscall6(unix.SYS_PROCESS_VM_READV, uintptr(pid),
		uintptr(unsafe.Pointer(&localIov[0])), uintptr(len(localIov)),
		uintptr(unsafe.Pointer(&remoteIov[0])), uintptr(len(remoteIov)),
		flags)
}

func getIovecs(base *byte, l int) []unix.Iovec {
	return []unix.Iovec{{Base: base, Len: uint64(l)}}
}

// Package memfd 在内存中创建可密封的匿名只读文件。
// 跟踪器用它固定被执行文件的内容，子进程拿到的是密封副本，
// exec 前替换磁盘上的文件不会影响实际执行的内容。
// 要求 Linux 内核版本 >= 3.17
package memfd

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

const createFlag = unix.MFD_CLOEXEC | unix.MFD_ALLOW_SEALING

// 只读密封：禁止增删改，也禁止解除密封
const roSeal = unix.F_SEAL_SEAL | unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_WRITE

// New 创建一个新的 memfd，name 仅用于调试显示。
// 调用者负责关闭返回的文件
func New(name string) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, createFlag)
	if err != nil {
		return nil, fmt.Errorf("memfd: create %q: %w", name, err)
	}
	file := os.NewFile(uintptr(fd), name)
	if file == nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memfd: NewFile failed for %q", name)
	}
	return file, nil
}

// DupToMemfd 把 reader 的内容复制到一个只读密封的 memfd 中
func DupToMemfd(name string, reader io.Reader) (*os.File, error) {
	file, err := New(name)
	if err != nil {
		return nil, err
	}
	if _, err = file.ReadFrom(reader); err != nil {
		file.Close()
		return nil, fmt.Errorf("memfd: copy %q: %w", name, err)
	}
	if _, err = unix.FcntlInt(file.Fd(), unix.F_ADD_SEALS, roSeal); err != nil {
		file.Close()
		return nil, fmt.Errorf("memfd: seal %q: %w", name, err)
	}
	if _, err = file.Seek(0, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("memfd: rewind %q: %w", name, err)
	}
	return file, nil
}

// Package pipe 提供了一个管道包装器，从读取端收集最多指定字节数的数据。
// 用于限量收集被跟踪程序的标准输出 / 标准错误
package pipe

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Buffer 创建一个可写的管道，并将最多 Max 字节的数据读取到缓冲区中
type Buffer struct {
	W      *os.File        // 管道的写入端，交给子进程
	Buffer *bytes.Buffer   // 存储读取数据的缓冲区
	Done   <-chan struct{} // 读取完成时关闭
	Max    int64           // 最大允许读取的字节数
}

// NewPipe 创建管道并启动 goroutine 把读取端最多 n 字节复制到 writer。
// 调用者负责关闭返回的写入端
func NewPipe(writer io.Writer, n int64) (<-chan struct{}, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	done := make(chan struct{})
	go func() {
		io.CopyN(writer, r, n)
		close(done)
		// 继续读取并丢弃剩余数据，避免写入端阻塞或收到 SIGPIPE
		io.Copy(io.Discard, r)
		r.Close()
	}()

	return done, w, nil
}

// NewBuffer 创建一个 Buffer，多读取一个字节用于检测输出是否超限
func NewBuffer(max int64) (*Buffer, error) {
	buffer := new(bytes.Buffer)
	done, w, err := NewPipe(buffer, max+1)
	if err != nil {
		return nil, err
	}

	return &Buffer{
		W:      w,
		Max:    max,
		Buffer: buffer,
		Done:   done,
	}, nil
}

func (b Buffer) String() string {
	return fmt.Sprintf("Buffer[%d/%d]", b.Buffer.Len(), b.Max)
}

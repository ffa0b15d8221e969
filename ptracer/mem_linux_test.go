package ptracer

import (
	"errors"
	"os"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"unsafe"
)

// stubMem 构造一个以 base 为起点、以 mem 为内容的内存读取桩。
// 超出映射范围的起始地址返回 EFAULT，范围尾部按实际剩余返回
func stubMem(base uintptr, mem []byte) readFunc {
	return func(addr uintptr, buff []byte) (int, error) {
		if addr < base || addr >= base+uintptr(len(mem)) {
			return 0, syscall.EFAULT
		}
		return copy(buff, mem[addr-base:]), nil
	}
}

func TestReadCString(t *testing.T) {
	const base = 0x1000
	tests := []struct {
		name string
		mem  string
		want string
	}{
		{"empty", "\x00", ""},
		{"short", "abc\x00garbage", "abc"},
		{"chunk_boundary", strings.Repeat("a", stringChunkSize-1) + "\x00", strings.Repeat("a", stringChunkSize-1)},
		{"span_two_chunks", strings.Repeat("b", stringChunkSize+45) + "\x00", strings.Repeat("b", stringChunkSize+45)},
		{"span_three_chunks", strings.Repeat("c", 2*stringChunkSize+7) + "\x00", strings.Repeat("c", 2*stringChunkSize+7)},
		{"invalid_utf8", "a\xffb\xfec\x00", "a�b�c"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readCString(stubMem(base, []byte(tc.mem)), base, 0)
			if err != nil {
				t.Fatalf("readCString: %v", err)
			}
			if got != tc.want {
				t.Errorf("readCString = %q, want %q", got, tc.want)
			}
		})
	}
}

// 小分块的语义校验：块大小 4、内容 "abcdefgh\x00" 时应返回完整字符串。
// 这里用真实块大小等比放大同样的场景
func TestReadCStringSpanningChunks(t *testing.T) {
	const base = 0x2000
	want := strings.Repeat("abcdefgh", stringChunkSize/4)
	got, err := readCString(stubMem(base, []byte(want+"\x00")), base, 4*stringChunkSize)
	if err != nil {
		t.Fatalf("readCString: %v", err)
	}
	if got != want {
		t.Errorf("readCString = %d bytes, want %d", len(got), len(want))
	}
}

func TestReadCStringUnterminated(t *testing.T) {
	const base = 0x3000
	mem := []byte(strings.Repeat("x", 2*DefaultMaxStringLen))

	_, err := readCString(stubMem(base, mem), base, 0)
	if !errors.Is(err, ErrStringUnterminated) {
		t.Fatalf("err = %v, want ErrStringUnterminated", err)
	}

	// 终止符恰好在上限之外时同样必须报错而不是越界扫描
	mem[DefaultMaxStringLen] = 0
	_, err = readCString(stubMem(base, mem), base, 0)
	if !errors.Is(err, ErrStringUnterminated) {
		t.Fatalf("err = %v, want ErrStringUnterminated", err)
	}
}

func TestReadCStringCustomBound(t *testing.T) {
	const base = 0x4000
	mem := []byte(strings.Repeat("y", 64) + "\x00")

	if _, err := readCString(stubMem(base, mem), base, 16); !errors.Is(err, ErrStringUnterminated) {
		t.Fatalf("err = %v, want ErrStringUnterminated", err)
	}
	if got, err := readCString(stubMem(base, mem), base, 65); err != nil || got != strings.Repeat("y", 64) {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestReadCStringShortMapping(t *testing.T) {
	const base = 0x5000
	// 映射在终止符之前结束
	_, err := readCString(stubMem(base, []byte("no terminator")), base, 0)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
}

func TestReadCStringFault(t *testing.T) {
	const base = 0x6000
	_, err := readCString(stubMem(base, []byte("ok\x00")), 0xdead0000, 0)
	if !errors.Is(err, syscall.EFAULT) {
		t.Fatalf("err = %v, want EFAULT", err)
	}
}

// process_vm_readv 对自身进程同样有效，借此端到端验证定长读取
func TestReadBytesSelf(t *testing.T) {
	data := []byte("the quick brown fox")
	c := &Context{Pid: os.Getpid()}

	got, err := c.ReadBytes(uintptr(unsafe.Pointer(&data[0])), len(data))
	runtime.KeepAlive(data)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("ReadBytes = %q, want %q", got, data)
	}
}

func TestReadStringSelf(t *testing.T) {
	data := []byte("hello\x00world")
	c := &Context{Pid: os.Getpid()}

	got, err := c.ReadString(uintptr(unsafe.Pointer(&data[0])), 0)
	runtime.KeepAlive(data)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if got != "hello" {
		t.Errorf("ReadString = %q, want %q", got, "hello")
	}
}

func TestReadBytesNegativeLength(t *testing.T) {
	c := &Context{Pid: os.Getpid()}
	if _, err := c.ReadBytes(0x1000, -1); err == nil {
		t.Fatal("expected error for negative length")
	}
}

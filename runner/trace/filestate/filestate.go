// Package filestate 维护由观察到的系统调用推导出的进程文件状态模型。
// 它是跟踪器自己的模型，独立于内核真实的描述符表
package filestate

import (
	"fmt"
	"strings"
	"syscall"
)

// FileState 是文件记录的状态
type FileState int

const (
	// Opened 表示观察到成功的 open
	Opened FileState = iota + 1
	// Closed 表示打开后观察到成功的 close
	Closed
	// OpenFailed 表示观察到失败的 open，该状态不再迁移
	OpenFailed
)

var stateString = []string{"invalid", "opened", "closed", "open_failed"}

func (s FileState) String() string {
	if s >= Opened && s <= OpenFailed {
		return stateString[s]
	}
	return stateString[0]
}

// AccessMode 是文件的访问模式
type AccessMode int

const (
	ReadOnly AccessMode = iota
	WriteOnly
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "r"
	case WriteOnly:
		return "w"
	case ReadWrite:
		return "rw"
	default:
		return "?"
	}
}

// FileFlags 是打开标志的可扩展位集
type FileFlags uint32

const (
	FlagCreate FileFlags = 1 << iota
	FlagTrunc
	FlagAppend
	FlagExcl
	FlagCloexec
	FlagDirectory
)

var flagNames = []struct {
	flag FileFlags
	name string
}{
	{FlagCreate, "create"},
	{FlagTrunc, "trunc"},
	{FlagAppend, "append"},
	{FlagExcl, "excl"},
	{FlagCloexec, "cloexec"},
	{FlagDirectory, "directory"},
}

func (f FileFlags) String() string {
	if f == 0 {
		return "-"
	}
	var s []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			s = append(s, fn.name)
		}
	}
	return strings.Join(s, "|")
}

// ParseOpenFlags 把 open(2) 的标志位解析为访问模式与标志位集
func ParseOpenFlags(flags uint) (AccessMode, FileFlags) {
	var mode AccessMode
	switch flags & syscall.O_ACCMODE {
	case syscall.O_RDONLY:
		mode = ReadOnly
	case syscall.O_WRONLY:
		mode = WriteOnly
	case syscall.O_RDWR:
		mode = ReadWrite
	}

	var f FileFlags
	if flags&syscall.O_CREAT != 0 {
		f |= FlagCreate
	}
	if flags&syscall.O_TRUNC != 0 {
		f |= FlagTrunc
	}
	if flags&syscall.O_APPEND != 0 {
		f |= FlagAppend
	}
	if flags&syscall.O_EXCL != 0 {
		f |= FlagExcl
	}
	if flags&syscall.O_CLOEXEC != 0 {
		f |= FlagCloexec
	}
	if flags&syscall.O_DIRECTORY != 0 {
		f |= FlagDirectory
	}
	return mode, f
}

// FileRecord 是跟踪器对子进程一次文件打开的记录
type FileRecord struct {
	FD    int // 描述符标识，OpenFailed 记录为 -1
	Path  string
	State FileState
	Mode  AccessMode
	Flags FileFlags
}

func (r FileRecord) String() string {
	return fmt.Sprintf("%s[%s %s fd=%d %s]", r.State, r.Path, r.Mode, r.FD, r.Flags)
}

// ProcessState 拥有一个子进程的全部文件记录。
// 它由该子进程的跟踪循环独占持有和修改，不做内部加锁
type ProcessState struct {
	records []*FileRecord       // 按观察顺序的全部记录
	live    map[int]*FileRecord // fd → 当前处于 Opened 状态的记录
}

// NewProcessState 创建空的文件状态模型，每个被跟踪的子进程一个
func NewProcessState() *ProcessState {
	return &ProcessState{
		live: make(map[int]*FileRecord),
	}
}

// RecordOpen 插入或更新一条 Opened 记录。
// 同一 fd 已有存活记录时说明错过了对应的 close，旧记录让位，
// 保证每个描述符最多一条存活的 Opened 记录
func (s *ProcessState) RecordOpen(fd int, path string, mode AccessMode, flags FileFlags) {
	rec := &FileRecord{
		FD:    fd,
		Path:  path,
		State: Opened,
		Mode:  mode,
		Flags: flags,
	}
	s.records = append(s.records, rec)
	s.live[fd] = rec
}

// RecordClose 把 fd 对应的存活记录迁移为 Closed。
// 没有匹配记录时为空操作而不是错误，容忍未观察到的 open 与重复 close
func (s *ProcessState) RecordClose(fd int) {
	rec, ok := s.live[fd]
	if !ok {
		return
	}
	rec.State = Closed
	delete(s.live, fd)
}

// RecordOpenFailure 插入一条 OpenFailed 记录，不影响其他记录
func (s *ProcessState) RecordOpenFailure(path string, mode AccessMode, flags FileFlags) {
	s.records = append(s.records, &FileRecord{
		FD:    -1,
		Path:  path,
		State: OpenFailed,
		Mode:  mode,
		Flags: flags,
	})
}

// Files 返回按观察顺序的全部记录快照
func (s *ProcessState) Files() []FileRecord {
	out := make([]FileRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

// Open 返回当前处于 Opened 状态的记录快照
func (s *ProcessState) Open() []FileRecord {
	out := make([]FileRecord, 0, len(s.live))
	for _, rec := range s.records {
		if rec.State == Opened {
			if cur, ok := s.live[rec.FD]; ok && cur == rec {
				out = append(out, *rec)
			}
		}
	}
	return out
}

// Lookup 返回路径最近一次的记录
func (s *ProcessState) Lookup(path string) (FileRecord, bool) {
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Path == path {
			return *s.records[i], true
		}
	}
	return FileRecord{}, false
}

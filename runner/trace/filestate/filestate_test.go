package filestate

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpenFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags uint
		mode  AccessMode
		set   FileFlags
	}{
		{"rdonly", syscall.O_RDONLY, ReadOnly, 0},
		{"wronly_creat_trunc", syscall.O_WRONLY | syscall.O_CREAT | syscall.O_TRUNC, WriteOnly, FlagCreate | FlagTrunc},
		{"rdwr_append", syscall.O_RDWR | syscall.O_APPEND, ReadWrite, FlagAppend},
		{"cloexec_excl", syscall.O_RDONLY | syscall.O_CLOEXEC | syscall.O_EXCL, ReadOnly, FlagCloexec | FlagExcl},
		{"directory", syscall.O_RDONLY | syscall.O_DIRECTORY, ReadOnly, FlagDirectory},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mode, set := ParseOpenFlags(tc.flags)
			assert.Equal(t, tc.mode, mode)
			assert.Equal(t, tc.set, set)
		})
	}
}

func TestOpenCloseLifecycle(t *testing.T) {
	s := NewProcessState()
	s.RecordOpen(3, "/etc/hosts", ReadOnly, 0)
	s.RecordOpen(4, "/tmp/out", WriteOnly, FlagCreate|FlagTrunc)

	require.Len(t, s.Open(), 2)

	s.RecordClose(3)
	open := s.Open()
	require.Len(t, open, 1)
	assert.Equal(t, "/tmp/out", open[0].Path)

	rec, ok := s.Lookup("/etc/hosts")
	require.True(t, ok)
	assert.Equal(t, Closed, rec.State)
	assert.Equal(t, ReadOnly, rec.Mode)
}

func TestCloseIdempotent(t *testing.T) {
	s := NewProcessState()
	s.RecordOpen(3, "/etc/hosts", ReadOnly, 0)

	s.RecordClose(3)
	s.RecordClose(3) // 重复 close 不应有任何影响
	s.RecordClose(7) // 未观察到 open 的 fd 同样为空操作

	files := s.Files()
	require.Len(t, files, 1)
	assert.Equal(t, Closed, files[0].State)
}

func TestFdReuseKeepsSingleLiveRecord(t *testing.T) {
	s := NewProcessState()
	s.RecordOpen(3, "/a", ReadOnly, 0)
	// 错过了 close(3)，同一 fd 再次打开
	s.RecordOpen(3, "/b", WriteOnly, FlagCreate)

	open := s.Open()
	require.Len(t, open, 1)
	assert.Equal(t, "/b", open[0].Path)

	s.RecordClose(3)
	rec, ok := s.Lookup("/b")
	require.True(t, ok)
	assert.Equal(t, Closed, rec.State)
}

func TestOpenFailureIsTerminal(t *testing.T) {
	s := NewProcessState()
	s.RecordOpenFailure("/etc/shadow", ReadOnly, 0)
	s.RecordClose(-1)

	rec, ok := s.Lookup("/etc/shadow")
	require.True(t, ok)
	assert.Equal(t, OpenFailed, rec.State)
	assert.Equal(t, -1, rec.FD)
	assert.Empty(t, s.Open())
}

func TestLookupReturnsLatest(t *testing.T) {
	s := NewProcessState()
	s.RecordOpenFailure("/x", ReadOnly, 0)
	s.RecordOpen(5, "/x", ReadOnly, 0)

	rec, ok := s.Lookup("/x")
	require.True(t, ok)
	assert.Equal(t, Opened, rec.State)
	assert.Equal(t, 5, rec.FD)
}

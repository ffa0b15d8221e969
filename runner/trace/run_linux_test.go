package trace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zqzqsb/sctrace/runner"
	"github.com/zqzqsb/sctrace/runner/trace/filestate"
)

// 端到端：跟踪 cat 读取一个临时文件，结束后该文件应有
// 唯一一条 Closed 状态、只读模式的记录
func TestTraceCatFile(t *testing.T) {
	if testing.Short() {
		t.Skip("tracing test skipped in short mode")
	}
	catPath := "/bin/cat"
	if _, err := os.Stat(catPath); err != nil {
		t.Skip("cat not found")
	}

	target := filepath.Join(t.TempDir(), "x")
	require.NoError(t, os.WriteFile(target, []byte("hello\n"), 0o644))

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	require.NoError(t, err)
	defer devNull.Close()

	st := filestate.NewProcessState()
	r := &Runner{
		Args:  []string{catPath, target},
		Env:   []string{"PATH=/usr/bin:/bin"},
		Files: []uintptr{devNull.Fd(), devNull.Fd(), 2},
		State: st,
	}

	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res := r.Run(c)
	require.Equal(t, runner.StatusNormal, res.Status, "result: %v", res)

	rec, ok := st.Lookup(target)
	require.True(t, ok, "no record for %s: %v", target, st.Files())
	assert.Equal(t, filestate.Closed, rec.State)
	assert.Equal(t, filestate.ReadOnly, rec.Mode)

	n := 0
	for _, f := range st.Files() {
		if f.Path == target {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

// 对不存在路径的 open 应留下 OpenFailed 记录，进程以非零状态退出
func TestTraceOpenFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("tracing test skipped in short mode")
	}
	catPath := "/bin/cat"
	if _, err := os.Stat(catPath); err != nil {
		t.Skip("cat not found")
	}

	missing := filepath.Join(t.TempDir(), "nope")

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	require.NoError(t, err)
	defer devNull.Close()

	st := filestate.NewProcessState()
	r := &Runner{
		Args:  []string{catPath, missing},
		Env:   []string{"PATH=/usr/bin:/bin"},
		Files: []uintptr{devNull.Fd(), devNull.Fd(), devNull.Fd()},
		State: st,
	}

	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res := r.Run(c)
	require.Equal(t, runner.StatusNonzeroExitStatus, res.Status, "result: %v", res)

	rec, ok := st.Lookup(missing)
	require.True(t, ok)
	assert.Equal(t, filestate.OpenFailed, rec.State)
}

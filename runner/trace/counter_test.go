package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyscallCounter(t *testing.T) {
	c := NewSyscallCounter()
	c.SetLimits(map[string]int{"clone": 2})

	assert.True(t, c.Tick("read"))
	assert.True(t, c.Tick("read"))
	assert.True(t, c.Tick("clone"))
	assert.True(t, c.Tick("clone"))
	assert.False(t, c.Tick("clone"))

	assert.Equal(t, 2, c.Count("read"))
	assert.Equal(t, 3, c.Count("clone"))
	assert.Equal(t, 0, c.Count("open"))

	counts := c.Counts()
	counts["read"] = 99
	assert.Equal(t, 2, c.Count("read"), "Counts 返回的是快照")
}

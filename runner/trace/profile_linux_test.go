package trace

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zqzqsb/sctrace/runner"
)

const sampleProfile = `
timeLimit: 1s
memoryLimit: 256m
maxStringLen: 1024
defaultAction: trace
allow:
  - read
  - write
trace:
  - open
  - openat
  - close
ban:
  - socket
syscallLimits:
  open: 16
`

func TestLoadProfile(t *testing.T) {
	p, err := LoadProfile(strings.NewReader(sampleProfile))
	require.NoError(t, err)

	assert.Equal(t, 1024, p.MaxStringLen)
	assert.Equal(t, []string{"read", "write"}, p.Allow)
	assert.Equal(t, []string{"socket"}, p.Ban)

	l, err := p.Limit()
	require.NoError(t, err)
	assert.Equal(t, time.Second, l.TimeLimit)
	assert.Equal(t, 256*runner.Size(1<<20), l.MemoryLimit)

	c := p.Counter()
	require.NotNil(t, c)
	assert.True(t, c.Tick("open"))
}

func TestLoadProfileUnknownField(t *testing.T) {
	_, err := LoadProfile(strings.NewReader("bogus: 1\n"))
	assert.Error(t, err)
}

func TestProfileFilter(t *testing.T) {
	p, err := LoadProfile(strings.NewReader(sampleProfile))
	require.NoError(t, err)

	f, err := p.Filter()
	require.NoError(t, err)
	assert.NotEmpty(t, f)
}

func TestEmptyProfileTracesEverything(t *testing.T) {
	p, err := LoadProfile(strings.NewReader("timeLimit: 2s\n"))
	require.NoError(t, err)

	f, err := p.Filter()
	require.NoError(t, err)
	assert.Nil(t, f)

	assert.Nil(t, p.Counter())
}

func TestProfileBadLimits(t *testing.T) {
	p := &Profile{TimeLimit: "fast"}
	_, err := p.Limit()
	assert.Error(t, err)

	p = &Profile{MemoryLimit: "lots"}
	_, err = p.Limit()
	assert.Error(t, err)
}

func TestProfileBadDefaultAction(t *testing.T) {
	p := &Profile{Trace: []string{"open"}, DefaultAction: "banish"}
	_, err := p.Filter()
	assert.Error(t, err)
}

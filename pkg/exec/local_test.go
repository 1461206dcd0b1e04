package exec

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExecCapturesOutput(t *testing.T) {
	e := NewLocalExec()
	res, err := e.Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2; exit 3"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, ExecutorTypeLocal, res.ExecutorUsed)
	assert.Equal(t, "out\nerr\n", res.Combined())
}

func TestLocalExecStreams(t *testing.T) {
	var echoed strings.Builder
	e := NewLocalExec()
	res, err := e.Run(context.Background(), []string{"sh", "-c", "echo one; echo two >&2"}, &Opts{Stream: &echoed})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "one\n")
	assert.Contains(t, res.Output, "two\n")
	assert.Equal(t, res.Output, echoed.String())
	assert.Equal(t, res.Output, res.Combined())
}

func TestLocalExecErrors(t *testing.T) {
	e := NewLocalExec()

	_, err := e.Run(context.Background(), nil, nil)
	assert.Error(t, err)

	_, err = e.Run(context.Background(), []string{"true"}, &Opts{WorkDir: "/does/not/exist"})
	assert.Error(t, err)

	res, err := e.Run(context.Background(), []string{"/no/such/binary"}, nil)
	assert.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestLocalExecTimeout(t *testing.T) {
	e := NewLocalExec()
	res, _ := e.Run(context.Background(), []string{"sleep", "5"}, &Opts{Timeout: 50 * time.Millisecond})
	assert.NotEqual(t, 0, res.ExitCode)
	assert.Less(t, res.Duration, 5*time.Second)
}

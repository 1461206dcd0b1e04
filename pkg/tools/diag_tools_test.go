package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	args, err := splitArgs(`-n -i 'mtd open' "a b" c\ d`)
	require.NoError(t, err)
	assert.Equal(t, []string{"-n", "-i", "mtd open", "a b", "c d"}, args)

	_, err = splitArgs(`'unterminated`)
	assert.Error(t, err)
}

func TestGrepConsoleLog(t *testing.T) {
	r, _ := newTestRegistry(t, "")
	ctx := context.Background()

	res := r.Invoke(ctx, ToolGrepConsoleLog, map[string]any{"grep_command": "-n panic", "reason": "x"})
	assert.Equal(t, StatusFailed, res.Status)

	for _, n := range []string{"1", "2"} {
		dir := filepath.Join(r.projectPath, "results", n)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		body := "run " + n + "\nKernel panic in run " + n + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "console.log"), []byte(body), 0o644))
	}

	res = r.Invoke(ctx, ToolGrepConsoleLog, map[string]any{"grep_command": "grep -n 'Kernel panic'", "reason": "x"})
	require.True(t, res.OK(), res.Message)
	assert.Contains(t, res.Message, "2:Kernel panic in run 2")

	res = r.Invoke(ctx, ToolGrepConsoleLog, map[string]any{"grep_command": "nothing-matches-this", "reason": "x"})
	require.True(t, res.OK())
	assert.Equal(t, "No matches found", res.Message)
}

func TestReplaceScriptExit0(t *testing.T) {
	r, _ := newTestRegistry(t, "")
	ctx := context.Background()

	res := r.Invoke(ctx, ToolReplaceScriptExit0, map[string]any{"script_path": "../outside.sh", "reason": "x"})
	assert.Equal(t, StatusFailed, res.Status)

	res = r.Invoke(ctx, ToolReplaceScriptExit0, map[string]any{"script_path": "static/etc/init.d/rcS", "reason": "hangs"})
	require.True(t, res.OK(), res.Message)

	target := filepath.Join(r.projectPath, "static", "etc", "init.d", "rcS")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\nexit 0\n", string(data))
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

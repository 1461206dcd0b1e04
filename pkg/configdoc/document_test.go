package configdoc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `core:
  arch: armel
  kernel: /igloo/kernel
patches:
  - static_patches/base.yaml
env:
  igloo_init: /sbin/init
pseudofiles:
  /dev/mtd0:
    name: flash
nvram: {}
`

func loadSample(t *testing.T) *Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	doc, err := Load(path)
	require.NoError(t, err)
	return doc
}

func TestLoadMissingFile(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.False(t, doc.Exists())
	assert.Empty(t, doc.Sections())
	assert.Empty(t, doc.Diff())
}

func TestLoadRejectsNonMapRoot(t *testing.T) {
	_, err := Parse("config.yaml", []byte("- a\n- b\n"))
	assert.Error(t, err)
}

func TestSetThenGet(t *testing.T) {
	doc := loadSample(t)

	require.NoError(t, doc.Set("env.sxid", "0x1234"))
	got, ok := doc.Get("env.sxid")
	require.True(t, ok)
	assert.Equal(t, "0x1234", got)

	require.NoError(t, doc.SetAt([]string{"pseudofiles", "/proc/sys/net.ipv4"}, map[string]any{}))
	got, ok = doc.GetAt("pseudofiles", "/proc/sys/net.ipv4")
	require.True(t, ok)
	assert.Equal(t, map[string]any{}, got)

	got, ok = doc.Get("core.arch")
	require.True(t, ok)
	assert.Equal(t, "armel", got)
}

func TestSetCreatesIntermediateMaps(t *testing.T) {
	doc := New(filepath.Join(t.TempDir(), "config.yaml"))

	require.NoError(t, doc.Set("env.A", "1"))
	require.NoError(t, doc.SetAt([]string{"pseudofiles", "/dev/mtd0"}, map[string]any{"name": "bootloader"}))

	got, ok := doc.GetAt("pseudofiles", "/dev/mtd0")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "bootloader"}, got)
	assert.Equal(t, []string{"env", "pseudofiles"}, doc.Sections())
}

func TestSetThroughScalarFails(t *testing.T) {
	doc := loadSample(t)
	err := doc.Set("core.arch.bits", 32)
	assert.ErrorIs(t, err, ErrNotMapping)
}

func TestSetReplacesNullSection(t *testing.T) {
	doc, err := Parse("config.yaml", []byte("env:\n"))
	require.NoError(t, err)
	require.NoError(t, doc.Set("env.X", "y"))
	got, _ := doc.Get("env.X")
	assert.Equal(t, "y", got)
}

func TestRemove(t *testing.T) {
	doc := loadSample(t)

	assert.True(t, doc.Remove("env.igloo_init"))
	assert.False(t, doc.Remove("env.igloo_init"))
	assert.False(t, doc.Remove("missing.key"))
	assert.True(t, doc.RemoveAt("pseudofiles", "/dev/mtd0"))
	assert.False(t, doc.Has("pseudofiles", "/dev/mtd0"))
}

func TestListOperations(t *testing.T) {
	doc := loadSample(t)

	require.NoError(t, doc.AppendToList("patches", "static_patches/extra.yaml"))
	got, _ := doc.Get("patches")
	assert.Equal(t, []any{"static_patches/base.yaml", "static_patches/extra.yaml"}, got)

	removed, err := doc.RemoveFromList("patches", "static_patches/base.yaml")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = doc.RemoveFromList("patches", "nope")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, doc.AppendToList("netdevs", "eth0"))
	got, _ = doc.Get("netdevs")
	assert.Equal(t, []any{"eth0"}, got)

	assert.Error(t, doc.AppendToList("core", "x"))
}

func TestSavePreservesOrder(t *testing.T) {
	doc := loadSample(t)
	require.NoError(t, doc.Set("env.sxid", "abc"))
	require.NoError(t, doc.Save())

	reloaded, err := Load(doc.Path())
	require.NoError(t, err)
	assert.True(t, reloaded.Exists())
	assert.Equal(t, []string{"core", "patches", "env", "pseudofiles", "nvram"}, reloaded.Sections())
	got, _ := reloaded.Get("env.sxid")
	assert.Equal(t, "abc", got)
}

func TestSaveFailureKeepsMutation(t *testing.T) {
	doc := New(filepath.Join(t.TempDir(), "missing-dir", "config.yaml"))
	require.NoError(t, doc.Set("env.A", "1"))

	assert.Error(t, doc.Save())
	got, ok := doc.Get("env.A")
	require.True(t, ok)
	assert.Equal(t, "1", got)
}

func TestDiffEmptyWithoutMutation(t *testing.T) {
	doc := loadSample(t)
	assert.Empty(t, doc.Diff())
	assert.False(t, doc.HasChanges())

	out, err := doc.UnifiedDiff()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDiffListsChanges(t *testing.T) {
	doc := loadSample(t)

	require.NoError(t, doc.Set("core.arch", "mipsel"))
	require.NoError(t, doc.Set("env.sxid", "DYNVALDYNVALDYNVAL"))
	require.True(t, doc.Remove("env.igloo_init"))

	changes := doc.Diff()
	require.Len(t, changes, 3)

	assert.Equal(t, Change{Kind: Modified, Path: "core.arch", Keys: []string{"core", "arch"}, Old: "armel", New: "mipsel"}, changes[0])
	assert.Equal(t, Added, changes[1].Kind)
	assert.Equal(t, "env.sxid", changes[1].Path)
	assert.Equal(t, "DYNVALDYNVALDYNVAL", changes[1].New)
	assert.Equal(t, Removed, changes[2].Kind)
	assert.Equal(t, "env.igloo_init", changes[2].Path)
	assert.Equal(t, "/sbin/init", changes[2].Old)
}

func TestDiffAgainstFreshSnapshot(t *testing.T) {
	doc := loadSample(t)
	require.NoError(t, doc.Set("env.A", "1"))
	doc.Snapshot()
	assert.Empty(t, doc.Diff())
}

func TestUnifiedDiff(t *testing.T) {
	doc := loadSample(t)
	require.NoError(t, doc.Set("core.arch", "mipsel"))

	out, err := doc.UnifiedDiff()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "--- original config.yaml\n+++ current config.yaml\n"))
	assert.Contains(t, out, "-  arch: armel\n")
	assert.Contains(t, out, "+  arch: mipsel\n")
	assert.Contains(t, out, "@@ -1,5 +1,5 @@")
}

func TestUnifiedDiffSeparateHunks(t *testing.T) {
	a := "a\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk\nl\n"
	b := "A\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk\nL\n"

	out := unifiedDiff("x", "y", a, b)
	assert.Equal(t, 2, strings.Count(out, "@@ -"))
	assert.Contains(t, out, "@@ -1,4 +1,4 @@\n-a\n+A\n b\n c\n d\n")
	assert.Contains(t, out, "@@ -9,4 +9,4 @@\n i\n j\n k\n-l\n+L\n")
}

func TestSummary(t *testing.T) {
	doc := loadSample(t)
	require.NoError(t, doc.Set("env.B", "2"))

	s := doc.Summary()
	assert.True(t, s.Exists)
	assert.True(t, s.HasChanges)
	assert.Equal(t, []SectionInfo{
		{Name: "core", Items: 2},
		{Name: "patches", Items: 1},
		{Name: "env", Items: 2},
		{Name: "pseudofiles", Items: 1},
		{Name: "nvram", Items: 0},
	}, s.Sections)
	assert.Contains(t, s.String(), "   - env: 2 items\n")
}

package collector

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipkit/internal/testutil"
)

func TestCollect(t *testing.T) {
	t.Run("collects files with slash-separated relative names", func(t *testing.T) {
		root := t.TempDir()
		testutil.CreateFile(t, filepath.Join(root, "a.txt"), "aa")
		testutil.CreateFile(t, filepath.Join(root, "sub", "b.txt"), "bbb")

		c := New(Options{})
		files, err := c.Collect(root)
		require.NoError(t, err)

		require.Len(t, files, 2)
		assert.Equal(t, "a.txt", files[0].Rel)
		assert.Equal(t, int64(2), files[0].Size)
		assert.Equal(t, "sub/b.txt", files[1].Rel)
		assert.Equal(t, int64(3), files[1].Size)
	})

	t.Run("skips listed files and directories", func(t *testing.T) {
		root := t.TempDir()
		testutil.CreateFile(t, filepath.Join(root, "keep.txt"), "x")
		testutil.CreateFile(t, filepath.Join(root, ".DS_Store"), "junk")
		testutil.CreateFile(t, filepath.Join(root, "node_modules", "dep.js"), "js")

		c := New(Options{
			SkipFiles: []string{".DS_Store"},
			SkipDirs:  []string{"node_modules"},
		})
		files, err := c.Collect(root)
		require.NoError(t, err)

		require.Len(t, files, 1)
		assert.Equal(t, "keep.txt", files[0].Rel)
	})

	t.Run("includes directory entries when asked", func(t *testing.T) {
		root := t.TempDir()
		testutil.CreateFile(t, filepath.Join(root, "sub", "b.txt"), "b")

		c := New(Options{IncludeDirs: true})
		files, err := c.Collect(root)
		require.NoError(t, err)

		require.Len(t, files, 2)
		assert.Equal(t, "sub", files[0].Rel)
		assert.True(t, files[0].IsDir)
		assert.Equal(t, "sub/b.txt", files[1].Rel)
		assert.False(t, files[1].IsDir)
	})
}

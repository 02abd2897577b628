// Package testutil provides shared fixtures for archive tests: file
// tree builders and an in-memory seekable stream.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// CreateFile writes content to path, creating parent directories.
func CreateFile(t *testing.T, path, content string) {
	t.Helper()
	CreateFileBytes(t, path, []byte(content))
}

// CreateFileBytes writes content to path, creating parent directories.
func CreateFileBytes(t *testing.T, path string, content []byte) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	require.NoError(t, err)

	err = os.WriteFile(path, content, 0o644)
	require.NoError(t, err)
}

// CreateFileWithModTime writes content to path and pins its
// modification time, so MS-DOS timestamp round-trips are predictable.
func CreateFileWithModTime(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()

	CreateFileBytes(t, path, []byte(content))
	err := os.Chtimes(path, modTime, modTime)
	require.NoError(t, err)
}

package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"zipkit/pkg/safepath"
)

// windowsVolumePrefixPattern matches a drive-volume prefix such as
// "C:" at the start of an entry name.
var windowsVolumePrefixPattern = regexp.MustCompile(`^[A-Za-z]:`)

// Extract writes the named entry to a file under destDir, creating
// parent directories as needed, and returns the created path. Entry
// names that would resolve outside destDir are rejected.
func (a *Archive) Extract(name, destDir string) (string, error) {
	e, err := a.Entry(name)
	if err != nil {
		return "", err
	}
	return a.ExtractEntry(e, destDir)
}

// ExtractAll extracts the named entries, or every entry when no names
// are given, under destDir.
func (a *Archive) ExtractAll(destDir string, names ...string) error {
	if len(names) == 0 {
		for _, e := range a.entries {
			if _, err := a.ExtractEntry(e, destDir); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if _, err := a.Extract(name, destDir); err != nil {
			return err
		}
	}
	return nil
}

// ExtractEntry extracts one entry under destDir and returns the
// created path.
func (a *Archive) ExtractEntry(e *Entry, destDir string) (string, error) {
	validator, err := safepath.New(destDir)
	if err != nil {
		return "", err
	}
	return a.extractEntry(e, validator)
}

func (a *Archive) extractEntry(e *Entry, validator *safepath.Validator) (string, error) {
	target, err := resolveExtractTarget(validator, e.Name)
	if err != nil {
		return "", err
	}

	perm := e.Mode().Perm()
	if e.IsDir() {
		if perm == 0 {
			perm = 0o755
		}
		if err := os.MkdirAll(target, perm|0o755); err != nil {
			return "", err
		}
		return target, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if perm == 0 {
		perm = 0o644
	}

	src, err := a.OpenEntry(e)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = src.Close()
	}()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", err
	}
	return target, dst.Close()
}

// resolveExtractTarget validates an entry name and resolves it to an
// absolute path under the validator's root. Traversal segments, drive
// prefixes and NUL bytes are rejected before the filesystem is
// touched, and a leading slash is stripped; the resolved path is then
// checked against the root, symlinks included.
func resolveExtractTarget(validator *safepath.Validator, entryName string) (string, error) {
	if err := validateEntryPath(entryName); err != nil {
		return "", fmt.Errorf("%w: illegal entry path %q: %w", ErrInvalidArgument, entryName, err)
	}
	target := filepath.Join(validator.Root(), filepath.FromSlash(strings.TrimPrefix(entryName, "/")))
	if err := validator.ValidateTarget(target); err != nil {
		return "", fmt.Errorf("%w: entry %q: %w", ErrInvalidArgument, entryName, err)
	}
	return target, nil
}

// validateEntryPath checks that an entry name is a safe relative path
// for extraction.
func validateEntryPath(entryName string) error {
	normalized := strings.ReplaceAll(entryName, `\`, "/")
	if normalized == "" {
		return fmt.Errorf("empty entry name")
	}
	if windowsVolumePrefixPattern.MatchString(normalized) {
		return fmt.Errorf("entry name carries a drive prefix")
	}
	if strings.ContainsRune(normalized, '\x00') {
		return fmt.Errorf("entry name contains a NUL byte")
	}

	// A leading slash is tolerated and stripped, matching the way the
	// directory itself normalizes names.
	trimmed := strings.TrimRight(strings.TrimPrefix(normalized, "/"), "/")
	if trimmed == "" {
		return fmt.Errorf("entry name has no path segments")
	}
	for part := range strings.SplitSeq(trimmed, "/") {
		if part == ".." {
			return fmt.Errorf("entry name contains path traversal")
		}
	}

	clean := path.Clean(trimmed)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return fmt.Errorf("entry name resolves outside the target directory")
	}
	return nil
}

// Stat returns a file-info view of the named entry, mirroring the
// directory listing.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	e, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	return entryFileInfo{e}, nil
}

// entryFileInfo adapts an Entry to fs.FileInfo.
type entryFileInfo struct {
	e *Entry
}

func (fi entryFileInfo) Name() string       { return path.Base(fi.e.Name) }
func (fi entryFileInfo) Size() int64        { return int64(fi.e.UncompressedSize) }
func (fi entryFileInfo) Mode() fs.FileMode  { return fi.e.Mode() }
func (fi entryFileInfo) ModTime() time.Time { return fi.e.Modified }
func (fi entryFileInfo) IsDir() bool        { return fi.e.IsDir() }
func (fi entryFileInfo) Sys() any           { return fi.e }

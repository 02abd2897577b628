// Package collector gathers file metadata for archive creation.
package collector

import (
	"os"
	"path/filepath"
	"time"
)

// FileInfo holds metadata about one file or directory to be archived.
type FileInfo struct {
	Path    string    // full path to the file
	Rel     string    // path relative to the collection root, "/"-separated
	Size    int64     // file size in bytes
	ModTime time.Time // modification time
	IsDir   bool      // whether the entry is a directory
}

// Options configures collection.
type Options struct {
	// SkipFiles lists basenames to skip (e.g. editor droppings).
	SkipFiles []string
	// SkipDirs lists directory basenames whose subtrees are skipped.
	SkipDirs []string
	// IncludeDirs adds directory entries themselves to the result, so
	// empty directories survive archiving.
	IncludeDirs bool
}

// Collector walks directory trees and records what an archive writer
// needs for each member: the source path, the relative name it will be
// stored under, and its size and timestamp.
type Collector struct {
	skipFiles   map[string]bool
	skipDirs    map[string]bool
	includeDirs bool
}

// New creates a Collector with the given options.
func New(opts Options) *Collector {
	c := &Collector{
		skipFiles:   make(map[string]bool),
		skipDirs:    make(map[string]bool),
		includeDirs: opts.IncludeDirs,
	}
	for _, f := range opts.SkipFiles {
		c.skipFiles[f] = true
	}
	for _, d := range opts.SkipDirs {
		c.skipDirs[d] = true
	}
	return c
}

// Collect walks the tree under root and returns metadata for every
// file found, in walk order. The root directory itself is never
// included.
func (c *Collector) Collect(root string) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if c.skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			if c.includeDirs {
				files = append(files, FileInfo{
					Path:    path,
					Rel:     rel,
					ModTime: info.ModTime(),
					IsDir:   true,
				})
			}
			return nil
		}

		if c.skipFiles[info.Name()] {
			return nil
		}
		files = append(files, FileInfo{
			Path:    path,
			Rel:     rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

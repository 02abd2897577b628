package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"zipkit/pkg/archive"
	"zipkit/pkg/collector"
)

var defaultSkipFiles = []string{".DS_Store", "Thumbs.db"}

func buildCreateCommand() *cobra.Command {
	var deflate bool
	var allowZip64 bool

	cmd := &cobra.Command{
		Use:   "create [archive] [path...]",
		Short: "Create an archive from files and directories",
		Long: `Creates a fresh archive containing the given files. Directories
are added recursively; member names are relative to each directory
argument's parent.

Examples:
  zipkit create backup.zip notes.txt
  zipkit create --deflate backup.zip photos/
  zipkit create --zip64 huge.zip dataset/`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runCreate(args[0], args[1:], deflate, allowZip64)
		},
	}
	cmd.Flags().BoolVar(&deflate, "deflate", false, "Compress entries with deflate instead of storing them")
	cmd.Flags().BoolVar(&allowZip64, "zip64", false, "Allow ZIP64 extensions for large archives")
	return cmd
}

func runCreate(archivePath string, sources []string, deflate, allowZip64 bool) error {
	opts := archive.Options{AllowZip64: allowZip64}
	if deflate {
		opts.Method = archive.Deflate
	}

	a, err := archive.OpenWith(archivePath, archive.ModeWrite, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	var added int
	for _, src := range sources {
		n, err := addSource(a, src)
		if err != nil {
			return err
		}
		added += n
	}

	if err := a.Close(); err != nil {
		return err
	}
	fmt.Printf("Created %s with %d entries\n", archivePath, added)
	return nil
}

// addSource adds one command-line argument to the archive: a single
// file as-is, a directory recursively with names relative to the
// directory's parent.
func addSource(a *archive.Archive, src string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("cannot access %s: %w", src, err)
	}

	if !info.IsDir() {
		if err := a.WriteFile(src, filepath.Base(src)); err != nil {
			return 0, fmt.Errorf("failed to add %s: %w", src, err)
		}
		printAdded(filepath.Base(src))
		return 1, nil
	}

	c := collector.New(collector.Options{
		SkipFiles:   defaultSkipFiles,
		IncludeDirs: true,
	})
	files, err := c.Collect(src)
	if err != nil {
		return 0, fmt.Errorf("failed to collect %s: %w", src, err)
	}

	base := filepath.Base(filepath.Clean(src))
	if err := a.WriteFile(src, base); err != nil {
		return 0, fmt.Errorf("failed to add %s: %w", src, err)
	}
	printAdded(base + "/")
	added := 1

	for _, f := range files {
		name := path.Join(base, f.Rel)
		if err := a.WriteFile(f.Path, name); err != nil {
			return added, fmt.Errorf("failed to add %s: %w", f.Path, err)
		}
		if f.IsDir {
			name += "/"
		}
		printAdded(name)
		added++
	}
	return added, nil
}

func printAdded(name string) {
	if verbose {
		fmt.Printf("ADD: %s\n", name)
	}
}

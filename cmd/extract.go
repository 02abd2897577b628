package main

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"zipkit/pkg/archive"
)

func buildExtractCommand() *cobra.Command {
	var include []string

	cmd := &cobra.Command{
		Use:   "extract [archive] [directory]",
		Short: "Extract entries to a directory",
		Long: `Extracts entries under the given directory, creating it if
needed. Entry names that would resolve outside the directory are
rejected.

Examples:
  zipkit extract backup.zip ./restored
  zipkit extract --include 'docs/**' backup.zip ./restored
  zipkit extract --password secret backup.zip ./restored`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runExtract(args[0], args[1], include)
		},
	}
	cmd.Flags().StringArrayVar(&include, "include", nil, "Only entries matching this glob pattern (repeatable)")
	return cmd
}

func runExtract(path, destDir string, include []string) error {
	a, err := archive.Open(path, archive.ModeRead)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()
	if password != "" {
		a.SetPassword([]byte(password))
	}

	if err := ensureDirectory(destDir); err != nil {
		return err
	}

	var extracted int
	for _, e := range a.Entries() {
		ok, err := matchesInclude(e.Name, include)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		target, err := a.ExtractEntry(e, destDir)
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", e.Name, err)
		}
		extracted++
		if verbose {
			fmt.Printf("EXTRACT: %s -> %s\n", e.Name, target)
		}
	}

	fmt.Printf("Extracted %d entries to %s\n", extracted, destDir)
	return nil
}

// matchesInclude reports whether name matches any of the given glob
// patterns. No patterns means everything matches.
func matchesInclude(name string, include []string) (bool, error) {
	if len(include) == 0 {
		return true, nil
	}
	for _, pattern := range include {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

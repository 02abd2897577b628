package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zipkit/pkg/archive"
)

func buildListCommand() *cobra.Command {
	var include []string

	cmd := &cobra.Command{
		Use:   "list [archive]",
		Short: "Show the archive directory",
		Long: `Prints one line per entry: name, modification time and
uncompressed size, in directory order.

Examples:
  zipkit list backup.zip
  zipkit list --include '**/*.txt' backup.zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runList(args[0], include)
		},
	}
	cmd.Flags().StringArrayVar(&include, "include", nil, "Only entries matching this glob pattern (repeatable)")
	return cmd
}

func runList(path string, include []string) error {
	a, err := archive.Open(path, archive.ModeRead)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	fmt.Printf("%-46s %19s %12s\n", "File Name", "Modified    ", "Size")
	for _, e := range a.Entries() {
		ok, err := matchesInclude(e.Name, include)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		fmt.Printf("%-46s %s %12d\n", e.Name, e.Modified.Format("2006-01-02 15:04:05"), e.UncompressedSize)
	}
	return nil
}

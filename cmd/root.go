package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	verbose  bool
	password string
)

func buildRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "zipkit",
		Version: version,
		Short:   "Inspect, verify, extract and create zip archives",
		Long: `zipkit works with archives in the PKZIP container format,
including the ZIP64 large-file extension and entries protected with
traditional PKZIP encryption.

Commands:
  list     Show the archive directory
  test     Read every entry and verify its checksum
  extract  Extract entries to a directory
  create   Create an archive from files and directories

Examples:
  zipkit list backup.zip
  zipkit test backup.zip
  zipkit extract backup.zip ./restored
  zipkit extract --include 'docs/**' backup.zip ./restored
  zipkit create --deflate backup.zip notes.txt photos/

Compression:
  Methods store (0) and deflate (8) are supported. Archives using
  other methods can be listed but not extracted.`,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().StringVar(&password, "password", "", "Password for encrypted entries")

	return cmd
}

package main

import "os"

func main() {
	rootCmd := buildRootCommand()
	rootCmd.AddCommand(buildListCommand())
	rootCmd.AddCommand(buildTestCommand())
	rootCmd.AddCommand(buildExtractCommand())
	rootCmd.AddCommand(buildCreateCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

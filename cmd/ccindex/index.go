package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xiang66/ccls/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:          "index [dir]",
	Short:        "Index every translation unit under a directory",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runIndex,
}

func init() {
	indexCmd.Flags().BoolP("verbose", "v", false, "print every per-file update")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	p, err := indexer.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	stats, err := p.IndexProject(cmd.Context(), root, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d files (%d skipped, %d failed, %d removed), wrote %d indexes with %d symbols in %v\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed, stats.FilesRemoved,
		stats.FilesWritten, stats.SymbolsIndexed, stats.Duration)
	if verbose {
		for _, u := range stats.Updates {
			fmt.Fprintln(out, u)
		}
	}
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", msg)
	}
	if stats.FilesFailed > 0 {
		return fmt.Errorf("%d files failed to index", stats.FilesFailed)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xiang66/ccls/internal/indexer"
)

var resetCmd = &cobra.Command{
	Use:          "reset",
	Short:        "Delete every index from the database and the cache directory",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runReset,
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, err := indexer.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if err := p.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset %s and %s\n", cfg.DBPath, cfg.CacheDir)
	return nil
}

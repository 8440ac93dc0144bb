package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xiang66/ccls/internal/cache"
	"github.com/xiang66/ccls/internal/consumer"
	"github.com/xiang66/ccls/internal/frontend"
	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/internal/indexer"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the cached index of a file",
	Long: `dump prints the cached index of a file as JSON. With --diff it parses the
file again and prints a unified diff between the cached and the fresh index.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runDump,
}

func init() {
	dumpCmd.Flags().Bool("diff", false, "diff the cached index against a fresh parse")
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	c, err := cache.New(cfg.CacheDir, cfg.Format(), cfg.CacheSize)
	if err != nil {
		return err
	}
	cached, err := c.Load(path)
	if err != nil {
		return err
	}
	if cached == nil {
		return fmt.Errorf("no cached index for %s", path)
	}

	out := cmd.OutOrStdout()
	if diff, _ := cmd.Flags().GetBool("diff"); !diff {
		s, err := cached.ToString()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
		return nil
	}

	fresh, err := reparse(cmd, cached)
	if err != nil {
		return err
	}
	text, err := index.RenderDiff(cached, fresh)
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Fprintln(out, "no changes")
		return nil
	}
	fmt.Fprint(out, text)
	return nil
}

// reparse indexes the translation unit of cached again without touching the
// cache and returns the fresh index of the same file
func reparse(cmd *cobra.Command, cached *index.IndexFile) (*index.IndexFile, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	main := cached.Path
	if cached.ImportFile != "" {
		main = cached.ImportFile
	}
	args := cached.Args
	if args == nil {
		args = cfg.Args()
	}

	w := indexer.NewWorker(frontend.NewTreeSitter(cfg.IncludeDirs))
	defer func() { _ = w.Close() }()

	files, err := w.Index(cmd.Context(), consumer.NewSharedState(), main, args, nil)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.Path == cached.Path {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%s is no longer reached from %s", cached.Path, main)
}

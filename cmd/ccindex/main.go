package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/xiang66/ccls/internal/config"
	"github.com/xiang66/ccls/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "ccindex",
	Short: "Persistent cross-file symbol index for C and C++",
	Long: `ccindex parses C/C++ translation units, keeps one index per physical file
in a cache directory and answers definition and reference queries over MCP.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ccindex\n")
		fmt.Fprintf(out, "Version: %s\n", version)
		fmt.Fprintf(out, "Build Time: %s\n", buildTime)
		fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
		fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
	},
}

// loadConfig reads the --config file, or .ccindex.yaml when present
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Workers = workers
	}
	return cfg, nil
}

func main() {
	// stdout is reserved for the MCP protocol
	log.SetOutput(os.Stderr)

	rootCmd.Version = version
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "configuration file (default .ccindex.yaml)")
	rootCmd.PersistentFlags().Int("workers", 0, "parse workers, overrides the configuration")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main provides the quadmap binary entry point.
// quadmap inspects the quad stores behind an entity mapping deployment: it
// shows which store owns a type or identity, and dumps or restores quads.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "quadmap"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts appOptions

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Inspect the quad stores behind entity mappings",
		Long: `quadmap inspects the quad stores an entity mapping deployment writes to.

It loads the config file and the repository descriptor, then:
- lists the stores and the types and IRIs each one owns
- resolves which store owns a type name or identity IRI
- prints every quad about one entity
- dumps a store as N-Quads, JSON or YAML, and imports JSON dumps`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.repositories, "repositories", "", "Repository descriptor path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	cmd.AddCommand(
		storesCmd(&opts),
		routeCmd(&opts),
		describeCmd(&opts),
		dumpCmd(&opts),
		importCmd(&opts),
		checkCmd(&opts),
	)

	return cmd
}

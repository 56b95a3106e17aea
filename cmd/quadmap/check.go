package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quadmap/internal/router"
	"quadmap/internal/watcher"
)

func checkCmd(opts *appOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the repository descriptor",
		Long: `Validate the repository descriptor and print the store each bound type
routes to. With --watch the descriptor is checked again every time it is
saved, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runE(opts, func(a *app, out io.Writer, _ []string) error {
			printRoutes(a.router.Descriptor(), out)
			if !watch {
				return nil
			}
			if a.cfg.Repositories == "" {
				return fmt.Errorf("no repository descriptor configured")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := watcher.New([]string{a.cfg.Repositories}, func(path string) {
				if err := checkDescriptor(path, out); err != nil {
					fmt.Fprintf(out, "%s: %v\n", path, err)
				}
			}).WithLogger(a.logger)

			if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Check again whenever the descriptor changes")
	return cmd
}

func checkDescriptor(path string, out io.Writer) error {
	desc, err := router.LoadDescriptor(path)
	if err != nil {
		return err
	}
	printRoutes(desc, out)
	return nil
}

func printRoutes(desc *router.Descriptor, out io.Writer) {
	fmt.Fprintf(out, "ok: %d stores, default %q\n", len(desc.Stores), desc.Default)
	for _, s := range desc.Stores {
		for _, b := range s.Types {
			fmt.Fprintf(out, "  %s -> %s\n", b.Name, s.Name)
		}
	}
}

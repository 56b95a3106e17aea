package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cayleygraph/quad"
	"github.com/spf13/cobra"

	"quadmap/internal/codec"
	"quadmap/internal/router"
	"quadmap/internal/store"
)

func runE(opts *appOptions, run func(a *app, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	wrapped := withApp(opts, run)
	return func(cmd *cobra.Command, args []string) error {
		return wrapped(cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
	}
}

func storesCmd(opts *appOptions) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "stores",
		Short: "List stores and what they own",
		Args:  cobra.NoArgs,
		RunE: runE(opts, func(a *app, out io.Writer, _ []string) error {
			desc := a.router.Descriptor()
			if asYAML {
				data, err := router.ExportDescriptor(desc)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STORE\tINDEX\tTYPES\tURIS\tDEFAULT")
			for _, s := range desc.Stores {
				types := make([]string, 0, len(s.Types))
				for _, b := range s.Types {
					types = append(types, b.Name)
				}
				def := ""
				if s.Name == desc.Default {
					def = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%s\n", s.Name, s.Index, types, s.URIs, def)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the descriptor as YAML")
	return cmd
}

func routeCmd(opts *appOptions) *cobra.Command {
	var isType bool
	cmd := &cobra.Command{
		Use:   "route <iri|type>",
		Short: "Print the store owning an identity IRI or type name",
		Args:  cobra.ExactArgs(1),
		RunE: runE(opts, func(a *app, out io.Writer, args []string) error {
			var (
				name string
				err  error
			)
			if isType {
				name, err = a.router.StoreForType(args[0])
			} else {
				name, err = a.router.StoreForIRI(a.expand(args[0]))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, name)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&isType, "type", false, "Treat the argument as a type name")
	return cmd
}

func describeCmd(opts *appOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "describe <iri>",
		Short: "Print every quad about an entity from the store that owns it",
		Args:  cobra.ExactArgs(1),
		RunE: runE(opts, func(a *app, out io.Writer, args []string) error {
			ctx := context.Background()
			exp, err := codec.ExporterFor(format)
			if err != nil {
				return err
			}
			iri := a.expand(args[0])
			conn, err := a.router.ForIRI(ctx, iri)
			if err != nil {
				return err
			}
			quads, err := conn.Query(ctx, store.Pattern{Subject: quad.IRI(iri)})
			if err != nil {
				return err
			}
			if len(quads) == 0 {
				return fmt.Errorf("no quads about %s in store %s", iri, conn.ID())
			}
			codec.Sort(quads)
			return exp.Export(quads, out)
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", "nquads", "Output format (nquads, json, yaml)")
	return cmd
}

func dumpCmd(opts *appOptions) *cobra.Command {
	var (
		format  string
		graph   string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "dump <store>",
		Short: "Write every quad in a store",
		Args:  cobra.ExactArgs(1),
		RunE: runE(opts, func(a *app, out io.Writer, args []string) (err error) {
			start := time.Now()
			defer func() { a.metrics.ObserveOperation("dump", start, err) }()
			ctx := context.Background()
			exp, err := codec.ExporterFor(format)
			if err != nil {
				return err
			}
			conn, err := a.router.Connection(ctx, args[0])
			if err != nil {
				return err
			}

			var p store.Pattern
			if graph != "" {
				p.Context = quad.IRI(graph)
			}
			quads, err := conn.Query(ctx, p)
			if err != nil {
				return err
			}
			codec.Sort(quads)

			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := exp.Export(quads, out); err != nil {
				return err
			}
			a.logger.Info("dumped store", "store", args[0], "quads", len(quads), "format", format)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", "nquads", "Output format (nquads, json, yaml)")
	cmd.Flags().StringVar(&graph, "context", "", "Only dump quads in this context IRI")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func importCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <store> <file.json>",
		Short: "Add the quads of a JSON dump to a store in one transaction",
		Args:  cobra.ExactArgs(2),
		RunE: runE(opts, func(a *app, out io.Writer, args []string) (err error) {
			start := time.Now()
			defer func() { a.metrics.ObserveOperation("import", start, err) }()
			ctx := context.Background()
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			quads, err := codec.NewJSONCodec().Parse(f)
			if err != nil {
				return err
			}
			conn, err := a.router.Connection(ctx, args[0])
			if err != nil {
				return err
			}

			if err := conn.SetAutoCommit(ctx, false); err != nil {
				return err
			}
			for _, q := range quads {
				if err := conn.Add(ctx, q); err != nil {
					if rerr := conn.Rollback(ctx); rerr != nil {
						a.logger.Warn("rollback failed", "error", rerr)
					}
					return err
				}
			}
			if err := conn.SetAutoCommit(ctx, true); err != nil {
				return err
			}
			a.metrics.QuadsAdded(conn.ID(), len(quads))
			fmt.Fprintf(out, "imported %d quads into %s\n", len(quads), args[0])
			return nil
		}),
	}
}

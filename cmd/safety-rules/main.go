// Command safety-rules runs the remote half of the process topology and
// prepares validator identities.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"xdao.co/safetyrules/storage/kvregistry"

	_ "xdao.co/safetyrules/storage/memory"
	_ "xdao.co/safetyrules/storage/ondisk"
	_ "xdao.co/safetyrules/storage/sqlite"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type globalFlags struct {
	verbose bool
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "safety-rules",
		Short: "Validator safety rules server and tooling",
		Long: `safety-rules hosts a validator's safety rules in a separate process.

Consensus nodes configured with service type "process" connect to the
address given to "serve". Storage is bootstrapped before the listener is
opened; any startup error aborts with exit status 1.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log refusals and other debug output")

	root.AddCommand(
		newServeCmd(errOut, g),
		newStatusCmd(out),
		newGenIdentityCmd(out),
		newBackendsCmd(out),
	)
	return root
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	l := pterm.DefaultLogger.WithWriter(w)
	if verbose {
		l = l.WithLevel(pterm.LogLevelDebug)
	}
	return slog.New(pterm.NewSlogHandler(l))
}

func newBackendsCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the storage backends compiled into this binary",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			for _, b := range kvregistry.List() {
				line := b.Name
				if b.Description != "" {
					line += "\t" + b.Description
				}
				if len(b.ConfigKeys) > 0 {
					line += "\t(config: " + strings.Join(b.ConfigKeys, ", ") + ")"
				}
				_, _ = fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

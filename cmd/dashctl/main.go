// Command dashctl administers the dashboard's sections, pages and dataset
// tables from the command line.
//
// Usage examples:
//
//	dashctl bootstrap
//	dashctl section create "Operations"
//	dashctl page create --section 1 --type dataset "Orders"
//	dashctl ingest --page 1 orders-2024.csv orders-2025.xlsx
//	dashctl rows list page_1_orders
//	dashctl rows update page_1_orders 3 region=EU "order total=12.50"
//	dashctl export page_1_orders
//
// Every command prints JSON on stdout. Failures print an outcome report
// ({"success":false,"kind":…,"message":…}) on stderr and exit non-zero.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dashboard/internal/config"
	"dashboard/internal/outcome"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		_ = emit(os.Stderr, outcome.Report(err, "", 0))
		os.Exit(1)
	}
}

// cli carries the root flags and the lazily opened app.
type cli struct {
	out        io.Writer
	configPath string
	verbose    bool
	app        *app
}

// open builds the app on first use so that commands like "config" never
// touch the database.
func (c *cli) open(ctx context.Context) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	a, err := openApp(ctx, cfg, c.verbose)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// run executes one dashctl invocation.
func run(ctx context.Context, args []string, out io.Writer) error {
	c := &cli{out: out}
	defer func() {
		if c.app != nil {
			c.app.Close()
		}
	}()
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "dashctl",
		Short:         "Administer dashboard sections, pages and dataset tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (.json, .yaml); env DATABASE_URL overrides storage")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newConfigCmd(c),
		newBootstrapCmd(c),
		newSectionCmd(c),
		newPageCmd(c),
		newIngestCmd(c),
		newRowsCmd(c),
		newExportCmd(c),
		newTablesCmd(c),
	)
	return root
}

func emit(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dashboard/internal/catalog"
	"dashboard/internal/config"
	"dashboard/internal/ingest"
	"dashboard/internal/outcome"
	"dashboard/internal/parser"
	"dashboard/internal/source"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, outcome.New(outcome.KindNotFound, "args", "invalid id %q", s)
	}
	return id, nil
}

func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration and its validation issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			issues := config.Validate(cfg)
			if err := emit(c.out, struct {
				Config config.Config   `json:"config"`
				Issues []config.Issue `json:"issues"`
			}{cfg, issues}); err != nil {
				return err
			}
			if config.HasErrors(issues) {
				return fmt.Errorf("config has errors")
			}
			return nil
		},
	}
}

func newBootstrapCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the sections, pages and dynamic_table relations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.store.EnsureSchema(cmd.Context()); err != nil {
				return outcome.Wrap(outcome.KindSchema, "bootstrap", err)
			}
			return emit(c.out, outcome.Report(nil, "schema ready", 0))
		},
	}
}

type degradedResult struct {
	Degraded bool `json:"degraded"`
	Value    any  `json:"value,omitempty"`
}

func newSectionCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "section", Short: "Manage sections"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create a section",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				s, degraded, err := a.dir.CreateSection(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(c.out, degradedResult{degraded, s})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List sections with their pages",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				secs, degraded, err := a.dir.Sections(cmd.Context())
				if err != nil {
					return err
				}
				return emit(c.out, degradedResult{degraded, secs})
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a section and its pages; dataset tables are kept",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				a, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				degraded, err := a.dir.DeleteSection(cmd.Context(), id)
				if err != nil {
					return err
				}
				return emit(c.out, degradedResult{Degraded: degraded})
			},
		},
	)
	return cmd
}

func newPageCmd(c *cli) *cobra.Command {
	var (
		sectionID int64
		pageType  string
		rawConfig string
	)
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a page in a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := catalog.ParsePageType(pageType)
			if err != nil {
				return outcome.Wrap(outcome.KindWrite, "create_page", err)
			}
			var conf json.RawMessage
			if rawConfig != "" {
				conf = json.RawMessage(rawConfig)
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			p, degraded, err := a.dir.CreatePage(cmd.Context(), args[0], typ, sectionID, conf)
			if err != nil {
				return err
			}
			return emit(c.out, degradedResult{degraded, p})
		},
	}
	create.Flags().Int64Var(&sectionID, "section", 0, "owning section id")
	create.Flags().StringVar(&pageType, "type", string(catalog.Dataset), "page type: link_operations, list, dataset or repository")
	create.Flags().StringVar(&rawConfig, "page-config", "", "page configuration as a JSON document")
	_ = create.MarkFlagRequired("section")

	cmd := &cobra.Command{Use: "page", Short: "Manage pages"}
	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "get ID",
			Short: "Show one page",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				a, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				ref, err := a.dir.Page(cmd.Context(), id)
				if err != nil {
					return err
				}
				_, degraded := ref.(catalog.DegradedPage)
				return emit(c.out, degradedResult{degraded, ref.Page()})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List all pages",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				secs, degraded, err := a.dir.Sections(cmd.Context())
				if err != nil {
					return err
				}
				pages := []catalog.Page{}
				for _, s := range secs {
					pages = append(pages, s.Pages...)
				}
				return emit(c.out, degradedResult{degraded, pages})
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a page; its dataset table is kept",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				a, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				degraded, err := a.dir.DeletePage(cmd.Context(), id)
				if err != nil {
					return err
				}
				return emit(c.out, degradedResult{Degraded: degraded})
			},
		},
	)
	return cmd
}

type fileReport struct {
	File    string          `json:"file"`
	Outcome outcome.Outcome `json:"outcome"`
	Result  *ingest.Result  `json:"result,omitempty"`
}

func newIngestCmd(c *cli) *cobra.Command {
	var (
		pageID    int64
		format    string
		sheet     string
		delimiter string
		fromList  string
	)
	cmd := &cobra.Command{
		Use:   "ingest --page ID [FILE|URL]...",
		Short: "Load tabular files into a dataset page",
		Long: `Parses each file (CSV/TSV, JSON/NDJSON, XLSX; optionally .gz, .zst or .xz
compressed), creates or widens the page's table and appends the rows. Inputs
are local paths or http(s) URLs, given as arguments or via --from-list. They
are fetched and parsed concurrently; writes into one table happen one at a
time.`,
		RunE: func(cmd *cobra.Command, files []string) error {
			if fromList != "" {
				listed, err := source.ReadList(fromList)
				if err != nil {
					return outcome.Wrap(outcome.KindParse, "ingest", err)
				}
				files = append(files, listed...)
			}
			if len(files) == 0 {
				return outcome.New(outcome.KindParse, "ingest", "no input files")
			}
			f, err := parser.ParseFormat(format)
			if err != nil {
				return outcome.Wrap(outcome.KindParse, "ingest", err)
			}
			var delim rune
			if delimiter != "" {
				if delimiter == `\t` {
					delimiter = "\t"
				}
				delim, _ = utf8.DecodeRuneInString(delimiter)
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			page, err := a.dir.Page(ctx, pageID)
			if err != nil {
				return err
			}

			opener := source.New(source.Config{MaxRetries: 3})
			reports := make([]fileReport, len(files))
			var g errgroup.Group
			if n := a.cfg.Ingest.Concurrency; n > 0 {
				g.SetLimit(n)
			}
			for i, path := range files {
				i, path := i, path
				g.Go(func() error {
					reports[i] = ingestFile(ctx, a, opener, page, path, f, sheet, delim)
					return nil
				})
			}
			_ = g.Wait()

			if err := emit(c.out, reports); err != nil {
				return err
			}
			failed := 0
			for _, r := range reports {
				if !r.Outcome.Success {
					failed++
				}
			}
			if failed > 0 {
				return outcome.New(outcome.KindWrite, "ingest", "%d of %d files failed", failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&pageID, "page", 0, "target dataset page id")
	cmd.Flags().StringVar(&format, "format", "", "force a format: csv, tsv, json, ndjson, xlsx (default: sniff)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name for spreadsheets (default: first)")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", `field delimiter for delimited text, e.g. ";" or "\t"`)
	cmd.Flags().StringVar(&fromList, "from-list", "", "file listing one input path or URL per line")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}

func ingestFile(ctx context.Context, a *app, opener *source.Opener, page catalog.PageRef, path string, f parser.Format, sheet string, delim rune) fileReport {
	rep := fileReport{File: path}
	in, err := opener.Open(ctx, path)
	if err != nil {
		rep.Outcome = outcome.Report(outcome.Wrap(outcome.KindParse, "ingest", err), "", 0)
		return rep
	}
	defer in.Close()

	res, err := a.pipeline.Ingest(ctx, ingest.Source{
		Name:      in.Name,
		Format:    f,
		Reader:    in,
		Sheet:     sheet,
		Delimiter: delim,
	}, page)
	if err != nil {
		a.log.Debug("ingest: file failed", zap.String("file", path), zap.Error(err))
		rep.Outcome = outcome.Report(err, "", 0)
		return rep
	}
	rep.Outcome = outcome.Report(nil, fmt.Sprintf("%d rows into %s", res.RowsInserted, res.Table), res.RowsInserted)
	rep.Result = &res
	return rep
}

func newRowsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "rows", Short: "Read and edit dataset rows"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list TABLE",
			Short: "Print every row of a table ordered by id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				rows, err := a.rows.ReadAll(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(c.out, rows)
			},
		},
		&cobra.Command{
			Use:   "update TABLE ID COLUMN=VALUE...",
			Short: "Set columns of one row; an empty VALUE stores NULL",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				values := make(map[string]any, len(args)-2)
				for _, kv := range args[2:] {
					k, v, ok := strings.Cut(kv, "=")
					if !ok {
						return outcome.New(outcome.KindWrite, "update_row", "expected COLUMN=VALUE, got %q", kv)
					}
					if v == "" {
						values[k] = nil
					} else {
						values[k] = v
					}
				}
				a, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				if err := a.rows.UpdateRow(cmd.Context(), args[0], id, values); err != nil {
					return err
				}
				return emit(c.out, outcome.Report(nil, fmt.Sprintf("row %d updated", id), 1))
			},
		},
		&cobra.Command{
			Use:   "delete TABLE ID",
			Short: "Delete one row; deleting a missing row succeeds",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				a, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				if err := a.rows.DeleteRow(cmd.Context(), args[0], id); err != nil {
					return err
				}
				return emit(c.out, outcome.Report(nil, fmt.Sprintf("row %d deleted", id), 0))
			},
		},
	)
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export TABLE",
		Short: "Write a CSV snapshot of a table and print its path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			path, err := a.rows.ExportToFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(c.out, map[string]string{"path": path})
		},
	}
}

func newTablesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List registered dataset tables and their columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			descs, err := a.reg.List(cmd.Context(), a.eng)
			if err != nil {
				return outcome.Wrap(outcome.KindWrite, "tables", err)
			}
			return emit(c.out, descs)
		},
	}
}

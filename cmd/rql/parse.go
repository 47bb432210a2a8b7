package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/parser"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/query"
)

func newParseCommand(rootOpts *rootOptions) *cobra.Command {
	var params []string
	var showDiff bool

	cmd := &cobra.Command{
		Use:   "parse <query>",
		Short: "Parse a query and print its canonical form",
		Long: `Parse a query and print its canonical form, or its syntax tree with --format json.

With --diff the canonical form is shown as an edit of the input:
removed text as [-text-] and added text as {+text+}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(rootOpts, args[0], params)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case rootOpts.Format == "json":
				return writeJSON(out, q)
			case showDiff:
				_, err := fmt.Fprintln(out, renderDiff(args[0], q.String()))
				return err
			}
			_, err = fmt.Fprintln(out, q.String())
			return err
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "positional parameter for $1, $2, ... (repeatable)")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "show the canonical form as a diff against the input")

	return cmd
}

func newNormalizeCommand(rootOpts *rootOptions) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "normalize <query>",
		Short: "Print the sort, paging, projection and primary key summary of a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(rootOpts, args[0], params)
			if err != nil {
				return err
			}
			d := q.Normalize(query.NormalizeOptions{
				PrimaryKey: rootOpts.config.PrimaryKey,
				HardLimit:  rootOpts.config.HardLimit,
			})
			return writeJSON(cmd.OutOrStdout(), d)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "positional parameter for $1, $2, ... (repeatable)")

	return cmd
}

func newConvertersCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "converters",
		Short: "List the value converters usable as type:value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := converters.NewDefaultRegistry(rootOpts.config.Compatible).Names()
			return writeList(cmd.OutOrStdout(), rootOpts.Format, names)
		},
	}
}

func parseQuery(rootOpts *rootOptions, text string, rawParams []string) (*query.Query, error) {
	p, err := parser.New(rootOpts.config.ParserOptions())
	if err != nil {
		return nil, err
	}
	params, err := convertParams(rootOpts, rawParams)
	if err != nil {
		return nil, err
	}
	q, err := p.Parse(text, params...)
	if err != nil {
		return nil, err
	}
	rootOpts.logger.Debug().Str("canonical", q.String()).Int("params", len(params)).Msg("parsed query")
	return q, nil
}

// convertParams reads each parameter the way the parser reads a bare value.
func convertParams(rootOpts *rootOptions, raw []string) ([]any, error) {
	convert := converters.Auto(rootOpts.config.Compatible)
	params := make([]any, len(raw))
	for i, r := range raw {
		v, err := convert(r)
		if err != nil {
			return nil, fmt.Errorf("parameter $%d: %w", i+1, err)
		}
		params[i] = v
	}
	return params, nil
}

func renderDiff(from, to string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(from, to, false))
	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		}
	}
	return b.String()
}

func writeList(w io.Writer, format string, items []string) error {
	if format == "json" {
		return writeJSON(w, items)
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(w, item); err != nil {
			return err
		}
	}
	return nil
}

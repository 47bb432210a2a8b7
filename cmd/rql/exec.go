package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/engine"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/operators"
)

func newExecCommand(rootOpts *rootOptions) *cobra.Command {
	var params []string
	var dataPath string

	cmd := &cobra.Command{
		Use:   "exec <query>",
		Short: "Execute a query against a JSON or YAML array",
		Long: `Execute a query against a JSON or YAML array read from --data, or from stdin
when --data is "-". The text format prints one JSON document per result element.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readData(cmd.InOrStdin(), dataPath)
			if err != nil {
				return err
			}
			opts, err := rootOpts.config.EngineOptions(rootOpts.logger)
			if err != nil {
				return err
			}
			if opts.Parameters, err = convertParams(rootOpts, params); err != nil {
				return err
			}
			result, err := engine.Execute(args[0], opts, data)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), rootOpts.Format, result)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "positional parameter for $1, $2, ... (repeatable)")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "-", "data file holding a JSON or YAML array")

	return cmd
}

func newOperatorsCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "operators",
		Short: "List the operators a query may call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeList(cmd.OutOrStdout(), rootOpts.Format, operators.Defaults().Names())
		},
	}
}

// readData decodes a YAML document, which also covers JSON, into plain values.
func readData(stdin io.Reader, path string) (any, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var data any
	if err := yaml.NewDecoder(r).Decode(&data); err != nil {
		if err == io.EOF {
			return []any{}, nil
		}
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	if _, ok := data.([]any); !ok {
		return nil, fmt.Errorf("data must be an array, got %T", data)
	}
	return data, nil
}

func writeResult(w io.Writer, format string, result any) error {
	result = jsonSafe(result)
	if format == "json" {
		return writeJSON(w, result)
	}
	items, ok := result.([]any)
	if !ok {
		return writeCompact(w, result)
	}
	for _, item := range items {
		if err := writeCompact(w, item); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCompact(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// jsonSafe replaces the numbers JSON cannot carry with their text form.
func jsonSafe(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return converters.FormatNumber(val)
		}
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonSafe(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonSafe(item)
		}
		return out
	case *operators.Page:
		page := *val
		page.Items = jsonSafe(val.Items).([]any)
		return &page
	}
	return v
}

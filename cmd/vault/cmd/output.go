package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ssargent/recordvault/pkg/api"
)

// printJSON writes v as indented JSON to the command's output
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRecord displays a record view in the requested format
func printRecord(cmd *cobra.Command, view api.RecordView, format string) error {
	switch format {
	case "json", "":
		return printJSON(cmd, view)
	case "table":
		return printRecordTable(cmd, view)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printRecordTable(cmd *cobra.Command, view api.RecordView) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Key:\t%s\n", view.Key)
	fmt.Fprintf(w, "Schema:\t%s\n", view.Schema)
	fmt.Fprintf(w, "Length:\t%d / %d bytes\n", view.Length, view.Capacity)

	for _, name := range sortedKeys(view.Fields) {
		fmt.Fprintf(w, "%s:\t%v\n", name, view.Fields[name])
	}
	for _, name := range sortedKeys(view.Sequences) {
		fmt.Fprintf(w, "%s:\t%s\n", name, formatElements(view.Sequences[name]))
	}

	return w.Flush()
}

func formatElements(elems []uint64) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = strconv.FormatUint(e, 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

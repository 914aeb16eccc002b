package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/recordvault/pkg/api"
	"github.com/ssargent/recordvault/pkg/codec"
	"github.com/ssargent/recordvault/pkg/keys"
	"github.com/ssargent/recordvault/pkg/policy"
	"github.com/ssargent/recordvault/pkg/store"
)

func newRecordCmd() *cobra.Command {
	recordCmd := &cobra.Command{
		Use:         "record",
		Short:       "Create, grow, read and update records",
		Annotations: map[string]string{needsStore: "true"},
	}

	recordCmd.AddCommand(
		newRecordInitCmd(),
		newRecordAppendCmd(),
		newRecordUpdateCmd(),
		newRecordReadCmd(),
		newRecordStatCmd(),
		newRecordEqualsCmd(),
		newRecordListCmd(),
	)
	return recordCmd
}

func newRecordInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init <key>",
		Short: "Initialize a record at an address",
		Long: `Initialize a record with the given schema. The allocation is sized to
--capacity when given, otherwise to the encoded record plus any --reserve room.

Examples:
  vault record init <key> --schema numbers --seq values=1,2,3
  vault record init <key> --schema lottery --field number=7 --field status=Active --reserve winners=10`,
		Args: cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			key, err := keys.ParseAddress(args[0])
			if err != nil {
				return err
			}

			schemaName, _ := cmd.Flags().GetString("schema")
			fieldArgs, _ := cmd.Flags().GetStringArray("field")
			seqArgs, _ := cmd.Flags().GetStringArray("seq")
			capacity, _ := cmd.Flags().GetInt("capacity")
			reserve, _ := cmd.Flags().GetStringToInt("reserve")

			schema, ok := e.records.Schema(schemaName)
			if !ok {
				return fmt.Errorf("%w: %q", store.ErrUnknownSchema, schemaName)
			}
			fields, err := parseAssignments(fieldArgs)
			if err != nil {
				return err
			}
			sequences, err := parseSequences(seqArgs)
			if err != nil {
				return err
			}
			rec, err := api.BuildRecord(schema, fields, sequences)
			if err != nil {
				return err
			}

			receipt, err := e.records.Initialize(key, rec, api.CapacityFor(rec, capacity, reserve))
			return reportReceipt(cmd, receipt, err)
		}),
	}
	initCmd.Flags().String("schema", "", "Schema name (required)")
	initCmd.Flags().StringArray("field", nil, "Field assignment name=value (repeatable)")
	initCmd.Flags().StringArray("seq", nil, "Initial sequence elements name=1,2,3 (repeatable)")
	initCmd.Flags().Int("capacity", 0, "Explicit allocation capacity in bytes")
	initCmd.Flags().StringToInt("reserve", nil, "Reserve room for N elements per sequence, e.g. values=10")
	_ = initCmd.MarkFlagRequired("schema")
	return initCmd
}

func newRecordAppendCmd() *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append <key> <element>...",
		Short: "Append elements to a record sequence, growing it if needed",
		Long: `Append elements to a sequence. When the record no longer fits its
allocation, the allocation grows under the growth policy for the given context.

Examples:
  vault record append <key> 4 5 6
  vault record append <key> --sequence winners --context nested 11`,
		Args: cobra.MinimumNArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			key, err := keys.ParseAddress(args[0])
			if err != nil {
				return err
			}
			sequence, _ := cmd.Flags().GetString("sequence")
			contextName, _ := cmd.Flags().GetString("context")

			execCtx, err := policy.ParseContext(contextName)
			if err != nil {
				return err
			}
			elements, err := parseElements(args[1:])
			if err != nil {
				return err
			}

			receipt, err := e.records.Append(key, sequence, elements, execCtx)
			return reportReceipt(cmd, receipt, err)
		}),
	}
	appendCmd.Flags().String("sequence", "", "Sequence name (optional when the schema has one sequence)")
	appendCmd.Flags().String("context", "top-level", "Execution context: top-level or nested")
	return appendCmd
}

func newRecordUpdateCmd() *cobra.Command {
	updateCmd := &cobra.Command{
		Use:   "update <key>",
		Short: "Assign scalar fields of a record",
		Long: `Assign one or more scalar fields. Either every assignment is applied or none.

Example:
  vault record update <key> --field status=Completed --field open=false`,
		Args: cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			key, err := keys.ParseAddress(args[0])
			if err != nil {
				return err
			}
			fieldArgs, _ := cmd.Flags().GetStringArray("field")
			if len(fieldArgs) == 0 {
				return fmt.Errorf("at least one --field is required")
			}

			rec, err := e.records.Read(key)
			if err != nil {
				return err
			}
			fields, err := parseAssignments(fieldArgs)
			if err != nil {
				return err
			}
			updates, err := api.ParseUpdates(rec.Schema, fields)
			if err != nil {
				return err
			}

			receipt, err := e.records.Update(key, updates)
			return reportReceipt(cmd, receipt, err)
		}),
	}
	updateCmd.Flags().StringArray("field", nil, "Field assignment name=value (repeatable)")
	return updateCmd
}

func newRecordReadCmd() *cobra.Command {
	readCmd := &cobra.Command{
		Use:   "read <key>",
		Short: "Decode and print a record",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			key, err := keys.ParseAddress(args[0])
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")

			rec, err := e.records.Read(key)
			if err != nil {
				return err
			}
			st, err := e.records.Stat(key)
			if err != nil {
				return err
			}
			return printRecord(cmd, api.NewRecordView(key, rec, st), format)
		}),
	}
	readCmd.Flags().StringP("format", "o", "json", "Output format: json or table")
	return readCmd
}

func newRecordStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <key>",
		Short: "Show a record's schema, capacity and length",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			key, err := keys.ParseAddress(args[0])
			if err != nil {
				return err
			}
			st, err := e.records.Stat(key)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		}),
	}
}

func newRecordEqualsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "equals <key> <field> <value>",
		Short: "Compare a stored field with a value",
		Args:  cobra.ExactArgs(3),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			key, err := keys.ParseAddress(args[0])
			if err != nil {
				return err
			}
			rec, err := e.records.Read(key)
			if err != nil {
				return err
			}
			i := rec.Schema.FieldIndex(args[1])
			if i < 0 {
				return fmt.Errorf("%w: schema %s has no field %q", codec.ErrInvalidValue, rec.Schema.Name, args[1])
			}
			want, err := api.ParseField(rec.Schema.Fields[i], args[2])
			if err != nil {
				return err
			}
			equal, err := e.records.FieldEquals(key, args[1], want)
			if err != nil {
				return err
			}
			return printJSON(cmd, api.FieldEqualsResponse{Field: args[1], Equal: equal})
		}),
	}
}

func newRecordListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List record addresses",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			for _, key := range e.records.Keys() {
				cmd.Println(key.String())
			}
			return nil
		}),
	}
}

func newReceiptCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "receipt <id>",
		Short:       "Show the persisted receipt of an operation",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{needsStore: "true"},
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			id, err := ksuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid receipt id: %w", err)
			}
			receipt, err := e.records.Receipt(id)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		}),
	}
}

func newSchemasCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "schemas",
		Short:       "List registered record schemas",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{needsStore: "true"},
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			views := make([]api.SchemaView, 0)
			for _, s := range e.records.Schemas() {
				views = append(views, api.NewSchemaView(s))
			}
			return printJSON(cmd, views)
		}),
	}
}

// reportReceipt prints the receipt of a mutating operation and wraps its error
// with the failure code
func reportReceipt(cmd *cobra.Command, receipt *store.Receipt, err error) error {
	if receipt != nil {
		if perr := printJSON(cmd, receipt); perr != nil && err == nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", store.Kind(err), err)
	}
	return nil
}

// parseAssignments splits name=value pairs on the first '='
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: want name=value", arg)
		}
		out[name] = value
	}
	return out, nil
}

// parseSequences parses name=1,2,3 pairs; an empty list is allowed
func parseSequences(args []string) (map[string][]uint64, error) {
	assignments, err := parseAssignments(args)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]uint64, len(assignments))
	for name, list := range assignments {
		var elems []uint64
		if list != "" {
			elems, err = parseElements(strings.Split(list, ","))
			if err != nil {
				return nil, fmt.Errorf("sequence %s: %w", name, err)
			}
		}
		out[name] = elems
	}
	return out, nil
}

func parseElements(args []string) ([]uint64, error) {
	elems := make([]uint64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(strings.TrimSpace(a), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid element %q: %w", a, err)
		}
		elems = append(elems, v)
	}
	return elems, nil
}

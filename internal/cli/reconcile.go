package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/logsync/internal/ir"
	"github.com/roach88/logsync/internal/reconcile"
	"github.com/roach88/logsync/internal/schema"
)

// ReconcileResult is the output of the reconcile command.
type ReconcileResult struct {
	Operations []ir.Operation `json:"operations"`
}

// Text renders one operation per line.
func (r ReconcileResult) Text() string {
	if len(r.Operations) == 0 {
		return "No operations.\n"
	}
	return formatOperations(r.Operations)
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile <entries-file>",
		Short: "Reconcile a batch of log entries into storage operations",
		Long: `Reconcile a batch of log entries and print the resulting operations.

Entries are read from a YAML or JSON file ("-" reads stdin), one object per
entry:

  - {operation: create, collection: lists, pk: 1, value: {title: groceries}, created_on: 1}
  - {operation: modify, collection: lists, pk: 1, field: title, value: food, created_on: 2}
  - {operation: delete, collection: lists, pk: 1, created_on: 3, synced_on: 4}

Exit codes:
  0 - Operations printed
  1 - Batch rejected (double create, modification before creation, bad key)
  2 - Command error (unreadable file, invalid entries, bad schema)

Examples:
  logsync reconcile entries.yaml
  logsync reconcile --schema ./schema --strict entries.yaml
  logsync reconcile --format json entries.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runReconcile(opts *RootOptions, path string, cmd *cobra.Command) error {
	entries, err := readEntries(cmd, path)
	if err != nil {
		return err
	}
	registry, err := opts.loadRegistry()
	if err != nil {
		return err
	}

	opts.logger().Debug("reconciling", "path", path, "entries", len(entries))
	ops, err := reconcile.Reconcile(entries, registry)
	f := opts.formatter(cmd)
	if err != nil {
		return reportBatchFailure(f, "reconcile failed", err)
	}
	return f.Success(ReconcileResult{Operations: ops})
}

// reportBatchFailure writes a rejected batch as an error response and
// returns the matching ExitError. Any other error becomes a command error
// with the fallback message.
func reportBatchFailure(f *OutputFormatter, fallback string, err error) error {
	var (
		anomaly    *reconcile.AnomalyError
		entryErr   *reconcile.EntryError
		resolveErr *schema.ResolveError
	)
	switch {
	case errors.As(err, &anomaly):
		details := map[string]any{
			"collection": anomaly.Collection,
			"pk":         ir.ToGo(anomaly.PK),
			"created_on": anomaly.CreatedOn,
		}
		if f.Format == "json" {
			if werr := f.Error(string(anomaly.Code), anomaly.Error(), details); werr != nil {
				return werr
			}
		}
		return WrapExitError(ExitFailure, "batch rejected", anomaly)
	case errors.As(err, &resolveErr):
		if f.Format == "json" {
			if werr := f.Error(CodeKeyResolution, resolveErr.Error(), nil); werr != nil {
				return werr
			}
		}
		return WrapExitError(ExitFailure, "batch rejected", resolveErr)
	case errors.As(err, &entryErr):
		if f.Format == "json" {
			if werr := f.Error(CodeInvalidInput, entryErr.Error(), nil); werr != nil {
				return werr
			}
		}
		return WrapExitError(ExitCommandError, "invalid entries", entryErr)
	default:
		return WrapExitError(ExitCommandError, fallback, err)
	}
}

func formatOperations(ops []ir.Operation) string {
	var b strings.Builder
	for _, op := range ops {
		fmt.Fprintln(&b, op.String())
	}
	return b.String()
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/logsync/internal/ir"
	"github.com/roach88/logsync/internal/objstore"
	"github.com/roach88/logsync/internal/schema"
	"github.com/roach88/logsync/internal/syncer"
)

// PullOptions holds flags for the pull command.
type PullOptions struct {
	*RootOptions
	DeviceID string
}

// PullResult is the output of the pull command.
type PullResult struct {
	DeviceID    string         `json:"device_id"`
	Fetched     int            `json:"fetched"`
	Context     int            `json:"context"`
	Operations  []ir.Operation `json:"operations"`
	Created     int            `json:"created"`
	Updated     int            `json:"updated"`
	Deleted     int            `json:"deleted"`
	Skipped     int            `json:"skipped"`
	SharedUntil int64          `json:"shared_until"`
}

// Text renders the round summary followed by the executed operations.
func (r PullResult) Text() string {
	if r.Fetched == 0 {
		return "Nothing to sync.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Fetched %d entries (%d local context), shared until %d\n", r.Fetched, r.Context, r.SharedUntil)
	fmt.Fprintf(&b, "Executed: %d created, %d updated, %d deleted, %d skipped\n", r.Created, r.Updated, r.Deleted, r.Skipped)
	b.WriteString(formatOperations(r.Operations))
	return b.String()
}

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PullOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Run one sync round for a device",
		Long: `Run one sync round for a device.

Entries other devices shared since the device's high-water mark are
reconciled against the device's own shared history and applied to the
object store. The high-water mark then advances past them.

An anomaly halts the round: nothing is applied and the mark stays put.

Exit codes:
  0 - Round complete (or nothing to sync)
  1 - Round halted by an anomaly or an unresolvable key
  2 - Command error (missing database, unknown device, bad schema)

Example:
  logsync pull --db ./sync.db --store ./objects.db --device $DEVICE`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DeviceID, "device", "", "ID of the pulling device (required)")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}

func runPull(opts *PullOptions, cmd *cobra.Command) error {
	registry, err := opts.loadRegistry()
	if err != nil {
		return err
	}

	lg, err := opts.openLog()
	if err != nil {
		return err
	}
	defer opts.closeLog(lg)

	st, err := opts.openStore(registry)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	s := syncer.New(lg, st, registry, syncer.WithLogger(opts.logger()))
	round, err := s.SyncRound(cmd.Context(), opts.DeviceID)
	f := opts.formatter(cmd)
	if err != nil {
		return reportBatchFailure(f, "sync round failed", err)
	}

	return f.Success(PullResult{
		DeviceID:    opts.DeviceID,
		Fetched:     round.Fetched,
		Context:     round.Context,
		Operations:  nonNilOperations(round.Operations),
		Created:     round.Executed.Created,
		Updated:     round.Executed.Updated,
		Deleted:     round.Executed.Deleted,
		Skipped:     round.Executed.Skipped,
		SharedUntil: round.SharedUntil,
	})
}

// openStore opens the object store configured by --store or LOGSYNC_STORE.
func (o *RootOptions) openStore(registry *schema.Registry) (*objstore.Store, error) {
	if o.StorePath == "" {
		return nil, NewExitError(ExitCommandError, "no object store configured (use --store or LOGSYNC_STORE)")
	}
	o.logger().Debug("opening object store", "path", o.StorePath)
	st, err := objstore.Open(o.StorePath, registry, objstore.WithLogger(o.logger()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open object store", err)
	}
	return st, nil
}

func (o *RootOptions) closeStore(st *objstore.Store) {
	if err := st.Close(); err != nil {
		o.logger().Error("error closing object store", "error", err)
	}
}

func nonNilOperations(ops []ir.Operation) []ir.Operation {
	if ops == nil {
		return []ir.Operation{}
	}
	return ops
}

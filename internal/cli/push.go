package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/logsync/internal/syncer"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	DeviceID string
	UserID   string
}

// PushResult is the output of the push command.
type PushResult struct {
	DeviceID     string `json:"device_id"`
	Pushed       int    `json:"pushed"`
	LastSharedOn int64  `json:"last_shared_on,omitempty"`
}

// Text renders the push summary.
func (r PushResult) Text() string {
	if r.Pushed == 0 {
		return "No entries pushed.\n"
	}
	return fmt.Sprintf("Pushed %d entries from device %s (last shared_on %d)\n", r.Pushed, r.DeviceID, r.LastSharedOn)
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push <entries-file>",
		Short: "Append a device's local entries to the shared sync log",
		Long: `Append a device's local entries to the shared sync log.

Each entry is stamped with a shared_on time from the log's logical clock.
The device must belong to the given user.

Example:
  logsync push --db ./sync.db --device $DEVICE --user alice entries.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DeviceID, "device", "", "ID of the pushing device (required)")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "user the device belongs to (required)")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runPush(opts *PushOptions, path string, cmd *cobra.Command) error {
	entries, err := readEntries(cmd, path)
	if err != nil {
		return err
	}

	lg, err := opts.openLog()
	if err != nil {
		return err
	}
	defer opts.closeLog(lg)

	// Pushing never executes operations, so the syncer needs no backend
	// or key resolver.
	s := syncer.New(lg, nil, nil, syncer.WithLogger(opts.logger()))
	shared, err := s.Push(cmd.Context(), opts.DeviceID, opts.UserID, entries)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to push entries", err)
	}

	result := PushResult{DeviceID: opts.DeviceID, Pushed: len(shared)}
	if len(shared) > 0 {
		result.LastSharedOn = shared[len(shared)-1].SharedOn
	}
	return opts.formatter(cmd).Success(result)
}

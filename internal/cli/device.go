package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/logsync/internal/synclog"
)

// DeviceResult is the output of the device subcommands.
type DeviceResult struct {
	DeviceID    string `json:"device_id"`
	UserID      string `json:"user_id"`
	SharedUntil int64  `json:"shared_until"`
}

// Text renders the device record.
func (r DeviceResult) Text() string {
	return fmt.Sprintf("Device %s (user %s, shared until %d)\n", r.DeviceID, r.UserID, r.SharedUntil)
}

// NewDeviceCommand creates the device command group.
func NewDeviceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage device records in the shared sync log",
	}
	cmd.AddCommand(newDeviceRegisterCommand(rootOpts))
	cmd.AddCommand(newDeviceShowCommand(rootOpts))
	return cmd
}

// DeviceRegisterOptions holds flags for the device register command.
type DeviceRegisterOptions struct {
	*RootOptions
	UserID      string
	SharedUntil int64
}

func newDeviceRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeviceRegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new device for a user",
		Long: `Register a new device and print its ID.

A device only pulls entries shared after its high-water mark. A fresh
device starts at 0 and pulls the whole log of its user.

Example:
  logsync device register --db ./sync.db --user alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeviceRegister(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user the device belongs to (required)")
	cmd.Flags().Int64Var(&opts.SharedUntil, "shared-until", 0, "initial high-water mark")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runDeviceRegister(opts *DeviceRegisterOptions, cmd *cobra.Command) error {
	lg, err := opts.openLog()
	if err != nil {
		return err
	}
	defer opts.closeLog(lg)

	id, err := lg.CreateDeviceRecord(cmd.Context(), opts.UserID, opts.SharedUntil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register device", err)
	}
	opts.logger().Info("device registered", "device", id, "user", opts.UserID)

	return opts.formatter(cmd).Success(DeviceResult{
		DeviceID:    id,
		UserID:      opts.UserID,
		SharedUntil: opts.SharedUntil,
	})
}

func newDeviceShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <device-id>",
		Short:         "Show a device record and its high-water mark",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lg, err := rootOpts.openLog()
			if err != nil {
				return err
			}
			defer rootOpts.closeLog(lg)

			dev, err := lg.Device(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load device", err)
			}
			return rootOpts.formatter(cmd).Success(DeviceResult{
				DeviceID:    dev.ID,
				UserID:      dev.UserID,
				SharedUntil: dev.SharedUntil,
			})
		},
	}
}

// openLog opens the shared sync log configured by --db or LOGSYNC_DB.
func (o *RootOptions) openLog() (*synclog.Log, error) {
	if o.DBPath == "" {
		return nil, NewExitError(ExitCommandError, "no sync log configured (use --db or LOGSYNC_DB)")
	}
	o.logger().Debug("opening sync log", "path", o.DBPath)
	lg, err := synclog.Open(o.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open sync log", err)
	}
	return lg, nil
}

func (o *RootOptions) closeLog(lg *synclog.Log) {
	if err := lg.Close(); err != nil {
		o.logger().Error("error closing sync log", "error", err)
	}
}

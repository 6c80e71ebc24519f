package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/logsync/internal/ir"
)

// VersionResult is the output of the version command.
type VersionResult struct {
	Engine string `json:"engine"`
	Wire   string `json:"wire"`
}

// Text renders both versions on one line.
func (r VersionResult) Text() string {
	return fmt.Sprintf("logsync %s (entry wire format v%s)\n", r.Engine, r.Wire)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine and entry wire format versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Success(VersionResult{
				Engine: ir.EngineVersion,
				Wire:   ir.WireVersion,
			})
		},
	}
}

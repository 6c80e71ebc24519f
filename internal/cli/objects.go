package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/logsync/internal/ir"
)

// ObjectsOptions holds flags for the objects command.
type ObjectsOptions struct {
	*RootOptions
	PK string
}

// ObjectsResult is the output of the objects command.
type ObjectsResult struct {
	Collection string        `json:"collection"`
	Objects    []ir.IRObject `json:"objects"`
}

// Text renders one canonical JSON document per line.
func (r ObjectsResult) Text() string {
	if len(r.Objects) == 0 {
		return fmt.Sprintf("No objects in %s.\n", r.Collection)
	}
	var b strings.Builder
	for _, obj := range r.Objects {
		data, err := ir.MarshalIRValue(obj)
		if err != nil {
			fmt.Fprintf(&b, "<unprintable: %v>\n", err)
			continue
		}
		fmt.Fprintf(&b, "%s\n", data)
	}
	return b.String()
}

// NewObjectsCommand creates the objects command.
func NewObjectsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ObjectsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "objects <collection>",
		Short: "List the objects of a collection in the object store",
		Long: `List the objects of a collection in the object store.

With --pk only the object with that primary key is shown. The key is
parsed as YAML, so compound keys are written as lists.

Examples:
  logsync objects --store ./objects.db lists
  logsync objects --store ./objects.db --pk 42 lists
  logsync objects --store ./objects.db --schema ./schema --pk '[1, 2]' entries`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObjects(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PK, "pk", "", "primary key of a single object (YAML)")

	return cmd
}

func runObjects(opts *ObjectsOptions, collection string, cmd *cobra.Command) error {
	registry, err := opts.loadRegistry()
	if err != nil {
		return err
	}
	st, err := opts.openStore(registry)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	result := ObjectsResult{Collection: collection, Objects: []ir.IRObject{}}
	if opts.PK == "" {
		objs, err := st.List(cmd.Context(), collection)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list objects", err)
		}
		result.Objects = append(result.Objects, objs...)
		return opts.formatter(cmd).Success(result)
	}

	pk, err := parsePK(opts.PK)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --pk", err)
	}
	where, err := registry.ResolvePK(collection, pk)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to resolve key", err)
	}
	obj, ok, err := st.Get(cmd.Context(), collection, where)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load object", err)
	}
	if ok {
		result.Objects = append(result.Objects, obj)
	}
	return opts.formatter(cmd).Success(result)
}

func parsePK(raw string) (ir.IRValue, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return ir.FromGo(v)
}

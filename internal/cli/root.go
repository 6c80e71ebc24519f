package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/logsync/internal/schema"
)

// EnvPrefix is the prefix of environment variables that override
// configuration keys, e.g. LOGSYNC_DB.
const EnvPrefix = "LOGSYNC"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // explicit config file; ./logsync.yaml is read when present

	// Resolved from flags, LOGSYNC_* environment variables and the config
	// file, in that order of precedence.
	DBPath     string // shared sync log database
	StorePath  string // object store database
	SchemaPath string // CUE schema file or directory
	Strict     bool   // reject collections the schema does not declare

	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the logsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "logsync",
		Short: "logsync - multi-device sync log reconciliation",
		Long: `Reconcile the shared sync log of a multi-device application.

Devices push their local create, modify and delete entries to a shared log.
Each device pulls the entries of the others and reconciles them into
storage operations, last writer wins per field.

Configuration keys (db, store, schema, strict) are read from flags,
LOGSYNC_* environment variables and an optional logsync.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if err := loadConfig(v, opts); err != nil {
				return err
			}
			opts.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Config, "config", "", "config file (default is ./logsync.yaml)")
	flags.String("db", "", "path to the shared sync log database")
	flags.String("store", "", "path to the object store database")
	flags.String("schema", "", "CUE schema file or directory declaring collection keys")
	flags.Bool("strict", false, "reject collections the schema does not declare")

	for _, key := range []string{"db", "store", "schema", "strict"} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", key, err))
		}
	}

	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewDeviceCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewObjectsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// loadConfig resolves configuration keys into opts.
func loadConfig(v *viper.Viper, opts *RootOptions) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.Config != "" {
		v.SetConfigFile(opts.Config)
		if err := v.ReadInConfig(); err != nil {
			return WrapExitError(ExitCommandError, "failed to read config", err)
		}
	} else {
		v.SetConfigName("logsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return WrapExitError(ExitCommandError, "failed to read config", err)
			}
		}
	}

	opts.DBPath = v.GetString("db")
	opts.StorePath = v.GetString("store")
	opts.SchemaPath = v.GetString("schema")
	opts.Strict = v.GetBool("strict")
	return nil
}

// newLogger builds the text logger commands report progress through.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// logger returns the configured logger, or slog.Default() when a command
// runs without the root command's setup.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadRegistry loads the schema registry, or an empty one resolving every
// collection by the default "pk" field when no schema is configured.
func (o *RootOptions) loadRegistry() (*schema.Registry, error) {
	var regOpts []schema.Option
	if o.Strict {
		regOpts = append(regOpts, schema.WithStrict())
	}
	if o.SchemaPath == "" {
		return schema.NewRegistry(regOpts...), nil
	}
	reg, err := schema.Load(o.SchemaPath, regOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	o.logger().Debug("schema loaded", "path", o.SchemaPath, "collections", reg.Collections())
	return reg, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/logsync/internal/ir"
)

// readEntries reads a batch of log entries from path, or from stdin when
// path is "-". Files ending in .json are decoded as JSON; everything else
// is YAML, which also accepts JSON documents.
func readEntries(cmd *cobra.Command, path string) ([]ir.LogEntry, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read entries", err)
	}

	entries, err := decodeEntries(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid entries in %s", path), err)
	}
	return entries, nil
}

func decodeEntries(data []byte, isJSON bool) ([]ir.LogEntry, error) {
	var (
		entries []ir.LogEntry
		err     error
	)
	if isJSON {
		entries, err = ir.DecodeEntries(data)
	} else {
		// Reject unknown fields (catches typos like "createdOn:")
		var wire []ir.WireEntry
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&wire); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode entries: %w", err)
		}
		entries, err = ir.DecodeWireEntries(wire)
	}
	if err != nil {
		return nil, err
	}

	for i, e := range entries {
		if err := ir.ValidateEntry(e); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return entries, nil
}

package schema

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/logsync/internal/ir"
)

// CompileError reports an invalid collection declaration with its CUE source
// position, when one is known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ResolveError reports a pk value that cannot be mapped to a collection's
// key fields.
type ResolveError struct {
	Collection string
	PK         ir.IRValue
	Message    string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve pk %s in collection '%s': %s", ir.FormatPK(e.PK), e.Collection, e.Message)
}

// IsResolveError reports whether err is or wraps a *ResolveError.
func IsResolveError(err error) bool {
	var re *ResolveError
	return errors.As(err, &re)
}

// formatCUEError converts the first CUE error into a CompileError, keeping its
// position when available.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: "cue", Message: err.Error()}
	}

	first := errs[0]
	ce := &CompileError{Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

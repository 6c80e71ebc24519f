package reconcile

import (
	"errors"
	"fmt"

	"github.com/roach88/logsync/internal/ir"
)

// AnomalyCode categorizes reconciliation anomalies.
type AnomalyCode string

const (
	// ErrCodeDoubleCreate indicates two create entries for one object.
	ErrCodeDoubleCreate AnomalyCode = "DOUBLE_CREATE"

	// ErrCodeModificationBeforeCreation indicates an entry older than the
	// object's recorded creation, usually a pk collision across devices.
	ErrCodeModificationBeforeCreation AnomalyCode = "MODIFICATION_BEFORE_CREATION"
)

// AnomalyError reports a data-integrity problem found while folding entries.
// It is fatal for the whole batch.
type AnomalyError struct {
	Code       AnomalyCode
	Collection string
	PK         ir.IRValue

	// CreatedOn is the timestamp of the offending entry.
	CreatedOn int64

	// Index is the position of the offending entry in the reconciled batch.
	Index int
}

// Error implements the error interface.
func (e *AnomalyError) Error() string {
	switch e.Code {
	case ErrCodeDoubleCreate:
		return fmt.Sprintf("%s: detected double create in collection '%s', pk '%s'",
			e.Code, e.Collection, ir.FormatPK(e.PK))
	case ErrCodeModificationBeforeCreation:
		return fmt.Sprintf("%s: detected modification to collection '%s', pk '%s' before it was created (likely pk collision)",
			e.Code, e.Collection, ir.FormatPK(e.PK))
	default:
		return fmt.Sprintf("%s: collection '%s', pk '%s'", e.Code, e.Collection, ir.FormatPK(e.PK))
	}
}

// IsDoubleCreate returns true if err is a double-create anomaly.
// Uses errors.As to handle wrapped errors.
func IsDoubleCreate(err error) bool {
	var ae *AnomalyError
	return errors.As(err, &ae) && ae.Code == ErrCodeDoubleCreate
}

// IsModificationBeforeCreation returns true if err is a
// modification-before-creation anomaly.
func IsModificationBeforeCreation(err error) bool {
	var ae *AnomalyError
	return errors.As(err, &ae) && ae.Code == ErrCodeModificationBeforeCreation
}

// IsAnomaly returns true if err is any reconciliation anomaly.
func IsAnomaly(err error) bool {
	var ae *AnomalyError
	return errors.As(err, &ae)
}

func newAnomaly(code AnomalyCode, h ir.EntryHeader) *AnomalyError {
	return &AnomalyError{
		Code:       code,
		Collection: h.Collection,
		PK:         h.PK,
		CreatedOn:  h.CreatedOn,
	}
}

// EntryError reports a structurally invalid entry in the input batch.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("invalid entry %d: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

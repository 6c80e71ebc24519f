package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/logsync/internal/ir"
	"github.com/roach88/logsync/internal/objstore"
	"github.com/roach88/logsync/internal/reconcile"
	"github.com/roach88/logsync/internal/schema"
)

// Failure codes for errors that are not anomalies.
const (
	CodeInvalidEntry  = "INVALID_ENTRY"
	CodeKeyResolution = "KEY_RESOLUTION"
)

// Run executes a scenario and returns the result.
//
// Mismatches against the scenario's expectation are reported in the result,
// not as an error. Run returns an error only when the scenario itself cannot
// be executed: its schema does not compile or an entry cannot be decoded.
func Run(scenario *Scenario) (*Result, error) {
	registry, err := loadRegistry(scenario)
	if err != nil {
		return nil, err
	}

	entries, err := ir.DecodeWireEntries(scenario.Entries)
	if err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}

	result := NewResult()
	ops, err := reconcile.Reconcile(entries, registry)
	if err != nil {
		failure, ferr := classifyFailure(err)
		if ferr != nil {
			return nil, ferr
		}
		result.Failure = failure
	} else {
		result.Operations = ops
	}

	checkExpectation(scenario.Expect, result)

	if result.Failure == nil {
		if err := applyOperations(registry, ops, result); err != nil {
			result.AddError(fmt.Sprintf("execute operations: %v", err))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func loadRegistry(scenario *Scenario) (*schema.Registry, error) {
	var opts []schema.Option
	if scenario.Strict {
		opts = append(opts, schema.WithStrict())
	}
	if scenario.Schema == "" {
		return schema.NewRegistry(opts...), nil
	}
	registry, err := schema.CompileString(scenario.Schema, scenario.Name+".cue", opts...)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return registry, nil
}

func classifyFailure(err error) (*Failure, error) {
	var anomaly *reconcile.AnomalyError
	if errors.As(err, &anomaly) {
		return &Failure{
			Code:       string(anomaly.Code),
			Collection: anomaly.Collection,
			PK:         anomaly.PK,
			Message:    anomaly.Error(),
		}, nil
	}
	var entryErr *reconcile.EntryError
	if errors.As(err, &entryErr) {
		return &Failure{Code: CodeInvalidEntry, Message: err.Error()}, nil
	}
	var resolveErr *schema.ResolveError
	if errors.As(err, &resolveErr) {
		return &Failure{
			Code:       CodeKeyResolution,
			Collection: resolveErr.Collection,
			PK:         resolveErr.PK,
			Message:    err.Error(),
		}, nil
	}
	return nil, err
}

func checkExpectation(expect Expectation, result *Result) {
	if expect.Error != nil {
		checkFailure(expect.Error, result)
		return
	}
	if result.Failure != nil {
		result.AddError(fmt.Sprintf("unexpected failure: %s", result.Failure.Message))
		return
	}

	if len(expect.Operations) != len(result.Operations) {
		result.AddError(fmt.Sprintf("expected %d operations, got %d: %v",
			len(expect.Operations), len(result.Operations), result.Operations))
		return
	}
	for i, want := range expect.Operations {
		expected, err := want.toOperation()
		if err != nil {
			result.AddError(fmt.Sprintf("expect.operations[%d]: %v", i, err))
			continue
		}
		if !operationsEqual(expected, result.Operations[i]) {
			result.AddError(fmt.Sprintf("operation %d: expected %s, got %s", i, expected, result.Operations[i]))
		}
	}
}

func checkFailure(want *ExpectedError, result *Result) {
	got := result.Failure
	if got == nil {
		result.AddError(fmt.Sprintf("expected error %s, got %d operations", want.Code, len(result.Operations)))
		return
	}
	if got.Code != want.Code {
		result.AddError(fmt.Sprintf("expected error %s, got %s", want.Code, got.Message))
		return
	}
	if want.Collection != "" && got.Collection != want.Collection {
		result.AddError(fmt.Sprintf("expected error in collection %s, got %s", want.Collection, got.Collection))
	}
	if want.PK != nil {
		pk, err := ir.FromGo(want.PK)
		if err != nil {
			result.AddError(fmt.Sprintf("expect.error.pk: %v", err))
			return
		}
		if !ir.Equal(pk, got.PK) {
			result.AddError(fmt.Sprintf("expected error for pk %s, got %s", ir.FormatPK(pk), ir.FormatPK(got.PK)))
		}
	}
}

func (e ExpectedOperation) toOperation() (ir.Operation, error) {
	op := ir.Operation{Kind: e.Operation, Collection: e.Collection}
	var err error
	if op.Object, err = toObject(e.Object); err != nil {
		return op, fmt.Errorf("object: %w", err)
	}
	if op.Where, err = toObject(e.Where); err != nil {
		return op, fmt.Errorf("where: %w", err)
	}
	if op.Patch, err = toObject(e.Patch); err != nil {
		return op, fmt.Errorf("patch: %w", err)
	}
	return op, nil
}

func toObject(m map[string]any) (ir.IRObject, error) {
	if m == nil {
		return nil, nil
	}
	v, err := ir.FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(ir.IRObject), nil
}

func operationsEqual(a, b ir.Operation) bool {
	return a.Kind == b.Kind &&
		a.Collection == b.Collection &&
		ir.Equal(a.Object, b.Object) &&
		ir.Equal(a.Where, b.Where) &&
		ir.Equal(a.Patch, b.Patch)
}

// applyOperations executes ops against a fresh in-memory object store and
// records the touched collections in result.State.
func applyOperations(registry *schema.Registry, ops []ir.Operation, result *Result) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := objstore.Open(":memory:", registry, objstore.WithLogger(logger))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if _, err := st.Execute(ctx, ops); err != nil {
		return err
	}

	for _, op := range ops {
		if _, seen := result.State[op.Collection]; seen {
			continue
		}
		docs, err := st.List(ctx, op.Collection)
		if err != nil {
			return err
		}
		result.State[op.Collection] = docs
	}
	return nil
}

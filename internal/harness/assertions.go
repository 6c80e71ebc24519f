package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/logsync/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the produced operations to help debug the failure.
type AssertionError struct {
	Type       string
	Expected   string
	Actual     string
	Operations []ir.Operation
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nOperations:\n")
	for i, op := range e.Operations {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, op)
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertOperationCount:
			err = assertOperationCount(result.Operations, a)
		case AssertContainsOperation:
			err = assertContainsOperation(result.Operations, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func matchesOperation(op ir.Operation, a Assertion) bool {
	if a.Operation != "" && op.Kind != a.Operation {
		return false
	}
	if a.Collection != "" && op.Collection != a.Collection {
		return false
	}
	return true
}

// assertOperationCount checks that exactly Count operations match.
func assertOperationCount(ops []ir.Operation, a Assertion) error {
	count := 0
	for _, op := range ops {
		if matchesOperation(op, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:       AssertOperationCount,
			Expected:   fmt.Sprintf("%d operations matching %s", a.Count, describeFilter(a)),
			Actual:     fmt.Sprintf("%d operations", count),
			Operations: ops,
		}
	}
	return nil
}

// assertContainsOperation checks that some operation matches, with Where
// compared as a subset of the operation's key filter (or created object).
func assertContainsOperation(ops []ir.Operation, a Assertion) error {
	for _, op := range ops {
		if !matchesOperation(op, a) {
			continue
		}
		target := op.Where
		if op.Kind == ir.OpCreateObject {
			target = op.Object
		}
		if matchSubset(target, a.Where) {
			return nil
		}
	}
	return &AssertionError{
		Type:       AssertContainsOperation,
		Expected:   fmt.Sprintf("an operation matching %s where %v", describeFilter(a), a.Where),
		Actual:     "not found",
		Operations: ops,
	}
}

// assertFinalState checks the object stored under Where after execution.
func assertFinalState(result *Result, a Assertion) error {
	var found ir.IRObject
	for _, doc := range result.State[a.Collection] {
		if matchSubset(doc, a.Where) {
			found = doc
			break
		}
	}

	if a.Absent {
		if found != nil {
			return &AssertionError{
				Type:       AssertFinalState,
				Expected:   fmt.Sprintf("no object in %s where %v", a.Collection, a.Where),
				Actual:     fmt.Sprintf("found %v", found),
				Operations: result.Operations,
			}
		}
		return nil
	}

	if found == nil {
		return &AssertionError{
			Type:       AssertFinalState,
			Expected:   fmt.Sprintf("object in %s where %v", a.Collection, a.Where),
			Actual:     "not found",
			Operations: result.Operations,
		}
	}
	if !matchSubset(found, a.Expect) {
		return &AssertionError{
			Type:       AssertFinalState,
			Expected:   fmt.Sprintf("fields %v", a.Expect),
			Actual:     fmt.Sprintf("%v", found),
			Operations: result.Operations,
		}
	}
	return nil
}

// matchSubset reports whether every field of want equals the same field of
// obj. Values that cannot be converted never match.
func matchSubset(obj ir.IRObject, want map[string]any) bool {
	for k, raw := range want {
		expected, err := ir.FromGo(raw)
		if err != nil {
			return false
		}
		actual, ok := obj[k]
		if !ok || !ir.Equal(expected, actual) {
			return false
		}
	}
	return true
}

func describeFilter(a Assertion) string {
	parts := []string{}
	if a.Operation != "" {
		parts = append(parts, "operation="+string(a.Operation))
	}
	if a.Collection != "" {
		parts = append(parts, "collection="+a.Collection)
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

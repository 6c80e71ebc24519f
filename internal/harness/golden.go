package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/logsync/internal/ir"
)

// Snapshot renders a result as canonical JSON for golden comparison:
//
//	{"operations":[...],"scenario_name":"..."}
//	{"error":{"code":"...","collection":"...","pk":...},"scenario_name":"..."}
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snap := ir.IRObject{"scenario_name": ir.IRString(scenarioName)}

	if result.Failure != nil {
		failure := ir.IRObject{"code": ir.IRString(result.Failure.Code)}
		if result.Failure.Collection != "" {
			failure["collection"] = ir.IRString(result.Failure.Collection)
		}
		if result.Failure.PK != nil {
			failure["pk"] = result.Failure.PK
		}
		snap["error"] = failure
	} else {
		ops := make(ir.IRArray, len(result.Operations))
		for i, op := range result.Operations {
			ops[i] = op.CanonicalMap()
		}
		snap["operations"] = ops
	}

	return ir.MarshalIRValue(snap)
}

// RunWithGolden executes a scenario and compares its outcome against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the outcome doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/logsync/internal/ir"
)

// Scenario defines a reconciliation conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is inline CUE declaring collection primary keys.
	// Without it every collection uses the default "pk" key field.
	Schema string `yaml:"schema,omitempty"`

	// Strict rejects collections the schema does not declare.
	Strict bool `yaml:"strict,omitempty"`

	// Entries is the batch to reconcile, in input order.
	Entries []ir.WireEntry `yaml:"entries"`

	// Expect is the required outcome.
	Expect Expectation `yaml:"expect"`

	// Assertions are extra checks on the operations and final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Expectation is either an ordered list of operations or an error.
// An omitted operations list expects no operations.
type Expectation struct {
	Operations []ExpectedOperation `yaml:"operations,omitempty"`
	Error      *ExpectedError      `yaml:"error,omitempty"`
}

// ExpectedOperation is one operation in YAML form. All maps are compared
// exactly, not as subsets.
type ExpectedOperation struct {
	Operation  ir.OpKind      `yaml:"operation"`
	Collection string         `yaml:"collection"`
	Object     map[string]any `yaml:"object,omitempty"`
	Where      map[string]any `yaml:"where,omitempty"`
	Patch      map[string]any `yaml:"patch,omitempty"`
}

// ExpectedError describes the failure a batch must produce.
// Collection and PK are checked only when set.
type ExpectedError struct {
	Code       string `yaml:"code"`
	Collection string `yaml:"collection,omitempty"`
	PK         any    `yaml:"pk,omitempty"`
}

// Assertion is an additional check.
type Assertion struct {
	// Type is one of operation_count, contains_operation, final_state.
	Type string `yaml:"type"`

	// Operation and Collection select operations (operation_count,
	// contains_operation). Empty values match anything.
	Operation  ir.OpKind `yaml:"operation,omitempty"`
	Collection string    `yaml:"collection,omitempty"`

	// Count is the expected number of matching operations (operation_count).
	Count int `yaml:"count,omitempty"`

	// Where selects an object by its key fields (contains_operation,
	// final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect is a subset of the stored object's fields (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that no object is stored under Where (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertOperationCount    = "operation_count"
	AssertContainsOperation = "contains_operation"
	AssertFinalState        = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "entry:" vs "entries:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if prev, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate scenario name %q (also in %s)", filepath.Base(path), s.Name, prev)
		}
		names[s.Name] = filepath.Base(path)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Expect.Error != nil {
		if s.Expect.Error.Code == "" {
			return fmt.Errorf("expect.error: code is required")
		}
		if len(s.Expect.Operations) > 0 {
			return fmt.Errorf("expect: operations and error are mutually exclusive")
		}
	}

	for i, op := range s.Expect.Operations {
		switch op.Operation {
		case ir.OpCreateObject, ir.OpUpdateOneObject, ir.OpDeleteOneObject:
		default:
			return fmt.Errorf("expect.operations[%d]: unknown operation %q", i, op.Operation)
		}
		if op.Collection == "" {
			return fmt.Errorf("expect.operations[%d]: collection is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOperationCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for operation_count", index)
		}
	case AssertContainsOperation:
		if a.Operation == "" {
			return fmt.Errorf("assertions[%d]: operation is required for contains_operation", index)
		}
	case AssertFinalState:
		if a.Collection == "" {
			return fmt.Errorf("assertions[%d]: collection is required for final_state", index)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for final_state", index)
		}
		if a.Absent == (len(a.Expect) > 0) {
			return fmt.Errorf("assertions[%d]: final_state needs exactly one of expect or absent", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

package harness

import "github.com/roach88/logsync/internal/ir"

// Failure is the error a batch produced, in comparable form.
type Failure struct {
	Code       string
	Collection string
	PK         ir.IRValue
	Message    string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if the outcome matched the expectation and every
	// assertion held.
	Pass bool

	// Operations is what reconciliation produced. Nil when it failed.
	Operations []ir.Operation

	// Failure is set when reconciliation failed.
	Failure *Failure

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string

	// State holds the objects of every collection the operations touched,
	// after executing them against an empty store.
	State map[string][]ir.IRObject
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		State:  make(map[string][]ir.IRObject),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

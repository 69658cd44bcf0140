package harness

import "github.com/soimon/notion-todoist/internal/engine"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates that every assertion held.
	Pass bool `json:"pass"`

	// Passes holds the result of every pass step, in order.
	Passes []*engine.Result `json:"passes"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddPass records the result of a pass step.
func (r *Result) AddPass(res *engine.Result) {
	r.Passes = append(r.Passes, res)
}

// report returns the report of pass n, 1-based; 0 is the last pass.
func (r *Result) report(n int) (engine.Report, bool) {
	if len(r.Passes) == 0 || n > len(r.Passes) {
		return engine.Report{}, false
	}
	if n == 0 {
		n = len(r.Passes)
	}
	return r.Passes[n-1].Report, true
}

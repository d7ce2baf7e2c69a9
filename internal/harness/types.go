package harness

// StepEvent is one executed step in a scenario trace.
type StepEvent struct {
	Seq    int64          `json:"seq"`
	Phase  string         `json:"phase"` // "setup" or "step"
	Op     string         `json:"op"`
	Args   map[string]any `json:"args,omitempty"`
	Case   string         `json:"case"`
	Result map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists setup and flow steps in execution order.
	Trace []StepEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Records and History capture the final store for golden snapshots.
	Records []map[string]any `json:"records"`
	History []map[string]any `json:"history"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends an executed step to the trace.
func (r *Result) AddStep(phase string, step Step, out Outcome) {
	r.Trace = append(r.Trace, StepEvent{
		Seq:    int64(len(r.Trace) + 1),
		Phase:  phase,
		Op:     step.Op,
		Args:   step.Args,
		Case:   out.Case,
		Result: out.Result,
	})
}

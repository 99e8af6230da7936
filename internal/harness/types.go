package harness

// TraceEvent is one engine update, labelled with the step that caused it.
// Step 0 is startup.
type TraceEvent struct {
	Step   int    `json:"step"`
	Kind   string `json:"kind"`
	Cell   string `json:"cell,omitempty"`
	Color  string `json:"color,omitempty"`
	Change string `json:"change,omitempty"`
	Seq    int64  `json:"seq"`
}

// Final is the state observed after the last step.
type Final struct {
	State string `json:"state"`

	// Rows renders the grid with grid.Snapshot.Rows.
	Rows []string `json:"rows"`

	// RemoteRows is the number of rows left in the gateway.
	RemoteRows int `json:"remote_rows"`

	// Reported lists the codes of reported gateway errors, in order.
	Reported []string `json:"reported,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expectations match.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`
	Final Final        `json:"final"`

	// Errors contains expectation mismatches.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

package harness

// Outcome values recorded in the trace and accepted by expect clauses.
const (
	OutcomeOK             = "ok"
	OutcomeTransport      = "transport"
	OutcomeServerRejected = "server_rejected"
	OutcomeBlocked        = "blocked"
	OutcomeFatal          = "fatal"
	OutcomeError          = "error"
)

// TraceEvent is one executed step.
type TraceEvent struct {
	Seq     int      `json:"seq"`
	Action  string   `json:"action"`
	Text    string   `json:"text,omitempty"`
	Status  int      `json:"status,omitempty"`
	Outcome string   `json:"outcome"`
	IDs     []string `json:"ids,omitempty"`
	Synced  *int     `json:"synced,omitempty"`
}

// State is the final content of both collections and the endpoint.
type State struct {
	Pending      []string `json:"pending"`
	Synchronized []string `json:"synchronized"` // ListSynchronized order
	Received     []string `json:"received"`     // endpoint arrival order
	Batches      int      `json:"batches"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is captured after the last step.
	State State `json:"state"`
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

// addTrace appends ev with the next sequence number.
func (r *Result) addTrace(ev TraceEvent) TraceEvent {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
	return ev
}

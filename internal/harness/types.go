package harness

// Trace event types.
const (
	EventStep     = "step"
	EventDelivery = "delivery"
	EventResult   = "result"
)

// TraceEvent is one entry of a scenario trace: a step starting, a delivery
// attempt, or a step result.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Type     string `json:"type"`
	Action   string `json:"action,omitempty"`
	Args     any    `json:"args,omitempty"`
	Result   any    `json:"result,omitempty"`
	ActionID int64  `json:"action_id,omitempty"`
	Key      string `json:"key,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds steps, deliveries and step results in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
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

func (r *Result) add(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}

// Deliveries returns the delivery events of the trace.
func (r *Result) Deliveries() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventDelivery {
			out = append(out, e)
		}
	}
	return out
}

package record

// Batch is the request body of one sync attempt.
type Batch struct {
	Submissions []Submission `json:"submissions"`
}

// NewBatch wraps subs for the wire. The slice is never nil so an empty
// batch encodes as [] rather than null.
func NewBatch(subs []Submission) Batch {
	if subs == nil {
		subs = []Submission{}
	}
	return Batch{Submissions: subs}
}

// BatchResponse is the body returned by the reference endpoint.
// Clients must not derive the synced count from it.
type BatchResponse struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Message   string `json:"message,omitempty"`
}

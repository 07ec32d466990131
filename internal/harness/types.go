package harness

import "github.com/kpfister44/Kinnect-sub000/internal/engine"

// Result is the outcome of one scenario run. Post ids in the trace and
// state are replaced by seed aliases so results are stable across runs.
type Result struct {
	// Pass is true when every step behaved and every assertion held.
	Pass bool `json:"pass"`

	// Trace is the engine's recorded events in seq order.
	Trace []engine.TraceEvent `json:"trace"`

	// Errors lists step and assertion failures. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State maps each scope still open at the end to its live sequence.
	State map[string][]PostState `json:"state,omitempty"`
}

// PostState is one post's observable final state in a scope.
type PostState struct {
	Post       string `json:"post"`
	Author     string `json:"author"`
	Likes      int64  `json:"likes"`
	Comments   int64  `json:"comments"`
	Liked      bool   `json:"liked"`
	MediaReady bool   `json:"media_ready"`
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

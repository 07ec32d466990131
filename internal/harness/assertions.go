package harness

import (
	"fmt"
	"strings"

	"github.com/kpfister44/Kinnect-sub000/internal/engine"
)

// Assertion validates the trace or the final store contents. Type selects
// the check; the other fields parameterize it. Trace filters match on the
// event type plus any of scope, post (seed alias), and detail substring that
// are set.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Event is the trace event type to match (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Scope narrows trace matches, or names the store for final_state.
	Scope string `yaml:"scope,omitempty"`

	// Post is a seed alias: a trace filter, or the final_state subject.
	Post string `yaml:"post,omitempty"`

	// Detail is a substring the event detail must contain.
	Detail string `yaml:"detail,omitempty"`

	// Count is the exact match count for trace_count.
	Count int `yaml:"count,omitempty"`

	// Events is the expected event-type order for trace_order. Matches need
	// not be consecutive.
	Events []string `yaml:"events,omitempty"`

	// Expected final state. Only the fields that are set are checked.
	Likes    *int64 `yaml:"likes,omitempty"`
	Comments *int64 `yaml:"comments,omitempty"`
	Liked    *bool  `yaml:"liked,omitempty"`
	Present  *bool  `yaml:"present,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// AssertionError carries enough context to debug a failed assertion without
// rerunning the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []engine.TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\ntrace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s scope=%s post=%s %s\n",
			event.Seq, event.Type, event.Scope, event.Post, event.Detail)
	}
	return buf.String()
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", i)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order needs at least two events", i)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", i)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
	case AssertFinalState:
		if a.Scope == "" || a.Post == "" {
			return fmt.Errorf("assertions[%d]: scope and post are required for final_state", i)
		}
		if a.Likes == nil && a.Comments == nil && a.Liked == nil && a.Present == nil {
			return fmt.Errorf("assertions[%d]: final_state needs at least one expected field", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}

// evaluateAssertions checks every assertion and returns one message per
// failure.
func evaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result.State, result.Trace, a)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func (a Assertion) matches(event engine.TraceEvent) bool {
	if a.Event != "" && event.Type != a.Event {
		return false
	}
	if a.Scope != "" && string(event.Scope) != a.Scope {
		return false
	}
	if a.Post != "" && string(event.Post) != a.Post {
		return false
	}
	if a.Detail != "" && !strings.Contains(event.Detail, a.Detail) {
		return false
	}
	return true
}

func (a Assertion) describe() string {
	parts := []string{"event " + a.Event}
	if a.Scope != "" {
		parts = append(parts, "scope "+a.Scope)
	}
	if a.Post != "" {
		parts = append(parts, "post "+a.Post)
	}
	if a.Detail != "" {
		parts = append(parts, fmt.Sprintf("detail containing %q", a.Detail))
	}
	return strings.Join(parts, ", ")
}

func assertTraceContains(trace []engine.TraceEvent, a Assertion) error {
	for _, event := range trace {
		if a.matches(event) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: a.describe(),
		Actual:   "no matching event in trace",
		Trace:    trace,
	}
}

func assertTraceOrder(trace []engine.TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Events) && event.Type == a.Events[next] {
			next++
		}
	}
	if next < len(a.Events) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("events in order %v", a.Events),
			Actual:   fmt.Sprintf("order broken at %q (matched %d of %d)", a.Events[next], next, len(a.Events)),
			Trace:    trace,
		}
	}
	return nil
}

func assertTraceCount(trace []engine.TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if a.matches(event) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s exactly %d times", a.describe(), a.Count),
			Actual:   fmt.Sprintf("matched %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertFinalState(state map[string][]PostState, trace []engine.TraceEvent, a Assertion) error {
	posts, ok := state[a.Scope]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("scope %s open at scenario end", a.Scope),
			Actual:   "scope not in final state",
			Trace:    trace,
		}
	}

	var found *PostState
	for i := range posts {
		if posts[i].Post == a.Post {
			found = &posts[i]
			break
		}
	}

	if a.Present != nil && !*a.Present {
		if found != nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("post %s absent from %s", a.Post, a.Scope),
				Actual:   "post present",
				Trace:    trace,
			}
		}
		return nil
	}
	if found == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("post %s present in %s", a.Post, a.Scope),
			Actual:   "post absent",
			Trace:    trace,
		}
	}

	if a.Likes != nil && found.Likes != *a.Likes {
		return stateMismatch(a, trace, "likes", *a.Likes, found.Likes)
	}
	if a.Comments != nil && found.Comments != *a.Comments {
		return stateMismatch(a, trace, "comments", *a.Comments, found.Comments)
	}
	if a.Liked != nil && found.Liked != *a.Liked {
		return stateMismatch(a, trace, "liked", *a.Liked, found.Liked)
	}
	return nil
}

func stateMismatch(a Assertion, trace []engine.TraceEvent, field string, expected, actual any) error {
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("post %s in %s: %s=%v", a.Post, a.Scope, field, expected),
		Actual:   fmt.Sprintf("%s=%v", field, actual),
		Trace:    trace,
	}
}

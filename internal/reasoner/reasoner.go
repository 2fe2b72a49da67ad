// Package reasoner is the pluggable collaborator the orchestrator consults
// for analysis, planning, and blocker resolution. The production
// implementation talks to the Anthropic API; tests use the static one.
package reasoner

import "context"

// Reasoner produces a response to a prompt given prior conversation context.
type Reasoner interface {
	// Process answers the message. History carries the recent conversation
	// so the reasoner can refer back to it; it may be empty.
	Process(ctx context.Context, message string, history []string) (string, error)
}

// Static returns canned responses in order, then repeats the last one.
// Useful for tests and dry runs.
type Static struct {
	responses []string
	calls     int
}

// NewStatic creates a static reasoner. With no responses it always returns
// an empty string.
func NewStatic(responses ...string) *Static {
	return &Static{responses: responses}
}

// Process returns the next canned response.
func (s *Static) Process(ctx context.Context, message string, _ []string) (string, error) {
	if len(s.responses) == 0 {
		return "", nil
	}
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

package parser

import "fmt"

// SyntaxError reports malformed query text: an illegal operator or character,
// unbalanced parentheses, mixed conjunctions, a leading '?', or a token that its
// converter rejects.
type SyntaxError struct {
	Message  string
	Fragment string
	// Offset is the byte offset in the query text after percent-encoded operators
	// were rewritten, or -1 when no position applies.
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	msg := "rql: " + e.Message
	if e.Fragment != "" {
		msg += fmt.Sprintf(" %q", e.Fragment)
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

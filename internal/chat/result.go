package chat

import (
	"errors"
	"fmt"
)

// Kind classifies how a message was handled.
type Kind string

const (
	KindNone           Kind = "none"
	KindCompletion     Kind = "completion"
	KindLookup         Kind = "lookup"
	KindMalformed      Kind = "malformed"
	KindUnknownCommand Kind = "unknown_command"
	KindIgnored        Kind = "ignored"
)

// Result is the outcome of handling one inbound message. Text is what the
// user should see; it is empty only for KindIgnored. Err carries the
// underlying failure for the completion, lookup and malformed kinds.
type Result struct {
	Text string
	Kind Kind
	Err  error

	// EventID is the journal id of the message.received event, 0 when the
	// journal does not assign ids.
	EventID int64
}

// Failed reports whether the message could not be served as asked.
func (r Result) Failed() bool {
	return r.Err != nil
}

// ErrCircuitOpen is returned while the completion circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("completion circuit open")

// CompletionError reports a failed, timed out or cancelled completion call.
type CompletionError struct {
	Class string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed class=%s: %v", e.Class, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// MalformedCommandError reports a command with the wrong number of arguments.
type MalformedCommandError struct {
	Command string
	Args    []string
	Usage   string
}

func (e *MalformedCommandError) Error() string {
	return fmt.Sprintf("malformed /%s command: got %d arguments", e.Command, len(e.Args))
}

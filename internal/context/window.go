package context

var _ Compressor = Window{}

// Window keeps only the most recent MaxMessages messages.
//
// With PinSystem set, a leading system message survives truncation and
// occupies one of the MaxMessages slots. Without it the window is a plain
// trailing slice and the system message is evicted like any other entry.
// MaxMessages <= 0 disables truncation.
type Window struct {
	MaxMessages int
	PinSystem   bool
}

// Compress truncates messages to the window. The result may share its
// backing array with the input.
func (w Window) Compress(messages []Message) []Message {
	if w.MaxMessages <= 0 || len(messages) <= w.MaxMessages {
		return messages
	}
	if w.PinSystem && messages[0].Role == RoleSystem {
		out := make([]Message, 0, w.MaxMessages)
		out = append(out, messages[0])
		return append(out, messages[len(messages)-(w.MaxMessages-1):]...)
	}
	return messages[len(messages)-w.MaxMessages:]
}

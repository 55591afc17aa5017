package chat

import "strings"

// Replies sent for commands and failures.
const (
	Apology       = "Sorry, I couldn't reach the language model right now. Please try again later."
	PriceUsage    = "Usage: /price <TICKER>"
	ResetDone     = "Conversation history cleared."
	HelpText      = "I'm an investment news assistant. Ask me anything about markets, or use:\n/price <TICKER> - latest price for a ticker\n/reset - forget our conversation\n/help - show this message"
	unknownPrefix = "Unknown command "
)

const (
	cmdPrice = "price"
	cmdStart = "start"
	cmdHelp  = "help"
	cmdReset = "reset"
)

type command struct {
	name string
	args []string
}

// parseCommand splits "/name@bot arg1 arg2" into its lower-case name and
// arguments. ok is false for text that is not a command.
func parseCommand(text string) (command, bool) {
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return command{}, false
	}
	return command{name: strings.ToLower(name), args: fields[1:]}, true
}

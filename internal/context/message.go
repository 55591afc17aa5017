package context

// Role tags a message with who authored it.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a model-agnostic chat message used across the context pipeline.
type Message struct {
	Role    Role
	Content string
}

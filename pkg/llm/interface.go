package llm

import "context"

// Message roles in a tool-calling conversation.
const (
	RoleUser  = "user"
	RoleModel = "model"
	RoleTool  = "tool"
)

// ToolCall is one function invocation requested by the engine.
type ToolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ToolResult carries a tool's output back into the conversation.
type ToolResult struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Message is one turn of the conversation the host resends every
// round-trip; the engine is stateless between calls.
type Message struct {
	Role        string
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Tool declares one callable function with a JSON-schema parameter map.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ChatService is the interface for tool-calling reasoning engines.
// Implement this interface to add new providers (Gemini, Ollama, etc.)
type ChatService interface {
	// Chat sends the system instruction, conversation so far, and the
	// declared tool set, returning either tool-call requests or a
	// plain text terminal response.
	Chat(ctx context.Context, systemInstruction string, history []Message, tools []Tool) (*Message, error)
}

// ProviderType represents the reasoning-engine provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)

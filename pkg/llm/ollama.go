package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OllamaService implements ChatService using an Ollama local model.
type OllamaService struct {
	baseURL string
	model   string
}

// NewOllamaService creates a new Ollama service
func NewOllamaService(baseURL, model string) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return &OllamaService{baseURL: baseURL, model: model}
}

type ollamaToolCall struct {
	Function struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		Parameters  map[string]interface{} `json:"parameters,omitempty"`
	} `json:"function"`
}

func (o *OllamaService) Chat(ctx context.Context, systemInstruction string, history []Message, tools []Tool) (*Message, error) {
	url := o.baseURL + "/api/chat"

	messages := make([]ollamaMessage, 0, len(history)+1)
	if systemInstruction != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: systemInstruction})
	}
	for _, msg := range history {
		switch msg.Role {
		case RoleModel:
			m := ollamaMessage{Role: "assistant", Content: msg.Text}
			for _, call := range msg.ToolCalls {
				tc := ollamaToolCall{}
				tc.Function.Name = call.Name
				tc.Function.Arguments = call.Args
				m.ToolCalls = append(m.ToolCalls, tc)
			}
			messages = append(messages, m)
		case RoleTool:
			for _, result := range msg.ToolResults {
				messages = append(messages, ollamaMessage{Role: "tool", Content: result.Content})
			}
		default:
			messages = append(messages, ollamaMessage{Role: "user", Content: msg.Text})
		}
	}

	declared := make([]ollamaTool, 0, len(tools))
	for _, tool := range tools {
		t := ollamaTool{Type: "function"}
		t.Function.Name = tool.Name
		t.Function.Description = tool.Description
		t.Function.Parameters = tool.Parameters
		declared = append(declared, t)
	}

	payload := map[string]interface{}{
		"model":    o.model,
		"messages": messages,
		"stream":   false,
		"options": map[string]interface{}{
			"temperature": 0.2,
		},
	}
	if len(declared) > 0 {
		payload["tools"] = declared
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message ollamaMessage `json:"message"`
		Done    bool          `json:"done"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := &Message{Role: RoleModel, Text: result.Message.Content}
	for _, tc := range result.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	return out, nil
}

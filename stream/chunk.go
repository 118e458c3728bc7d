package stream

import (
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Chunk is one decoded unit of an event stream. It is a closed set of
// variants so consumers can switch exhaustively: ContentDelta for text,
// ToolCallDelta for incremental tool invocations, Done for the terminal
// marker and Unknown for payloads that parse but match no known shape.
type Chunk interface {
	chunk()
}

// ContentDelta carries an incremental piece of assistant text.
type ContentDelta struct {
	ID      string
	Model   string
	Index   int
	Role    string
	Content string
}

func (ContentDelta) chunk() {}

// ToolCall is one (possibly partial) tool invocation inside a delta.
// Arguments accumulate across deltas with the same Index.
type ToolCall struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallDelta carries incremental tool-call fragments.
type ToolCallDelta struct {
	ID    string
	Model string
	Index int
	Calls []ToolCall
}

func (ToolCallDelta) chunk() {}

// Usage is the token accounting attached to a finished generation.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Done marks the end of one choice. FinishReason is the provider's stated
// reason; Usage is present when the provider attaches accounting to the
// final frame.
type Done struct {
	ID           string
	Model        string
	Index        int
	FinishReason string
	Usage        *Usage
}

func (Done) chunk() {}

// Unknown wraps a payload that is valid JSON but matches no known frame
// shape. The raw document is kept so callers can dig out what they need.
type Unknown struct {
	Raw gjson.Result
}

func (Unknown) chunk() {}

// wireFrame is the provider's chat-completion chunk shape.
type wireFrame struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *Usage       `json:"usage"`
}

type wireChoice struct {
	Index        int      `json:"index"`
	Delta        struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		ToolCalls []struct {
			Index    int    `json:"index"`
			ID       string `json:"id"`
			Type     string `json:"type"`
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// parseChunk turns one event payload into its Chunk variant.
func parseChunk(payload []byte) (Chunk, error) {
	var frame wireFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, err
	}

	if len(frame.Choices) == 0 {
		if frame.Usage != nil {
			// Usage-only trailer some providers emit after the last choice.
			return Done{ID: frame.ID, Model: frame.Model, Usage: frame.Usage}, nil
		}
		return Unknown{Raw: gjson.ParseBytes(payload)}, nil
	}

	choice := frame.Choices[0]
	switch {
	case len(choice.Delta.ToolCalls) > 0:
		calls := make([]ToolCall, len(choice.Delta.ToolCalls))
		for i, tc := range choice.Delta.ToolCalls {
			calls[i] = ToolCall{
				Index:     tc.Index,
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}
		return ToolCallDelta{ID: frame.ID, Model: frame.Model, Index: choice.Index, Calls: calls}, nil
	case choice.FinishReason != nil && *choice.FinishReason != "":
		return Done{
			ID:           frame.ID,
			Model:        frame.Model,
			Index:        choice.Index,
			FinishReason: *choice.FinishReason,
			Usage:        frame.Usage,
		}, nil
	default:
		return ContentDelta{
			ID:      frame.ID,
			Model:   frame.Model,
			Index:   choice.Index,
			Role:    choice.Delta.Role,
			Content: choice.Delta.Content,
		}, nil
	}
}

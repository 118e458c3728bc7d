package wingman

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/wingman/stream"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var jsonNull = []byte(`null`)

// ChatRequest is the payload for a chat completion call. The Stream field
// is owned by the client methods; callers pick streaming by calling
// StreamChatCompletion instead of setting it.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int64    `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream"`
}

// hasImage reports whether any message content carries an image part. The
// API requires an extra marker header on such requests.
func (r ChatRequest) hasImage() bool {
	for _, msg := range r.Messages {
		for _, part := range msg.Content.Parts {
			if _, ok := part.(ImagePart); ok {
				return true
			}
		}
	}
	return false
}

// Message is one turn of the conversation being sent to the API.
type Message struct {
	Role    string         `json:"role"`
	Content ContentOrParts `json:"content"`
}

// Text builds a plain-text message for the given role.
func Text(role, content string) Message {
	return Message{Role: role, Content: ContentOrParts{Content: content}}
}

// ContentOrParts represents either a simple string content or a collection
// of content parts, serializing to whichever shape is populated.
type ContentOrParts struct {
	Content string        // Raw string content, used when the message is just text
	Parts   []ContentPart // Multi-part content (text and image parts)
	_       struct{}      // require keyed usage
}

// MarshalJSON returns the Content as a JSON string when it is non-empty,
// otherwise the Parts as a JSON array, and null when both are empty.
func (c ContentOrParts) MarshalJSON() ([]byte, error) {
	if strings.TrimSpace(c.Content) != "" {
		return json.Marshal(c.Content)
	}
	if c.Parts == nil {
		return jsonNull, nil
	}
	return json.Marshal(c.Parts)
}

// UnmarshalJSON handles both string content and arrays of content parts.
func (c *ContentOrParts) UnmarshalJSON(input []byte) error {
	if !gjson.ValidBytes(input) {
		return fmt.Errorf("invalid json: %s", input)
	}
	jv := gjson.ParseBytes(input)
	if jv.IsArray() {
		aj := jv.Array()
		parts := make([]ContentPart, len(aj))
		for idx, ajv := range aj {
			tpe := ajv.Get("type").String()
			switch tpe {
			case "text":
				var part TextPart
				if err := part.UnmarshalJSON([]byte(ajv.Raw)); err != nil {
					return fmt.Errorf("invalid text part at %d: %w", idx, err)
				}
				parts[idx] = part
			case "image_url":
				var part ImagePart
				if err := part.UnmarshalJSON([]byte(ajv.Raw)); err != nil {
					return fmt.Errorf("invalid image part at %d: %w", idx, err)
				}
				parts[idx] = part
			default:
				return fmt.Errorf("content part at %d has an unknown type %q", idx, tpe)
			}
		}
		c.Parts = parts
		return nil
	}
	c.Content = jv.String()
	return nil
}

// ContentPart is an interface that marks structs as valid content parts.
// Implementations are TextPart and ImagePart.
type ContentPart interface {
	contentPart()
}

// TextPart represents a text-only content part.
type TextPart struct {
	Text string   `json:"text"`
	_    struct{} // require keyed usage
}

func (TextPart) contentPart() {}

var textPartJSON = []byte(`{"type":"text"}`)

// MarshalJSON serializes the text content with a "type":"text" field.
func (t TextPart) MarshalJSON() ([]byte, error) {
	return sjson.SetBytes(textPartJSON, "text", t.Text)
}

// UnmarshalJSON extracts the required 'text' field from the JSON input.
func (t *TextPart) UnmarshalJSON(input []byte) error {
	text := gjson.GetBytes(input, "text")
	if !text.Exists() {
		return errors.New("missing required field 'text'")
	}
	t.Text = text.String()
	return nil
}

// ImagePart represents an image reference in the message content.
type ImagePart struct {
	URL    string   `json:"url"`
	Detail string   `json:"detail,omitempty"`
	_      struct{} // require keyed usage
}

func (ImagePart) contentPart() {}

var imagePartJSON = []byte(`{"type":"image_url"}`)

// MarshalJSON serializes the image reference with a "type":"image_url"
// field and the URL nested under image_url.
func (i ImagePart) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(imagePartJSON, "image_url.url", i.URL)
	if err != nil {
		return nil, err
	}
	if i.Detail != "" {
		return sjson.SetBytes(result, "image_url.detail", i.Detail)
	}
	return result, nil
}

// UnmarshalJSON extracts the required nested 'image_url.url' field.
func (i *ImagePart) UnmarshalJSON(input []byte) error {
	uri := gjson.GetBytes(input, "image_url.url")
	if !uri.Exists() {
		return errors.New("missing required field 'image_url.url'")
	}
	i.URL = uri.String()
	i.Detail = gjson.GetBytes(input, "image_url.detail").String()
	return nil
}

// Image builds an image content part pointing at the given URL.
func Image(url string) ImagePart {
	return ImagePart{URL: url}
}

// ChatResponse is the single-document response of a non-streaming chat
// completion call.
type ChatResponse struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Created int64         `json:"created"`
	Choices []Choice      `json:"choices"`
	Usage   *stream.Usage `json:"usage,omitempty"`
}

// Choice is one generated alternative in a chat response.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant turn inside a choice.
type ResponseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []ToolCallEcho `json:"tool_calls,omitempty"`
}

// ToolCallEcho is a completed tool invocation echoed in a non-streaming
// response.
type ToolCallEcho struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

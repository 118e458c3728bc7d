package wingman

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestContentOrParts_MarshalString(t *testing.T) {
	data, err := json.Marshal(ContentOrParts{Content: "plain text"})
	require.NoError(t, err)
	assert.Equal(t, `"plain text"`, string(data))
}

func TestContentOrParts_MarshalParts(t *testing.T) {
	content := ContentOrParts{Parts: []ContentPart{
		TextPart{Text: "look at this"},
		ImagePart{URL: "https://example.com/cat.png", Detail: "high"},
	}}

	data, err := json.Marshal(content)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(data))

	result := gjson.ParseBytes(data)
	require.True(t, result.IsArray())
	assert.Equal(t, "text", result.Get("0.type").String())
	assert.Equal(t, "look at this", result.Get("0.text").String())
	assert.Equal(t, "image_url", result.Get("1.type").String())
	assert.Equal(t, "https://example.com/cat.png", result.Get("1.image_url.url").String())
	assert.Equal(t, "high", result.Get("1.image_url.detail").String())
}

func TestContentOrParts_MarshalEmpty(t *testing.T) {
	data, err := json.Marshal(ContentOrParts{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestContentOrParts_UnmarshalString(t *testing.T) {
	var content ContentOrParts
	require.NoError(t, json.Unmarshal([]byte(`"just words"`), &content))
	assert.Equal(t, "just words", content.Content)
	assert.Nil(t, content.Parts)
}

func TestContentOrParts_UnmarshalParts(t *testing.T) {
	input := `[
		{"type":"text","text":"caption"},
		{"type":"image_url","image_url":{"url":"https://example.com/dog.png"}}
	]`

	var content ContentOrParts
	require.NoError(t, json.Unmarshal([]byte(input), &content))
	require.Len(t, content.Parts, 2)
	assert.Equal(t, TextPart{Text: "caption"}, content.Parts[0])
	assert.Equal(t, ImagePart{URL: "https://example.com/dog.png"}, content.Parts[1])
}

func TestContentOrParts_UnmarshalUnknownPart(t *testing.T) {
	var content ContentOrParts
	err := json.Unmarshal([]byte(`[{"type":"video","url":"x"}]`), &content)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestChatRequest_HasImage(t *testing.T) {
	plain := ChatRequest{Messages: []Message{Text("user", "hello")}}
	assert.False(t, plain.hasImage())

	withImage := ChatRequest{Messages: []Message{
		Text("user", "hello"),
		{Role: "user", Content: ContentOrParts{Parts: []ContentPart{Image("https://example.com/cat.png")}}},
	}}
	assert.True(t, withImage.hasImage())
}

func TestChatRequest_MarshalShape(t *testing.T) {
	temp := 0.2
	req := ChatRequest{
		Model:       "gpt-4o",
		Messages:    []Message{Text("user", "hi")},
		Temperature: &temp,
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	result := gjson.ParseBytes(data)
	assert.Equal(t, "gpt-4o", result.Get("model").String())
	assert.Equal(t, "user", result.Get("messages.0.role").String())
	assert.Equal(t, "hi", result.Get("messages.0.content").String())
	assert.Equal(t, 0.2, result.Get("temperature").Float())
	assert.False(t, result.Get("max_tokens").Exists())
	assert.True(t, result.Get("stream").Exists())
}

func TestChatResponse_Unmarshal(t *testing.T) {
	input := `{
		"id": "cmpl-9",
		"model": "gpt-4o",
		"created": 1700000000,
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{}"}}]
			},
			"finish_reason": "tool_calls"
		}]
	}`

	var resp ChatResponse
	require.NoError(t, json.Unmarshal([]byte(input), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.Choices[0].Message.ToolCalls[0].Function.Name)
}

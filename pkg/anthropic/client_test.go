package anthropic

import (
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSDKParams(t *testing.T) {
	temp := 0.2
	req := MessageRequest{
		Model:       "claude-haiku-4-5",
		MaxTokens:   1024,
		Temperature: &temp,
		System:      BuildCachedSystemBlocks("identify the wine"),
		Messages: []Message{
			{Role: "user", Content: "dusty bottle, gold label"},
		},
	}

	params := toSDKParams(req)
	assert.Equal(t, sdk.Model("claude-haiku-4-5"), params.Model)
	assert.Equal(t, int64(1024), params.MaxTokens)
	require.True(t, params.Temperature.Valid())
	assert.InDelta(t, 0.2, params.Temperature.Value, 0.0001)
	require.Len(t, params.System, 1)
	assert.Equal(t, "identify the wine", params.System[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), params.System[0].CacheControl.TTL)
	require.Len(t, params.Messages, 1)
}

func TestToSDKParams_NoTemperature(t *testing.T) {
	params := toSDKParams(MessageRequest{
		Model:     "claude-haiku-4-5",
		MaxTokens: 256,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	assert.False(t, params.Temperature.Valid())
	assert.Empty(t, params.System)
}

func TestToSDKMessages_ImageBeforeText(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{
			Role:    "user",
			Content: "what wine is this?",
			Image:   &ImageBlock{MediaType: "image/jpeg", Data: []byte{0xff, 0xd8}},
		},
	})
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Content, 2)
	assert.NotNil(t, msgs[0].Content[0].OfImage)
	assert.NotNil(t, msgs[0].Content[1].OfText)
	assert.Equal(t, "what wine is this?", msgs[0].Content[1].OfText.Text)
}

func TestToSDKMessages_Roles(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
}

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: `{"name": "Châ`},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: `teau Margaux"}`},
		},
	}
	assert.Equal(t, `{"name": "Château Margaux"}`, resp.Text())
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("system prompt")
	require.Len(t, blocks, 1)
	assert.Equal(t, "system prompt", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestStatusCode(t *testing.T) {
	_, ok := StatusCode(errors.New("plain error"))
	assert.False(t, ok)

	code, ok := StatusCode(&sdk.Error{StatusCode: 429})
	assert.True(t, ok)
	assert.Equal(t, 429, code)

	code, ok = StatusCode(errorsJoin(&sdk.Error{StatusCode: 529}))
	assert.True(t, ok)
	assert.Equal(t, 529, code)
}

func errorsJoin(err error) error {
	return errors.Join(errors.New("wrapped"), err)
}

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumaflow/luma/types"
)

// FirstChoice returns the first choice of resp, or false when resp is nil
// or carries no choices.
func FirstChoice(resp *ChatResponse) (ChatChoice, bool) {
	if resp == nil || len(resp.Choices) == 0 {
		return ChatChoice{}, false
	}
	return resp.Choices[0], true
}

// MustFirstChoice returns the first choice or a structured empty-response
// error when the provider produced none.
func MustFirstChoice(resp *ChatResponse) (ChatChoice, error) {
	choice, ok := FirstChoice(resp)
	if !ok {
		return ChatChoice{}, types.NewError(types.ErrEmptyResponse, "provider returned no choices")
	}
	return choice, nil
}

// ResponseText normalizes a provider response to plain text. This is the
// single place where heterogeneous provider payloads become strings; the
// rest of the framework only ever sees the normalized form.
//
// Structured content in Metadata["content_parts"] is flattened part by
// part; anything non-string is JSON encoded so no information is silently
// dropped.
func ResponseText(resp *ChatResponse) string {
	choice, ok := FirstChoice(resp)
	if !ok {
		return ""
	}
	return MessageText(choice.Message)
}

// MessageText extracts the textual content of a message, flattening any
// structured content parts stored in its metadata.
func MessageText(msg types.Message) string {
	parts, ok := msg.Metadata["content_parts"]
	if !ok {
		return msg.Content
	}
	list, ok := parts.([]any)
	if !ok {
		return msg.Content
	}
	var b strings.Builder
	for _, part := range list {
		switch v := part.(type) {
		case string:
			b.WriteString(v)
		case map[string]any:
			if text, ok := v["text"].(string); ok {
				b.WriteString(text)
				continue
			}
			raw, err := json.Marshal(v)
			if err != nil {
				b.WriteString(fmt.Sprintf("%v", v))
				continue
			}
			b.Write(raw)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				b.WriteString(fmt.Sprintf("%v", v))
				continue
			}
			b.Write(raw)
		}
	}
	return b.String()
}

package util

import (
	"github.com/pkoukk/tiktoken-go"
)

// TruncateTokens cuts text down to at most maxTokens tokens under the given
// encoding. Returns the input unchanged when it already fits or when the
// encoding cannot be loaded (prompt budgeting is best effort).
func TruncateTokens(text string, encoding string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return text
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return text
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	return enc.Decode(tokens[:maxTokens])
}

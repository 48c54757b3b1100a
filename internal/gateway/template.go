package gateway

import "strings"

const defaultSystemPrompt = "You are a helpful chat AI assistant."

type turn struct {
	role    string
	content string
}

// formatPrompt frames a user prompt as a system + user exchange and opens the assistant turn:
//
//	<|system|>...<|end|><|user|>...<|end|><|assistant|>
func formatPrompt(system, user string) string {
	var b strings.Builder
	for _, t := range []turn{{"system", system}, {"user", user}} {
		b.WriteString("<|")
		b.WriteString(t.role)
		b.WriteString("|>")
		b.WriteString(t.content)
		b.WriteString("<|end|>")
	}
	b.WriteString("<|assistant|>")
	return b.String()
}

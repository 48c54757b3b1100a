package llm

import (
	"fmt"
	"strings"
)

const (
	stubGreeting = "Hello! I'm MiniVault, a simulated AI assistant. How can I help you today?"
	stubWeather  = "I'm a local API simulation, so I can't check real weather data. But I'd imagine it's a lovely day wherever you are!"
	stubCoding   = "I'd love to help with coding! As a simulated response, I can suggest that breaking down problems into smaller steps is always a good approach."
	stubEmpty    = "It looks like you sent an empty prompt. Please provide some text for me to respond to!"

	stubEchoLimit = 50
)

// StubResponse returns a canned answer for prompt. It is used whenever no
// model is ready. The first matching rule wins.
func StubResponse(prompt string) string {
	lower := strings.ToLower(prompt)

	switch {
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi"):
		return stubGreeting
	case strings.Contains(lower, "weather"):
		return stubWeather
	case strings.Contains(lower, "code") || strings.Contains(lower, "programming"):
		return stubCoding
	case strings.Contains(lower, "explain"):
		return fmt.Sprintf("You asked me to explain something about: '%s'. In a real implementation, I would provide a detailed explanation based on my training data.", prompt)
	case strings.TrimSpace(prompt) == "":
		return stubEmpty
	default:
		return fmt.Sprintf("Thank you for your prompt: '%s'. This is a stubbed response from MiniVault API. In a real implementation, I would process your request using a language model.", excerpt(prompt, stubEchoLimit))
	}
}

func excerpt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

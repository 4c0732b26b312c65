package generation

import (
	"strings"
	"unicode/utf8"

	"vastuchitra/internal/domain"
)

// Validate checks the request shape before any external call is made. It
// returns the request with the prompt trimmed. Pure; no side effects.
func Validate(req domain.GenerationRequest) (domain.GenerationRequest, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return req, domain.E(domain.KindInvalidArgument, "empty prompt")
	}
	if utf8.RuneCountInString(prompt) > domain.MaxPromptLength {
		return req, domain.E(domain.KindInvalidArgument, "prompt too long")
	}
	req.Prompt = prompt
	return req, nil
}

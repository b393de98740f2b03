package usecase

import (
	"strings"

	"holiday-policy-bot/internal/domain"
)

// NotFoundReply is the phrase the model is told to use when the policy does
// not answer the question.
const NotFoundReply = "I cannot find that information."

func buildPromptMessages(policy, question string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildSystemPrompt(policy)},
		{Role: "user", Content: question},
	}
}

func buildSystemPrompt(policy string) string {
	return strings.Join([]string{
		"Role:",
		"You are an HR assistant for the company holiday policy.",
		"",
		"Approved Source:",
		"Answer based only on this company policy:",
		policy,
		"",
		"Behavior Rules:",
		behaviorRules(),
	}, "\n")
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Use only the company policy above as your source of knowledge.",
		"2) If the information is not in the policy, respond exactly: \"" + NotFoundReply + "\"",
		"3) Answer in English.",
		"4) Only answer holiday policy questions; politely decline any other topic.",
	}, "\n")
}

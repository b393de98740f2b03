package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"holiday-policy-bot/internal/domain"
	"holiday-policy-bot/internal/integrations/deepseek"
)

// FallbackAnswer is returned to the user whenever an answer cannot be produced.
const FallbackAnswer = "Sorry, I couldn't get an answer. Please try again later."

type PolicyStore interface {
	Get() string
	Set(text string)
}

type PolicyFetcher interface {
	Fetch(ctx context.Context) string
}

type LLMClient interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// AnswerService answers holiday policy questions from the cached policy text.
type AnswerService struct {
	policy  PolicyStore
	fetcher PolicyFetcher
	llm     LLMClient
	logger  *slog.Logger
}

func NewAnswerService(policy PolicyStore, fetcher PolicyFetcher, llm LLMClient, logger *slog.Logger) (*AnswerService, error) {
	if policy == nil {
		return nil, errors.New("usecase: policy store must not be nil")
	}
	if fetcher == nil {
		return nil, errors.New("usecase: policy fetcher must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerService{
		policy:  policy,
		fetcher: fetcher,
		llm:     llm,
		logger:  logger,
	}, nil
}

// Answer returns the model's reply to question, or FallbackAnswer when any
// step fails. It never returns an error.
func (s *AnswerService) Answer(ctx context.Context, question string) string {
	answer, err := s.answer(ctx, question)
	if err != nil {
		attrs := []any{"err", err}
		var ucErr *Error
		if errors.As(err, &ucErr) {
			attrs = append(attrs, "code", string(ucErr.Code), "reason", ucErr.Reason)
		}
		s.logger.ErrorContext(ctx, "answer failed", attrs...)
		return FallbackAnswer
	}
	return answer
}

func (s *AnswerService) answer(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", newError(ErrorInvalidInput, "empty_question", nil)
	}

	policy, err := s.ensurePolicy(ctx)
	if err != nil {
		return "", err
	}

	raw, err := s.llm.Chat(ctx, buildPromptMessages(policy, question))
	if err != nil {
		return "", classifyLLMError(err)
	}
	return raw, nil
}

// ensurePolicy returns usable policy text, refetching once when the cache is
// empty or holds the failure marker. The refetched value is stored even when
// it is the failure marker.
func (s *AnswerService) ensurePolicy(ctx context.Context) (string, error) {
	policy := s.policy.Get()
	if domain.PolicyUsable(policy) {
		return policy, nil
	}

	policy = s.fetcher.Fetch(ctx)
	s.policy.Set(policy)
	if !domain.PolicyUsable(policy) {
		return "", newError(ErrorPolicyUnavailable, "policy_fetch_failed", nil)
	}
	return policy, nil
}

func classifyLLMError(err error) *Error {
	if errors.Is(err, deepseek.ErrMalformedResponse) {
		return newError(ErrorMalformedResponse, "completion_malformed_response", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, "completion_rate_limited", err)
	}
	return newError(ErrorUpstream, "completion_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"holiday-policy-bot/internal/domain"
)

// WelcomeMessage is posted when a user addresses the bot without a question.
const WelcomeMessage = "Hello! I'm your holiday policy assistant. Ask me anything about our company's holiday policy."

var mentionPattern = regexp.MustCompile(`<@[^>]+>`)

type Answerer interface {
	Answer(ctx context.Context, question string) string
}

type Poster interface {
	PostMessage(ctx context.Context, conversationID, text, threadID string) error
}

// Gateway turns inbound chat events into answers posted back to the same
// conversation. It never lets a failure escape to the transport.
type Gateway struct {
	answerer Answerer
	poster   Poster
	logger   *slog.Logger
}

func NewGateway(answerer Answerer, poster Poster, logger *slog.Logger) (*Gateway, error) {
	if answerer == nil {
		return nil, errors.New("handler: answerer must not be nil")
	}
	if poster == nil {
		return nil, errors.New("handler: poster must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{answerer: answerer, poster: poster, logger: logger}, nil
}

// OnDirectMessage handles a plain message event. Only human messages in a
// one-to-one conversation are answered.
func (g *Gateway) OnDirectMessage(ctx context.Context, ev domain.InboundEvent) {
	log := g.eventLogger("direct_message", ev)
	defer recoverHandler(log)

	if ev.Text == "" || ev.FromBot || !ev.IsDirectMessage {
		return
	}
	g.respond(ctx, log, ev, strings.TrimSpace(ev.Text))
}

// OnMention handles an explicit @-mention of the bot in any conversation.
func (g *Gateway) OnMention(ctx context.Context, ev domain.InboundEvent) {
	log := g.eventLogger("app_mention", ev)
	defer recoverHandler(log)

	if ev.FromBot {
		return
	}
	g.respond(ctx, log, ev, StripMentions(ev.Text))
}

// StripMentions removes <@...> mention markup and surrounding whitespace.
func StripMentions(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

func (g *Gateway) respond(ctx context.Context, log *slog.Logger, ev domain.InboundEvent, question string) {
	reply := WelcomeMessage
	if question != "" {
		reply = g.answerer.Answer(ctx, question)
	}
	if err := g.poster.PostMessage(ctx, ev.ConversationID, reply, ev.ThreadID); err != nil {
		log.ErrorContext(ctx, "failed to post reply", "err", err)
		return
	}
	log.DebugContext(ctx, "reply posted", "welcome", question == "")
}

func (g *Gateway) eventLogger(kind string, ev domain.InboundEvent) *slog.Logger {
	return g.logger.With(
		"correlation_id", newCorrelationID(),
		"event", kind,
		"channel", ev.ConversationID,
		"thread", ev.ThreadID,
	)
}

func recoverHandler(log *slog.Logger) {
	if r := recover(); r != nil {
		log.Error("event handler panicked", "err", fmt.Sprint(r))
	}
}

var newCorrelationID = func() string {
	return uuid.NewString()
}

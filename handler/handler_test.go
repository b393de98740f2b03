package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"holiday-policy-bot/internal/domain"
)

type stubAnswerer struct {
	out       string
	questions []string
	panicWith any
}

func (s *stubAnswerer) Answer(_ context.Context, question string) string {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	s.questions = append(s.questions, question)
	return s.out
}

type postedMessage struct {
	conversationID string
	text           string
	threadID       string
}

type stubPoster struct {
	posted []postedMessage
	err    error
}

func (s *stubPoster) PostMessage(_ context.Context, conversationID, text, threadID string) error {
	s.posted = append(s.posted, postedMessage{conversationID: conversationID, text: text, threadID: threadID})
	return s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, a Answerer, p Poster) *Gateway {
	t.Helper()
	g, err := NewGateway(a, p, quietLogger())
	require.NoError(t, err)
	return g
}

func directMessage(text string) domain.InboundEvent {
	return domain.InboundEvent{
		ConversationID:  "D123",
		UserID:          "U42",
		Text:            text,
		IsDirectMessage: true,
	}
}

func TestNewGateway_ValidatesDependencies(t *testing.T) {
	_, err := NewGateway(nil, &stubPoster{}, nil)
	require.Error(t, err)

	_, err = NewGateway(&stubAnswerer{}, nil, nil)
	require.Error(t, err)

	g, err := NewGateway(&stubAnswerer{}, &stubPoster{}, nil)
	require.NoError(t, err)
	require.NotNil(t, g.logger)
}

func TestOnDirectMessage_AnswersQuestion(t *testing.T) {
	answerer := &stubAnswerer{out: "You receive 20 paid vacation days per year."}
	poster := &stubPoster{}
	g := newTestGateway(t, answerer, poster)

	g.OnDirectMessage(context.Background(), directMessage("How many vacation days do I get?"))

	require.Equal(t, []string{"How many vacation days do I get?"}, answerer.questions)
	require.Equal(t, []postedMessage{{conversationID: "D123", text: "You receive 20 paid vacation days per year."}}, poster.posted)
	require.Contains(t, poster.posted[0].text, "20")
}

func TestOnDirectMessage_TrimsQuestion(t *testing.T) {
	answerer := &stubAnswerer{out: "ok"}
	g := newTestGateway(t, answerer, &stubPoster{})

	g.OnDirectMessage(context.Background(), directMessage("\n  Can I carry over days?\t"))
	require.Equal(t, []string{"Can I carry over days?"}, answerer.questions)
}

func TestOnDirectMessage_PreservesThread(t *testing.T) {
	poster := &stubPoster{}
	g := newTestGateway(t, &stubAnswerer{out: "ok"}, poster)

	ev := directMessage("question")
	ev.ThreadID = "1700000000.000100"
	g.OnDirectMessage(context.Background(), ev)

	require.Len(t, poster.posted, 1)
	require.Equal(t, "1700000000.000100", poster.posted[0].threadID)
}

func TestOnDirectMessage_WhitespaceOnlyPostsWelcome(t *testing.T) {
	answerer := &stubAnswerer{out: "should not be used"}
	poster := &stubPoster{}
	g := newTestGateway(t, answerer, poster)

	g.OnDirectMessage(context.Background(), directMessage("   \n "))

	require.Empty(t, answerer.questions)
	require.Equal(t, []postedMessage{{conversationID: "D123", text: WelcomeMessage}}, poster.posted)
}

func TestOnDirectMessage_Ignored(t *testing.T) {
	cases := []struct {
		name string
		ev   domain.InboundEvent
	}{
		{name: "no text", ev: directMessage("")},
		{name: "from bot", ev: func() domain.InboundEvent {
			ev := directMessage("How many days?")
			ev.FromBot = true
			return ev
		}()},
		{name: "not a direct conversation", ev: func() domain.InboundEvent {
			ev := directMessage("How many days?")
			ev.IsDirectMessage = false
			return ev
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			answerer := &stubAnswerer{out: "x"}
			poster := &stubPoster{}
			g := newTestGateway(t, answerer, poster)

			g.OnDirectMessage(context.Background(), tc.ev)
			require.Empty(t, answerer.questions)
			require.Empty(t, poster.posted)
		})
	}
}

func TestOnMention_StripsMarkupAndAnswers(t *testing.T) {
	answerer := &stubAnswerer{out: "20 days"}
	poster := &stubPoster{}
	g := newTestGateway(t, answerer, poster)

	g.OnMention(context.Background(), domain.InboundEvent{
		ConversationID: "C999",
		Text:           "<@BOT123>  how many vacation days? ",
		ThreadID:       "1700000000.000200",
	})

	require.Equal(t, []string{"how many vacation days?"}, answerer.questions)
	require.Equal(t, []postedMessage{{conversationID: "C999", text: "20 days", threadID: "1700000000.000200"}}, poster.posted)
}

func TestOnMention_MarkupOnlyPostsWelcome(t *testing.T) {
	answerer := &stubAnswerer{out: "should not be used"}
	poster := &stubPoster{}
	g := newTestGateway(t, answerer, poster)

	g.OnMention(context.Background(), domain.InboundEvent{ConversationID: "C999", Text: "<@BOT123> "})

	require.Empty(t, answerer.questions)
	require.Equal(t, []postedMessage{{conversationID: "C999", text: WelcomeMessage}}, poster.posted)
}

func TestOnMention_IgnoresBots(t *testing.T) {
	answerer := &stubAnswerer{out: "x"}
	poster := &stubPoster{}
	g := newTestGateway(t, answerer, poster)

	g.OnMention(context.Background(), domain.InboundEvent{ConversationID: "C999", Text: "<@BOT123> hi", FromBot: true})
	require.Empty(t, answerer.questions)
	require.Empty(t, poster.posted)
}

func TestStripMentions(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<@U123> hello", "hello"},
		{"<@U123|bob>   hello  ", "hello"},
		{"<@U1> <@U2> what about <@U3>?", "what about ?"},
		{"no mention", "no mention"},
		{"<@BOT123> ", ""},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StripMentions(tc.in), "in=%q", tc.in)
	}
}

func TestRespond_PostErrorIsLoggedNotPropagated(t *testing.T) {
	var buf bytes.Buffer
	poster := &stubPoster{err: errors.New("channel_not_found")}
	g, err := NewGateway(&stubAnswerer{out: "ok"}, poster, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	require.NotPanics(t, func() {
		g.OnDirectMessage(context.Background(), directMessage("question"))
	})
	require.Len(t, poster.posted, 1)
	require.Contains(t, buf.String(), "failed to post reply")
	require.Contains(t, buf.String(), "channel_not_found")
}

func TestHandlers_RecoverFromPanics(t *testing.T) {
	var buf bytes.Buffer
	poster := &stubPoster{}
	g, err := NewGateway(&stubAnswerer{panicWith: "boom"}, poster, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	require.NotPanics(t, func() {
		g.OnDirectMessage(context.Background(), directMessage("question"))
		g.OnMention(context.Background(), domain.InboundEvent{ConversationID: "C1", Text: "<@B> question"})
	})
	require.Empty(t, poster.posted)
	require.Contains(t, buf.String(), "event handler panicked")
}

func TestEventLogger_UsesCorrelationID(t *testing.T) {
	orig := newCorrelationID
	newCorrelationID = func() string { return "corr-123" }
	defer func() { newCorrelationID = orig }()

	var buf bytes.Buffer
	g, err := NewGateway(&stubAnswerer{out: "ok"}, &stubPoster{err: errors.New("x")}, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	g.OnDirectMessage(context.Background(), directMessage("question"))
	require.Contains(t, buf.String(), "correlation_id=corr-123")
	require.Contains(t, buf.String(), "channel=D123")
}

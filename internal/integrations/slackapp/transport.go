// Package slackapp connects the bot to Slack over Socket Mode.
//
// Transport owns the websocket session and the Web API client. It converts
// Events API callbacks into domain.InboundEvent values, hands each one to an
// EventHandler on its own goroutine, and posts replies with chat.postMessage.
package slackapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"holiday-policy-bot/internal/domain"
)

const (
	channelTypeIM     = "im"
	subtypeBotMessage = "bot_message"
)

// EventHandler receives inbound chat events. Implementations must not block
// the transport for longer than a single request takes.
type EventHandler interface {
	OnDirectMessage(ctx context.Context, ev domain.InboundEvent)
	OnMention(ctx context.Context, ev domain.InboundEvent)
}

// acker acknowledges Socket Mode envelopes. *socketmode.Client satisfies it.
type acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

type Config struct {
	BotToken string
	AppToken string
	Debug    bool
	Logger   *slog.Logger

	// APIURL overrides the Slack Web API base URL. Empty uses slack.APIURL.
	APIURL string
}

// Transport is the Slack Socket Mode connection used by the bot.
type Transport struct {
	api    *slack.Client
	socket *socketmode.Client
	events <-chan socketmode.Event
	acker  acker
	logger *slog.Logger

	botUserID string // set by Connect

	inflight sync.WaitGroup
}

func New(cfg Config) (*Transport, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("slackapp: bot token must not be empty")
	}
	if strings.TrimSpace(cfg.AppToken) == "" {
		return nil, errors.New("slackapp: app token must not be empty")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	libLog := slog.NewLogLogger(logger.Handler(), slog.LevelDebug)

	apiOpts := []slack.Option{
		slack.OptionAppLevelToken(cfg.AppToken),
		slack.OptionDebug(cfg.Debug),
		slack.OptionLog(libLog),
	}
	if cfg.APIURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(cfg.APIURL))
	}
	api := slack.New(cfg.BotToken, apiOpts...)

	socket := socketmode.New(
		api,
		socketmode.OptionDebug(cfg.Debug),
		socketmode.OptionLog(libLog),
	)

	return &Transport{
		api:    api,
		socket: socket,
		events: socket.Events,
		acker:  socket,
		logger: logger,
	}, nil
}

// Connect verifies the bot token with auth.test and records the bot's own
// user ID so its messages can be recognised.
func (t *Transport) Connect(ctx context.Context) error {
	auth, err := t.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slackapp: auth test: %w", err)
	}
	t.botUserID = auth.UserID
	t.logger.Info("Slack bot authenticated", "user_id", auth.UserID, "team", auth.Team)
	return nil
}

// Run drives the Socket Mode session until ctx is cancelled or the
// connection fails, then waits for in-flight handlers to finish.
func (t *Transport) Run(ctx context.Context, h EventHandler) error {
	if h == nil {
		return errors.New("slackapp: event handler must not be nil")
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		t.handleEvents(runCtx, h)
	}()

	err := t.socket.RunContext(runCtx)
	cancel()
	<-loopDone
	t.inflight.Wait()
	return err
}

// PostMessage posts text to a conversation, inside threadID when it is set.
func (t *Transport) PostMessage(ctx context.Context, conversationID, text, threadID string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadID != "" {
		opts = append(opts, slack.MsgOptionTS(threadID))
	}
	if _, _, err := t.api.PostMessageContext(ctx, conversationID, opts...); err != nil {
		return fmt.Errorf("slackapp: post message to %s: %w", conversationID, err)
	}
	return nil
}

func (t *Transport) handleEvents(ctx context.Context, h EventHandler) {
	// Handlers outlive a cancelled session so replies already in progress
	// can still be delivered; their HTTP timeouts bound them.
	handlerCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-t.events:
			if !ok {
				return
			}
			t.handleEvent(handlerCtx, evt, h)
		}
	}
}

func (t *Transport) handleEvent(ctx context.Context, evt socketmode.Event, h EventHandler) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		t.logger.Info("Slack Socket Mode connecting")

	case socketmode.EventTypeConnected:
		t.logger.Info("Slack Socket Mode connected")

	case socketmode.EventTypeConnectionError:
		t.logger.Error("Slack Socket Mode connection error", "err", fmt.Sprint(evt.Data))

	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			t.logger.Debug("ignoring unexpected events api payload", "type", fmt.Sprintf("%T", evt.Data))
			return
		}
		if evt.Request != nil {
			t.acker.Ack(*evt.Request)
		}
		t.route(ctx, apiEvent, h)

	default:
		t.logger.Debug("socket mode event ignored", "type", string(evt.Type))
	}
}

func (t *Transport) route(ctx context.Context, event slackevents.EventsAPIEvent, h EventHandler) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	eventID := ""
	if cb, ok := event.Data.(*slackevents.EventsAPICallbackEvent); ok && cb != nil {
		eventID = cb.EventID
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		in := t.fromMessage(ev)
		in.EventID = eventID
		t.dispatch(func() { h.OnDirectMessage(ctx, in) })
	case *slackevents.AppMentionEvent:
		in := t.fromMention(ev)
		in.EventID = eventID
		t.dispatch(func() { h.OnMention(ctx, in) })
	}
}

func (t *Transport) dispatch(fn func()) {
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("slack event handler panicked", "err", fmt.Sprint(r))
			}
		}()
		fn()
	}()
}

func (t *Transport) fromMessage(ev *slackevents.MessageEvent) domain.InboundEvent {
	return domain.InboundEvent{
		ConversationID:  ev.Channel,
		UserID:          ev.User,
		Text:            ev.Text,
		ThreadID:        ev.ThreadTimeStamp,
		IsDirectMessage: ev.ChannelType == channelTypeIM,
		FromBot:         ev.BotID != "" || ev.SubType == subtypeBotMessage || t.isSelf(ev.User),
	}
}

func (t *Transport) fromMention(ev *slackevents.AppMentionEvent) domain.InboundEvent {
	return domain.InboundEvent{
		ConversationID: ev.Channel,
		UserID:         ev.User,
		Text:           ev.Text,
		ThreadID:       ev.ThreadTimeStamp,
		FromBot:        ev.BotID != "" || t.isSelf(ev.User),
	}
}

func (t *Transport) isSelf(userID string) bool {
	return t.botUserID != "" && userID == t.botUserID
}

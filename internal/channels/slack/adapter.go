// Package slack adapts a Slack Socket Mode connection to the
// channels.Adapter contract using slack-go/slack.
package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/meridianlabs/agentgateway/internal/channels"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// Config holds the tokens needed for Socket Mode: BotToken (xoxb-) for
// API calls, AppToken (xapp-) for the Socket Mode websocket.
type Config struct {
	BotToken string
	AppToken string
}

// Adapter implements channels.FullAdapter for Slack.
type Adapter struct {
	*channels.BaseHealthAdapter

	cfg          Config
	client       *slack.Client
	socketClient *socketmode.Client

	messages chan channels.InboundMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	botUserID   string
	botUserIDMu sync.RWMutex
}

func NewAdapter(cfg Config) *Adapter {
	client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	socketClient := socketmode.New(client, socketmode.OptionDebug(false))

	return &Adapter{
		BaseHealthAdapter: channels.NewBaseHealthAdapter(models.ChannelSlack, nil),
		cfg:               cfg,
		client:            client,
		socketClient:      socketClient,
		messages:          make(chan channels.InboundMessage, 100),
	}
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelSlack }

// Start authenticates, resolves the bot's own user ID (to filter its own
// messages and detect @mentions), and begins the Socket Mode event loop.
func (a *Adapter) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	authResp, err := a.client.AuthTest()
	if err != nil {
		a.RecordError(channels.ErrCodeAuthentication)
		return channels.ErrAuthentication("failed to authenticate with slack", err)
	}
	a.botUserIDMu.Lock()
	a.botUserID = authResp.UserID
	a.botUserIDMu.Unlock()

	a.Logger().Info("slack adapter started", "bot_user_id", authResp.UserID)

	a.wg.Add(1)
	go a.handleEvents()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.socketClient.Run(); err != nil {
			a.SetStatus(false, err.Error())
			a.RecordError(channels.ErrCodeConnection)
			a.Logger().Error("slack socket mode error", "error", err)
		}
	}()

	a.SetStatus(true, "")
	a.RecordConnectionOpened()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	close(a.messages)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.SetStatus(false, "")
		a.RecordConnectionClosed()
		return nil
	case <-ctx.Done():
		a.SetStatus(false, "shutdown timeout")
		return ctx.Err()
	}
}

// Send posts msg.Text to msg.Recipient.ChannelID, replying in-thread
// when Recipient.GroupID carries a thread timestamp.
func (a *Adapter) Send(ctx context.Context, msg channels.OutboundMessage) (channels.SendResult, error) {
	start := time.Now()

	channelID := msg.Recipient.ChannelID
	if channelID == "" {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeInvalidInput)
		return channels.SendResult{}, channels.ErrInvalidInput("missing slack channel id", nil)
	}

	options := buildBlockKitMessage(msg)
	if threadTS := msg.Recipient.GroupID; threadTS != "" {
		options = append(options, slack.MsgOptionTS(threadTS))
	}

	_, timestamp, err := a.client.PostMessageContext(ctx, channelID, options...)
	if err != nil {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeInternal)
		return channels.SendResult{}, channels.ErrInternal("failed to send slack message", err)
	}

	a.RecordMessageSent()
	a.RecordSendLatency(time.Since(start))
	return channels.SendResult{Success: true, MessageID: timestamp}, nil
}

func (a *Adapter) Messages() <-chan channels.InboundMessage {
	return a.messages
}

func (a *Adapter) handleEvents() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case event, ok := <-a.socketClient.Events:
			if !ok {
				return
			}
			a.UpdateLastPing()

			switch event.Type {
			case socketmode.EventTypeConnectionError:
				a.SetStatus(false, "connection error")
			case socketmode.EventTypeConnected:
				a.SetStatus(true, "")
			case socketmode.EventTypeEventsAPI:
				a.handleEventsAPI(event)
			case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
				a.socketClient.Ack(*event.Request)
			}
		}
	}
}

func (a *Adapter) handleEventsAPI(event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		a.socketClient.Ack(*event.Request)
		return
	}
	a.socketClient.Ack(*event.Request)

	if eventsAPIEvent.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.handleAppMention(ev)
	case *slackevents.MessageEvent:
		if ev.BotID != "" {
			return
		}
		if ev.SubType != "" && ev.SubType != "file_share" {
			return
		}
		a.handleMessage(ev)
	}
}

func (a *Adapter) handleAppMention(event *slackevents.AppMentionEvent) {
	a.handleMessage(&slackevents.MessageEvent{
		Type:            "message",
		User:            event.User,
		Text:            event.Text,
		Channel:         event.Channel,
		TimeStamp:       event.TimeStamp,
		ThreadTimeStamp: event.ThreadTimeStamp,
	})
}

func (a *Adapter) handleMessage(event *slackevents.MessageEvent) {
	a.botUserIDMu.RLock()
	botUserID := a.botUserID
	a.botUserIDMu.RUnlock()

	isDM := strings.HasPrefix(event.Channel, "D")
	isMention := strings.Contains(event.Text, fmt.Sprintf("<@%s>", botUserID))
	if !isDM && !isMention && event.ThreadTimeStamp == "" {
		return
	}

	msg := convertSlackMessage(event)
	a.RecordMessageReceived()

	select {
	case a.messages <- msg:
	case <-a.ctx.Done():
	default:
		a.Logger().Warn("slack messages channel full, dropping message")
		a.RecordMessageFailed()
	}
}

func convertSlackMessage(event *slackevents.MessageEvent) channels.InboundMessage {
	text := event.Text
	for strings.Contains(text, "<@") {
		start := strings.Index(text, "<@")
		end := strings.Index(text[start:], ">")
		if end == -1 {
			break
		}
		text = text[:start] + text[start+end+1:]
	}
	text = strings.TrimSpace(text)

	threadTS := event.ThreadTimeStamp
	if threadTS == "" {
		threadTS = event.TimeStamp
	}

	createdAt := time.Now()
	if ts, err := parseSlackTimestamp(event.TimeStamp); err == nil {
		createdAt = ts
	}

	msg := channels.InboundMessage{
		ID:        fmt.Sprintf("%s:%s", event.Channel, event.TimeStamp),
		ChannelID: event.Channel,
		From: channels.Sender{
			ChannelID: event.Channel,
			UserID:    event.User,
			GroupID:   threadTS,
		},
		Text:      text,
		Timestamp: createdAt,
		Raw:       event,
	}

	if event.Message != nil {
		for _, file := range event.Message.Files {
			msg.Attachments = append(msg.Attachments, channels.Attachment{
				Type:     getAttachmentType(file.Mimetype),
				URL:      file.URLPrivateDownload,
				Name:     file.Name,
				MimeType: file.Mimetype,
			})
		}
	}

	return msg
}

// buildBlockKitMessage renders msg as Block Kit sections, falling back
// to plain text when there's nothing to build blocks from.
func buildBlockKitMessage(msg channels.OutboundMessage) []slack.MsgOption {
	var options []slack.MsgOption

	if msg.Text != "" {
		textBlock := slack.NewTextBlockObject("mrkdwn", msg.Text, false, false)
		options = append(options, slack.MsgOptionBlocks(slack.NewSectionBlock(textBlock, nil, nil)))
	}

	for _, att := range msg.Attachments {
		if att.Type == "image" {
			options = append(options, slack.MsgOptionBlocks(slack.NewImageBlock(att.URL, att.Name, "", nil)))
			continue
		}
		contextText := fmt.Sprintf("\U0001F4CE %s (%s)", att.Name, att.MimeType)
		options = append(options, slack.MsgOptionBlocks(
			slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", contextText, false, false)),
		))
	}

	if len(options) == 0 && msg.Text != "" {
		options = append(options, slack.MsgOptionText(msg.Text, false))
	}
	return options
}

func getAttachmentType(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	default:
		return "document"
	}
}

func parseSlackTimestamp(ts string) (time.Time, error) {
	parts := strings.Split(ts, ".")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid slack timestamp: %s", ts)
	}
	var sec, usec int64
	if _, err := fmt.Sscanf(ts, "%d.%d", &sec, &usec); err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, usec*1000), nil
}

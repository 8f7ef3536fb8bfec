// Package telegram adapts a long-polling Telegram bot to the
// channels.Adapter contract using go-telegram/bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/meridianlabs/agentgateway/internal/channels"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// Config configures a Telegram Adapter. Only long polling is supported;
// a gateway deployment exposing a public HTTPS endpoint for webhooks is
// out of scope here.
type Config struct {
	Token                 string
	MaxReconnectAttempts  int
	ReconnectDelay        time.Duration
	RateLimit             float64
	RateBurst             int
	Logger                *slog.Logger
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return channels.ErrConfig("token is required", nil)
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 30
	}
	if c.RateBurst == 0 {
		c.RateBurst = 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Telegram.
type Adapter struct {
	*channels.BaseHealthAdapter

	config      Config
	botClient   BotClient
	messages    chan channels.InboundMessage
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	rateLimiter *channels.RateLimiter
}

func NewAdapter(config Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		BaseHealthAdapter: channels.NewBaseHealthAdapter(models.ChannelTelegram, config.Logger.With("adapter", "telegram")),
		config:            config,
		messages:          make(chan channels.InboundMessage, 100),
		rateLimiter:       channels.NewRateLimiter(config.RateLimit, config.RateBurst),
	}, nil
}

// SetBotClient injects a BotClient, primarily for tests.
func (a *Adapter) SetBotClient(client BotClient) {
	a.botClient = client
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelTelegram }

func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.botClient == nil {
		b, err := bot.New(a.config.Token)
		if err != nil {
			a.RecordError(channels.ErrCodeAuthentication)
			return channels.ErrAuthentication("failed to create telegram bot", err)
		}
		a.botClient = newRealBotClient(b)
	}

	a.RecordConnectionOpened()
	a.wg.Add(1)
	go a.runWithReconnection(ctx)
	return nil
}

func (a *Adapter) runWithReconnection(ctx context.Context) {
	defer a.wg.Done()
	defer close(a.messages)

	reconnector := &channels.Reconnector{
		Config: channels.ReconnectConfig{
			MaxAttempts:  a.config.MaxReconnectAttempts,
			InitialDelay: a.config.ReconnectDelay,
			MaxDelay:     30 * time.Second,
			Factor:       2,
			Jitter:       true,
		},
		Logger: a.Logger(),
		Health: a.BaseHealthAdapter,
	}

	err := reconnector.Run(ctx, func(runCtx context.Context) error {
		a.SetStatus(true, "")
		a.SetDegraded(false)
		return a.run(runCtx)
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		a.Logger().Error("telegram adapter stopped", "error", err)
		a.RecordError(channels.ErrCodeConnection)
	}
	a.SetStatus(false, "")
}

func (a *Adapter) run(ctx context.Context) error {
	a.botClient.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, a.handleMessage)
	a.botClient.Start(ctx)
	return nil
}

func (a *Adapter) handleMessage(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	start := time.Now()
	if update.Message == nil {
		return
	}

	msg := convertTelegramMessage(update.Message)
	a.RecordMessageReceived()
	a.RecordReceiveLatency(time.Since(start))

	select {
	case a.messages <- msg:
		a.UpdateLastPing()
	case <-ctx.Done():
	default:
		a.Logger().Warn("telegram messages channel full, dropping message", "chat_id", update.Message.Chat.ID)
		a.RecordMessageFailed()
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.RecordConnectionClosed()
		return nil
	case <-ctx.Done():
		a.RecordError(channels.ErrCodeTimeout)
		return channels.ErrTimeout("telegram stop timeout", ctx.Err())
	}
}

// Send delivers msg.Text as plain text to the chat named by
// msg.Recipient.ChannelID (a Telegram chat ID).
func (a *Adapter) Send(ctx context.Context, msg channels.OutboundMessage) (channels.SendResult, error) {
	start := time.Now()

	if err := a.rateLimiter.Wait(ctx); err != nil {
		a.RecordError(channels.ErrCodeTimeout)
		return channels.SendResult{}, channels.ErrTimeout("rate limit wait cancelled", err)
	}
	if a.botClient == nil {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeInternal)
		return channels.SendResult{}, channels.ErrInternal("bot not initialized", nil)
	}

	chatID, err := strconv.ParseInt(msg.Recipient.ChannelID, 10, 64)
	if err != nil {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeInvalidInput)
		return channels.SendResult{}, channels.ErrInvalidInput("invalid telegram chat id", err)
	}

	sent, err := a.botClient.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: msg.Text})
	if err != nil {
		a.RecordMessageFailed()
		if isRateLimitError(err) {
			a.RecordError(channels.ErrCodeRateLimit)
			return channels.SendResult{}, channels.ErrRateLimit("telegram rate limit exceeded", err)
		}
		a.RecordError(channels.ErrCodeInternal)
		return channels.SendResult{}, channels.ErrInternal("failed to send telegram message", err)
	}

	a.RecordMessageSent()
	a.RecordSendLatency(time.Since(start))
	return channels.SendResult{Success: true, MessageID: strconv.Itoa(sent.ID)}, nil
}

func (a *Adapter) Messages() <-chan channels.InboundMessage {
	return a.messages
}

func convertTelegramMessage(msg *tgmodels.Message) channels.InboundMessage {
	groupID := ""
	if !strings.EqualFold(string(msg.Chat.Type), "private") {
		groupID = strconv.FormatInt(msg.Chat.ID, 10)
	}

	userID := ""
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
	}

	return channels.InboundMessage{
		ID:        fmt.Sprintf("tg_%d", msg.ID),
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		From: channels.Sender{
			ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
			UserID:    userID,
			GroupID:   groupID,
		},
		Text:      msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
		Raw:       msg,
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests")
}

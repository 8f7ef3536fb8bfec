// Package discord adapts a Discord bot connection to the channels.Adapter
// contract using bwmarrin/discordgo.
package discord

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/meridianlabs/agentgateway/internal/channels"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// discordSession is the subset of *discordgo.Session the adapter depends
// on, narrowed so tests can substitute a fake.
type discordSession interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

// Config configures a Discord Adapter.
type Config struct {
	Token                 string
	MaxReconnectAttempts  int
	ReconnectBackoff      time.Duration
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
	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = 60 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 5
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Discord.
type Adapter struct {
	*channels.BaseHealthAdapter

	config  Config
	session discordSession

	messages chan channels.InboundMessage

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	rateLimiter *channels.RateLimiter
}

func NewAdapter(config Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		BaseHealthAdapter: channels.NewBaseHealthAdapter(models.ChannelDiscord, config.Logger.With("adapter", "discord")),
		config:            config,
		messages:          make(chan channels.InboundMessage, 100),
		rateLimiter:       channels.NewRateLimiter(config.RateLimit, config.RateBurst),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelDiscord }

// Start establishes the gateway connection and registers event handlers.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Status().Connected {
		return channels.ErrInternal("adapter already started", nil)
	}

	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.config.Token)
		if err != nil {
			a.RecordError(channels.ErrCodeAuthentication)
			return channels.ErrAuthentication("failed to create discord session", err)
		}
		a.session = dg
	}

	a.session.AddHandler(a.handleMessageCreate)

	if err := a.connectWithRetry(ctx); err != nil {
		a.RecordError(channels.ErrCodeConnection)
		return channels.ErrConnection("failed to connect to discord", err)
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.SetStatus(true, "")
	a.RecordConnectionOpened()
	a.Logger().Info("discord adapter started")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Status().Connected {
		return nil
	}
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
	case <-ctx.Done():
		a.Logger().Warn("discord stop timeout, forcing shutdown")
	}

	if err := a.session.Close(); err != nil {
		a.SetStatus(false, err.Error())
		a.RecordError(channels.ErrCodeConnection)
		return channels.ErrConnection("failed to close discord session", err)
	}

	a.SetStatus(false, "")
	close(a.messages)
	a.RecordConnectionClosed()
	return nil
}

// Send posts msg.Text to the channel named by msg.Recipient.ChannelID.
func (a *Adapter) Send(ctx context.Context, msg channels.OutboundMessage) (channels.SendResult, error) {
	start := time.Now()

	if err := a.rateLimiter.Wait(ctx); err != nil {
		a.RecordError(channels.ErrCodeTimeout)
		return channels.SendResult{}, channels.ErrTimeout("rate limit wait cancelled", err)
	}

	if !a.Status().Connected {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeUnavailable)
		return channels.SendResult{}, channels.ErrUnavailable("adapter not connected", nil)
	}

	channelID := msg.Recipient.ChannelID
	if channelID == "" {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeInvalidInput)
		return channels.SendResult{}, channels.ErrInvalidInput("missing discord channel id", nil)
	}

	sent, err := a.session.ChannelMessageSend(channelID, msg.Text)
	if err != nil {
		a.RecordMessageFailed()
		if isRateLimitError(err) {
			a.RecordError(channels.ErrCodeRateLimit)
			return channels.SendResult{}, channels.ErrRateLimit("discord rate limit exceeded", err)
		}
		a.RecordError(channels.ErrCodeInternal)
		return channels.SendResult{}, channels.ErrInternal("failed to send discord message", err)
	}

	a.RecordMessageSent()
	a.RecordSendLatency(time.Since(start))
	return channels.SendResult{Success: true, MessageID: sent.ID}, nil
}

func (a *Adapter) Messages() <-chan channels.InboundMessage {
	return a.messages
}

func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	start := time.Now()
	if m.Author == nil || m.Author.Bot {
		return
	}

	msg := channels.InboundMessage{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		From:      channels.Sender{ChannelID: m.ChannelID, UserID: m.Author.ID},
		Text:      m.Content,
		Timestamp: time.Now(),
		Raw:       m.Message,
	}
	if !m.Timestamp.IsZero() {
		msg.Timestamp = m.Timestamp
	}
	if m.GuildID != "" {
		msg.From.GroupID = m.GuildID
	}
	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, channels.Attachment{
			Type:     detectAttachmentType(att.ContentType),
			URL:      att.URL,
			Name:     att.Filename,
			MimeType: att.ContentType,
		})
	}

	a.RecordMessageReceived()
	a.RecordReceiveLatency(time.Since(start))

	select {
	case a.messages <- msg:
	case <-a.ctx.Done():
	default:
		a.Logger().Warn("discord messages channel full, dropping message", "channel_id", m.ChannelID)
		a.RecordMessageFailed()
	}
}

func (a *Adapter) connectWithRetry(ctx context.Context) error {
	var err error
	maxAttempts := a.config.MaxReconnectAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = a.session.Open()
		if err == nil {
			return nil
		}
		a.RecordReconnectAttempt()

		backoff := calculateBackoff(attempt, a.config.ReconnectBackoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return channels.ErrConnection("failed to connect after retries", err)
}

func calculateBackoff(attempt int, maxWait time.Duration) time.Duration {
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > maxWait {
		backoff = maxWait
	}
	return backoff
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests")
}

func detectAttachmentType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	default:
		return "document"
	}
}

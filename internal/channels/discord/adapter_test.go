package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/meridianlabs/agentgateway/internal/channels"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

func TestConfigValidateRequiresToken(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected missing token to be rejected")
	}
	var chErr *channels.Error
	if !errors.As(err, &chErr) || chErr.Code != channels.ErrCodeConfig {
		t.Fatalf("expected ErrCodeConfig, got %v", err)
	}
}

func TestConfigValidateAppliesDefaults(t *testing.T) {
	cfg := Config{Token: "tok"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Fatalf("expected default MaxReconnectAttempts=5, got %d", cfg.MaxReconnectAttempts)
	}
	if cfg.RateLimit != 5 || cfg.RateBurst != 10 {
		t.Fatalf("expected default rate limit/burst, got %v/%v", cfg.RateLimit, cfg.RateBurst)
	}
}

func TestNewAdapterType(t *testing.T) {
	a, err := NewAdapter(Config{Token: "tok"})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if a.Type() != models.ChannelDiscord {
		t.Fatalf("expected discord channel type, got %v", a.Type())
	}
}

type mockDiscordSession struct {
	openErr              error
	closeErr             error
	channelMessageSendFn func(channelID, content string) (*discordgo.Message, error)
	handlers             []interface{}
}

func (m *mockDiscordSession) Open() error  { return m.openErr }
func (m *mockDiscordSession) Close() error { return m.closeErr }
func (m *mockDiscordSession) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.channelMessageSendFn != nil {
		return m.channelMessageSendFn(channelID, content)
	}
	return &discordgo.Message{ID: "msg-1", ChannelID: channelID, Content: content}, nil
}
func (m *mockDiscordSession) AddHandler(handler interface{}) func() {
	m.handlers = append(m.handlers, handler)
	return func() {}
}

func newTestAdapter(t *testing.T, session discordSession) *Adapter {
	t.Helper()
	a, err := NewAdapter(Config{Token: "tok", ReconnectBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	a.session = session
	return a
}

func TestAdapterStartStop(t *testing.T) {
	session := &mockDiscordSession{}
	a := newTestAdapter(t, session)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.Status().Connected {
		t.Fatal("expected adapter to report connected after Start")
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Status().Connected {
		t.Fatal("expected adapter to report disconnected after Stop")
	}
}

func TestAdapterStartTwiceFails(t *testing.T) {
	a := newTestAdapter(t, &mockDiscordSession{})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background())

	if err := a.Start(context.Background()); err == nil {
		t.Fatal("expected starting twice to fail")
	}
}

func TestAdapterSendRequiresChannelID(t *testing.T) {
	a := newTestAdapter(t, &mockDiscordSession{})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background())

	_, err := a.Send(context.Background(), channels.OutboundMessage{Text: "hi"})
	if err == nil {
		t.Fatal("expected missing channel id to be rejected")
	}
	if channels.CodeOf(err) != channels.ErrCodeInvalidInput {
		t.Fatalf("expected ErrCodeInvalidInput, got %v", channels.CodeOf(err))
	}
}

func TestAdapterSendFailsWhenNotConnected(t *testing.T) {
	a := newTestAdapter(t, &mockDiscordSession{})
	_, err := a.Send(context.Background(), channels.OutboundMessage{
		Recipient: channels.Sender{ChannelID: "c1"},
		Text:      "hi",
	})
	if err == nil || channels.CodeOf(err) != channels.ErrCodeUnavailable {
		t.Fatalf("expected ErrCodeUnavailable, got %v", err)
	}
}

func TestAdapterSendDelivers(t *testing.T) {
	session := &mockDiscordSession{}
	a := newTestAdapter(t, session)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background())

	result, err := a.Send(context.Background(), channels.OutboundMessage{
		Recipient: channels.Sender{ChannelID: "c1"},
		Text:      "hello",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Success || result.MessageID != "msg-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestAdapterSendClassifiesRateLimitErrors(t *testing.T) {
	session := &mockDiscordSession{
		channelMessageSendFn: func(channelID, content string) (*discordgo.Message, error) {
			return nil, errors.New("429 Too Many Requests")
		},
	}
	a := newTestAdapter(t, session)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background())

	_, err := a.Send(context.Background(), channels.OutboundMessage{
		Recipient: channels.Sender{ChannelID: "c1"},
		Text:      "hello",
	})
	if channels.CodeOf(err) != channels.ErrCodeRateLimit {
		t.Fatalf("expected ErrCodeRateLimit, got %v", err)
	}
}

func TestHandleMessageCreateIgnoresBots(t *testing.T) {
	a := newTestAdapter(t, &mockDiscordSession{})
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	defer cancel()

	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:      "m1",
		Author:  &discordgo.User{ID: "bot1", Bot: true},
		Content: "ignored",
	}})

	select {
	case <-a.messages:
		t.Fatal("did not expect a message emitted for a bot author")
	default:
	}
}

func TestHandleMessageCreateEmitsInboundMessage(t *testing.T) {
	a := newTestAdapter(t, &mockDiscordSession{})
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	defer cancel()

	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		Author:    &discordgo.User{ID: "u1"},
		Content:   "hello there",
	}})

	select {
	case msg := <-a.messages:
		if msg.Text != "hello there" || msg.From.UserID != "u1" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestCalculateBackoffCapsAtMax(t *testing.T) {
	if got := calculateBackoff(0, 10*time.Second); got != time.Second {
		t.Fatalf("expected first backoff to be 1s, got %v", got)
	}
	if got := calculateBackoff(10, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected backoff to cap at max, got %v", got)
	}
}

func TestIsRateLimitError(t *testing.T) {
	if !isRateLimitError(errors.New("429 Too Many Requests")) {
		t.Fatal("expected 429 to be detected as a rate limit error")
	}
	if isRateLimitError(errors.New("network unreachable")) {
		t.Fatal("did not expect an unrelated error to be classified as rate limit")
	}
	if isRateLimitError(nil) {
		t.Fatal("nil error should not be a rate limit error")
	}
}

func TestDetectAttachmentType(t *testing.T) {
	cases := map[string]string{
		"image/png":       "image",
		"audio/mpeg":      "audio",
		"video/mp4":       "video",
		"application/pdf": "document",
	}
	for contentType, want := range cases {
		if got := detectAttachmentType(contentType); got != want {
			t.Fatalf("detectAttachmentType(%q) = %q, want %q", contentType, got, want)
		}
	}
}

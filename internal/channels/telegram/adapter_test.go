package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/meridianlabs/agentgateway/internal/channels"
)

type fakeBotClient struct {
	sendErr     error
	lastParams  *bot.SendMessageParams
	registered  bot.HandlerFunc
	startCalled chan struct{}
}

func newFakeBotClient() *fakeBotClient {
	return &fakeBotClient{startCalled: make(chan struct{}, 1)}
}

func (f *fakeBotClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.lastParams = params
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &tgmodels.Message{ID: 42}, nil
}

func (f *fakeBotClient) RegisterHandler(handlerType bot.HandlerType, pattern string, matchType bot.MatchType, handler bot.HandlerFunc) {
	f.registered = handler
}

func (f *fakeBotClient) Start(ctx context.Context) {
	select {
	case f.startCalled <- struct{}{}:
	default:
	}
	<-ctx.Done()
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeBotClient) {
	t.Helper()
	a, err := NewAdapter(Config{Token: "tok"})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	client := newFakeBotClient()
	a.SetBotClient(client)
	return a, client
}

func TestConfigValidateRequiresToken(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing token to be rejected")
	}
}

func TestConfigValidateAppliesDefaults(t *testing.T) {
	cfg := Config{Token: "tok"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MaxReconnectAttempts != 5 || cfg.RateLimit != 30 || cfg.RateBurst != 20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestAdapterStartStop(t *testing.T) {
	a, client := newTestAdapter(t)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-client.startCalled:
	case <-time.After(time.Second):
		t.Fatal("expected botClient.Start to be called")
	}

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestAdapterSendRequiresValidChatID(t *testing.T) {
	a, _ := newTestAdapter(t)
	_, err := a.Send(context.Background(), channels.OutboundMessage{
		Recipient: channels.Sender{ChannelID: "not-a-number"},
		Text:      "hi",
	})
	if channels.CodeOf(err) != channels.ErrCodeInvalidInput {
		t.Fatalf("expected ErrCodeInvalidInput, got %v", err)
	}
}

func TestAdapterSendDelivers(t *testing.T) {
	a, client := newTestAdapter(t)
	result, err := a.Send(context.Background(), channels.OutboundMessage{
		Recipient: channels.Sender{ChannelID: "12345"},
		Text:      "hello",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Success || result.MessageID != "42" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if client.lastParams.ChatID != int64(12345) || client.lastParams.Text != "hello" {
		t.Fatalf("unexpected params sent: %+v", client.lastParams)
	}
}

func TestAdapterSendClassifiesRateLimitErrors(t *testing.T) {
	a, client := newTestAdapter(t)
	client.sendErr = errors.New("429: Too Many Requests")

	_, err := a.Send(context.Background(), channels.OutboundMessage{
		Recipient: channels.Sender{ChannelID: "12345"},
		Text:      "hi",
	})
	if channels.CodeOf(err) != channels.ErrCodeRateLimit {
		t.Fatalf("expected ErrCodeRateLimit, got %v", err)
	}
}

func TestConvertTelegramMessageDirectChat(t *testing.T) {
	msg := convertTelegramMessage(&tgmodels.Message{
		ID:   7,
		Date: 1700000000,
		Chat: tgmodels.Chat{ID: 100, Type: "private"},
		From: &tgmodels.User{ID: 55},
		Text: "hello",
	})
	if msg.From.GroupID != "" {
		t.Fatalf("expected no group id for a private chat, got %q", msg.From.GroupID)
	}
	if msg.From.UserID != "55" || msg.ChannelID != "100" {
		t.Fatalf("unexpected sender: %+v", msg.From)
	}
}

func TestConvertTelegramMessageGroupChat(t *testing.T) {
	msg := convertTelegramMessage(&tgmodels.Message{
		ID:   8,
		Date: 1700000000,
		Chat: tgmodels.Chat{ID: -100, Type: "group"},
		From: &tgmodels.User{ID: 55},
		Text: "hello group",
	})
	if msg.From.GroupID != "-100" {
		t.Fatalf("expected group id to equal the chat id, got %q", msg.From.GroupID)
	}
}

func TestIsRateLimitError(t *testing.T) {
	if !isRateLimitError(errors.New("429: too many requests")) {
		t.Fatal("expected 429 to be classified as rate limit")
	}
	if isRateLimitError(errors.New("network unreachable")) {
		t.Fatal("did not expect unrelated error to be classified as rate limit")
	}
	if isRateLimitError(nil) {
		t.Fatal("nil error should not be a rate limit error")
	}
}

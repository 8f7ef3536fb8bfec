package slack

import (
	"testing"
	"time"

	"github.com/slack-go/slack/slackevents"

	"github.com/meridianlabs/agentgateway/internal/channels"
)

func TestNewAdapterType(t *testing.T) {
	a := NewAdapter(Config{BotToken: "xoxb-test", AppToken: "xapp-test"})
	if a.Type() != "slack" {
		t.Fatalf("expected slack channel type, got %v", a.Type())
	}
}

func TestConvertSlackMessageStripsMentionAndTrims(t *testing.T) {
	event := &slackevents.MessageEvent{
		Type:      "message",
		User:      "U123",
		Text:      "<@BOT1> hello there",
		Channel:   "C1",
		TimeStamp: "1700000000.000100",
	}
	msg := convertSlackMessage(event)
	if msg.Text != "hello there" {
		t.Fatalf("expected mention stripped, got %q", msg.Text)
	}
	if msg.From.UserID != "U123" || msg.From.ChannelID != "C1" {
		t.Fatalf("unexpected sender: %+v", msg.From)
	}
}

func TestConvertSlackMessageUsesThreadAsGroupID(t *testing.T) {
	event := &slackevents.MessageEvent{
		Text:            "reply",
		Channel:         "C1",
		TimeStamp:       "1700000000.000100",
		ThreadTimeStamp: "1699999999.000000",
	}
	msg := convertSlackMessage(event)
	if msg.From.GroupID != "1699999999.000000" {
		t.Fatalf("expected group id to be the thread timestamp, got %q", msg.From.GroupID)
	}
}

func TestConvertSlackMessageDefaultsGroupIDToOwnTimestamp(t *testing.T) {
	event := &slackevents.MessageEvent{
		Text:      "hi",
		Channel:   "C1",
		TimeStamp: "1700000000.000100",
	}
	msg := convertSlackMessage(event)
	if msg.From.GroupID != "1700000000.000100" {
		t.Fatalf("expected group id to default to the message's own timestamp, got %q", msg.From.GroupID)
	}
}

func TestParseSlackTimestamp(t *testing.T) {
	ts, err := parseSlackTimestamp("1700000000.000100")
	if err != nil {
		t.Fatalf("parseSlackTimestamp: %v", err)
	}
	if ts.Unix() != 1700000000 {
		t.Fatalf("expected unix seconds to match, got %d", ts.Unix())
	}
}

func TestParseSlackTimestampRejectsMalformedInput(t *testing.T) {
	if _, err := parseSlackTimestamp("not-a-timestamp"); err == nil {
		t.Fatal("expected an error for a malformed timestamp")
	}
}

func TestGetAttachmentType(t *testing.T) {
	cases := map[string]string{
		"image/png":  "image",
		"audio/mpeg": "audio",
		"video/mp4":  "video",
		"text/plain": "document",
	}
	for mime, want := range cases {
		if got := getAttachmentType(mime); got != want {
			t.Fatalf("getAttachmentType(%q) = %q, want %q", mime, got, want)
		}
	}
}

func TestBuildBlockKitMessageFallsBackToPlainText(t *testing.T) {
	options := buildBlockKitMessage(channels.OutboundMessage{Text: "plain hello"})
	if len(options) != 1 {
		t.Fatalf("expected a single block for text-only content, got %d", len(options))
	}
}

func TestBuildBlockKitMessageAddsBlockPerAttachment(t *testing.T) {
	msg := channels.OutboundMessage{
		Text: "see attached",
		Attachments: []channels.Attachment{
			{Type: "image", URL: "http://example.com/a.png", Name: "a.png"},
			{Type: "document", Name: "report.pdf", MimeType: "application/pdf"},
		},
	}
	options := buildBlockKitMessage(msg)
	if len(options) != 3 {
		t.Fatalf("expected 1 text block + 2 attachment blocks, got %d", len(options))
	}
}

func TestBuildBlockKitMessageEmptyProducesNoOptions(t *testing.T) {
	options := buildBlockKitMessage(channels.OutboundMessage{})
	if len(options) != 0 {
		t.Fatalf("expected no options for an empty message, got %d", len(options))
	}
}

func TestAdapterStatusDefaultsDisconnected(t *testing.T) {
	a := NewAdapter(Config{BotToken: "xoxb-test", AppToken: "xapp-test"})
	if a.Status().Connected {
		t.Fatal("expected a freshly constructed adapter to report disconnected")
	}
}

func TestAdapterMessagesChannelIsReadable(t *testing.T) {
	a := NewAdapter(Config{BotToken: "xoxb-test", AppToken: "xapp-test"})
	select {
	case <-a.Messages():
		t.Fatal("did not expect a message on an idle adapter")
	case <-time.After(10 * time.Millisecond):
	}
}

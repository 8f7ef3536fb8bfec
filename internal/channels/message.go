package channels

import "time"

// Sender identifies who an inbound message came from. GroupID is set for
// messages sent to a shared room/channel/group rather than a direct
// message, and is what routes group-vs-DM sessions differently.
type Sender struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId,omitempty"`
	GroupID   string `json:"groupId,omitempty"`
}

// Attachment is a file, image, or other binary payload carried alongside
// a message. Content is left to the adapter: a URL for platforms that
// host media themselves, raw bytes for those that don't.
type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// InboundMessage is the normalised shape every adapter translates its
// platform-specific events into before handing them to the session
// manager. Raw keeps the untranslated payload for adapters that need to
// resolve a reply or reaction against it later.
type InboundMessage struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channelId"`
	From        Sender       `json:"from"`
	Text        string       `json:"text"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Raw         any          `json:"-"`
}

// OutboundMessage is what the engine hands back to a channel to deliver.
type OutboundMessage struct {
	Recipient   Sender       `json:"recipient"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendResult reports the outcome of an OutboundAdapter.Send call.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

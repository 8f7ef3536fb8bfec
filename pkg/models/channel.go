package models

// ChannelType identifies which transport an inbound or outbound
// message travels over.
type ChannelType string

const (
	ChannelTerminal ChannelType = "terminal"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
	ChannelTelegram ChannelType = "telegram"
	ChannelCanvas   ChannelType = "canvas"
)

// Package terminal implements a line-oriented stdio channel, mainly
// useful for local development and scripted smoke tests where there is
// no chat platform to connect to.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/meridianlabs/agentgateway/internal/channels"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// Adapter reads one inbound message per newline-terminated line from In
// and writes outbound text to Out, prefixed with the recipient so a
// multi-session terminal stays readable.
type Adapter struct {
	*channels.BaseHealthAdapter

	in  io.Reader
	out io.Writer

	userID string

	messages chan channels.InboundMessage
	done     chan struct{}
	closeOnce sync.Once

	seq int64
	mu  sync.Mutex
}

// Config configures a terminal Adapter. UserID labels every inbound
// message's Sender.UserID, since stdio has no concept of platform user
// identity of its own.
type Config struct {
	In     io.Reader
	Out    io.Writer
	UserID string
	Logger *slog.Logger
}

func New(cfg Config) *Adapter {
	userID := cfg.UserID
	if userID == "" {
		userID = "local"
	}
	return &Adapter{
		BaseHealthAdapter: channels.NewBaseHealthAdapter(models.ChannelTerminal, cfg.Logger),
		in:                cfg.In,
		out:               cfg.Out,
		userID:            userID,
		messages:          make(chan channels.InboundMessage, 16),
		done:              make(chan struct{}),
	}
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelTerminal }

// Start launches the line-reading goroutine. It returns once reading has
// begun; EOF on In ends the read loop without an error.
func (a *Adapter) Start(ctx context.Context) error {
	a.SetStatus(true, "")
	a.RecordConnectionOpened()
	go a.readLoop(ctx)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.closeOnce.Do(func() {
		close(a.done)
		close(a.messages)
	})
	a.SetStatus(false, "")
	a.RecordConnectionClosed()
	return nil
}

func (a *Adapter) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		msg := channels.InboundMessage{
			ID:        a.nextID(),
			ChannelID: string(models.ChannelTerminal),
			From:      channels.Sender{ChannelID: string(models.ChannelTerminal), UserID: a.userID},
			Text:      line,
			Timestamp: time.Now(),
		}
		a.RecordMessageReceived()

		select {
		case a.messages <- msg:
		case <-ctx.Done():
			return
		case <-a.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		a.Logger().Warn("terminal adapter: read error", "error", err)
		a.SetStatus(false, err.Error())
	}
}

func (a *Adapter) nextID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	return "term-" + strconv.FormatInt(a.seq, 10)
}

func (a *Adapter) Messages() <-chan channels.InboundMessage {
	return a.messages
}

// Send writes msg.Text to Out, labelled with the recipient's user ID.
func (a *Adapter) Send(ctx context.Context, msg channels.OutboundMessage) (channels.SendResult, error) {
	start := time.Now()
	label := msg.Recipient.UserID
	if label == "" {
		label = a.userID
	}
	if _, err := fmt.Fprintf(a.out, "[%s] %s\n", label, msg.Text); err != nil {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeConnection)
		return channels.SendResult{}, channels.ErrConnection("failed to write to terminal", err)
	}
	a.RecordMessageSent()
	a.RecordSendLatency(time.Since(start))
	return channels.SendResult{Success: true}, nil
}

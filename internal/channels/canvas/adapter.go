// Package canvas adapts a per-session WebSocket connection, as used by
// a UI front-end, to the channels.Adapter contract. Unlike the chat
// adapters it fans out over many concurrent connections, one per
// session, rather than a single upstream link.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meridianlabs/agentgateway/internal/channels"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

// Authenticator validates the optional ?token= query parameter against
// a session ID, returning an error if the connection should be refused.
type Authenticator func(sessionID, token string) error

// Config configures a canvas Adapter.
type Config struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ReadBufferSize  int
	WriteBufferSize int
	Authenticate    Authenticator

	// Snapshot, when set, is called right after a connection upgrades
	// so the client can be brought up to date with the session's
	// current canvas state. A false return means the session has no
	// canvas state yet and no snapshot frame is sent.
	Snapshot func(sessionID string) (json.RawMessage, bool)

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 8192
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 8192
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type session struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) writeFrame(frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(frame)
}

// Adapter implements channels.FullAdapter for the canvas WebSocket
// protocol. Call Handler to obtain the http.Handler to mount at
// /ws/{sessionId} on the control plane's router.
type Adapter struct {
	*channels.BaseHealthAdapter

	cfg      Config
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session

	messages chan channels.InboundMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAdapter(cfg Config) *Adapter {
	cfg.setDefaults()
	return &Adapter{
		BaseHealthAdapter: channels.NewBaseHealthAdapter(models.ChannelCanvas, cfg.Logger.With("adapter", "canvas")),
		cfg:               cfg,
		sessions:          make(map[string]*session),
		messages:          make(chan channels.InboundMessage, 100),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelCanvas }

func (a *Adapter) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.SetStatus(true, "")
	a.RecordConnectionOpened()
	return nil
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
	case <-ctx.Done():
	}

	a.mu.Lock()
	for id, s := range a.sessions {
		_ = s.conn.Close()
		delete(a.sessions, id)
	}
	a.mu.Unlock()

	a.SetStatus(false, "")
	a.RecordConnectionClosed()
	return nil
}

func (a *Adapter) Messages() <-chan channels.InboundMessage {
	return a.messages
}

// Send encodes msg as a s2c:text:complete frame and delivers it to the
// connection named by msg.Recipient.ChannelID (the session ID).
func (a *Adapter) Send(ctx context.Context, msg channels.OutboundMessage) (channels.SendResult, error) {
	return a.sendFrame(msg.Recipient.ChannelID, FrameTextComplete, TextCompletePayload{Text: msg.Text})
}

// SendDelta pushes one streamed text chunk to sessionID.
func (a *Adapter) SendDelta(sessionID, text string) error {
	_, err := a.sendFrame(sessionID, FrameTextDelta, TextDeltaPayload{Text: text})
	return err
}

// SendAgentStatus reports a coarse lifecycle transition to sessionID.
func (a *Adapter) SendAgentStatus(sessionID, status string) error {
	_, err := a.sendFrame(sessionID, FrameAgentStatus, AgentStatusPayload{Status: status})
	return err
}

// SendCanvasSnapshot replaces the client's entire rendered state.
func (a *Adapter) SendCanvasSnapshot(sessionID string, state json.RawMessage) error {
	_, err := a.sendFrame(sessionID, FrameCanvasSnapshot, CanvasSnapshotPayload{State: state})
	return err
}

// SendCanvasChange pushes an incremental canvas state patch.
func (a *Adapter) SendCanvasChange(sessionID string, patch json.RawMessage) error {
	_, err := a.sendFrame(sessionID, FrameCanvasChange, CanvasChangePayload{Patch: patch})
	return err
}

func (a *Adapter) sendFrame(sessionID, frameType string, payload any) (channels.SendResult, error) {
	if sessionID == "" {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeInvalidInput)
		return channels.SendResult{}, channels.ErrInvalidInput("missing canvas session id", nil)
	}

	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if !ok {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeUnavailable)
		return channels.SendResult{}, channels.ErrUnavailable("no active canvas connection for session", nil)
	}

	frame, err := newFrame(frameType, payload)
	if err != nil {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeInternal)
		return channels.SendResult{}, channels.ErrInternal("failed to encode canvas frame", err)
	}

	start := time.Now()
	if err := s.writeFrame(frame); err != nil {
		a.RecordMessageFailed()
		a.RecordError(channels.ErrCodeConnection)
		return channels.SendResult{}, channels.ErrConnection("failed to write canvas frame", err)
	}
	a.RecordMessageSent()
	a.RecordSendLatency(time.Since(start))
	return channels.SendResult{Success: true, MessageID: fmt.Sprintf("%s:%d", sessionID, start.UnixNano())}, nil
}

// Handler returns the http.Handler that upgrades /ws/{sessionId}
// requests, with sessionID already extracted by the caller's router.
func (a *Adapter) Handler(sessionID func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(sessionID(r))
		if id == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}
		if a.cfg.Authenticate != nil {
			token := r.URL.Query().Get("token")
			if err := a.cfg.Authenticate(id, token); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.Logger().Warn("canvas websocket upgrade failed", "error", err, "session_id", id)
			return
		}

		s := &session{id: id, conn: conn}
		a.mu.Lock()
		a.sessions[id] = s
		a.mu.Unlock()
		a.UpdateLastPing()

		if a.cfg.Snapshot != nil {
			if state, ok := a.cfg.Snapshot(id); ok {
				if err := a.SendCanvasSnapshot(id, state); err != nil {
					a.Logger().Warn("failed to send initial canvas snapshot", "session_id", id, "error", err)
				}
			}
		}

		a.wg.Add(1)
		go a.pump(s)
	}
}

func (a *Adapter) pump(s *session) {
	defer a.wg.Done()
	defer func() {
		a.mu.Lock()
		if a.sessions[s.id] == s {
			delete(a.sessions, s.id)
		}
		a.mu.Unlock()
		_ = s.conn.Close()
	}()

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.Logger().Debug("canvas websocket read ended", "session_id", s.id, "error", err)
			}
			return
		}
		a.UpdateLastPing()

		if a.ctx != nil && a.ctx.Err() != nil {
			return
		}

		a.handleFrame(s, frame)
	}
}

// handleFrame translates a c2s frame into inbound text, per the
// bracketed-prefix convention, or handles it purely at the transport
// level when it carries no agent-facing text (drag, ping).
func (a *Adapter) handleFrame(s *session, frame Frame) {
	text, ok, err := translateFrame(frame)
	if err != nil {
		a.Logger().Warn("failed to decode canvas frame payload", "session_id", s.id, "type", frame.Type, "error", err)
		return
	}

	if frame.Type == FramePing {
		if werr := s.writeFrame(Frame{Type: FramePong, Timestamp: time.Now()}); werr != nil {
			a.Logger().Warn("failed to send canvas pong", "session_id", s.id, "error", werr)
		}
		return
	}
	if !ok {
		return
	}

	a.RecordMessageReceived()
	msg := channels.InboundMessage{
		ID:        fmt.Sprintf("canvas_%s_%d", s.id, time.Now().UnixNano()),
		ChannelID: s.id,
		From:      channels.Sender{ChannelID: s.id},
		Text:      text,
		Timestamp: time.Now(),
		Raw:       frame,
	}

	select {
	case a.messages <- msg:
	case <-a.ctx.Done():
	default:
		a.Logger().Warn("canvas messages channel full, dropping message", "session_id", s.id)
		a.RecordMessageFailed()
	}
}

// translateFrame returns the bracketed inbound text for frame, and
// false when the frame type is transport-only (drag, ping) and
// produces no inbound agent message.
func translateFrame(frame Frame) (string, bool, error) {
	switch frame.Type {
	case FrameMessage:
		var p messagePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return "", false, err
		}
		return p.Text, true, nil

	case FrameClick:
		var p clickPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("[USER_CLICK] Component: %s Action: %s", p.ComponentID, p.Action), true, nil

	case FrameInput:
		var p inputPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("[USER_INPUT] Component: %s Value: %s", p.ComponentID, p.Value), true, nil

	case FrameFormSubmit:
		var p formSubmitPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("[FORM_SUBMIT] Form: %s Values: %s", p.FormID, string(p.Values)), true, nil

	case FrameSelect:
		var p selectPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("[USER_SELECT] Component: %s Value: %s", p.ComponentID, p.Value), true, nil

	case FrameSteer:
		var p steerPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("[STEER:inject] %s", p.Text), true, nil

	case FrameAbort:
		var p abortPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return "", false, err
		}
		if p.Reason == "" {
			return "[ABORT]", true, nil
		}
		return fmt.Sprintf("[ABORT] %s", p.Reason), true, nil

	case FrameDrag, FramePing:
		return "", false, nil

	default:
		return "", false, fmt.Errorf("unknown canvas frame type: %s", frame.Type)
	}
}

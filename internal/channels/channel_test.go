package channels

import (
	"context"
	"testing"
	"time"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

type inboundOnlyAdapter struct {
	messages chan InboundMessage
}

func (a *inboundOnlyAdapter) Type() models.ChannelType         { return models.ChannelTelegram }
func (a *inboundOnlyAdapter) Messages() <-chan InboundMessage { return a.messages }

type outboundOnlyAdapter struct{}

func (outboundOnlyAdapter) Type() models.ChannelType { return models.ChannelDiscord }
func (outboundOnlyAdapter) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	return SendResult{Success: true}, nil
}

func TestRegistryGetOutbound(t *testing.T) {
	registry := NewRegistry()
	registry.Register(outboundOnlyAdapter{})

	if _, ok := registry.GetOutbound(models.ChannelDiscord); !ok {
		t.Fatal("expected outbound adapter to be registered")
	}
	if _, ok := registry.GetOutbound(models.ChannelSlack); ok {
		t.Fatal("did not expect an adapter registered for slack")
	}
}

func TestRegistryReplaceDropsStaleCapabilities(t *testing.T) {
	registry := NewRegistry()
	inbound := &inboundOnlyAdapter{messages: make(chan InboundMessage, 1)}
	registry.Register(inbound)

	if _, ok := registry.inbound[models.ChannelTelegram]; !ok {
		t.Fatal("expected telegram registered as inbound")
	}

	// Re-register the same channel type with an adapter that has no
	// inbound capability; the stale inbound entry must be dropped.
	registry.Register(outboundOnlyAdapterAs(models.ChannelTelegram))
	if _, ok := registry.inbound[models.ChannelTelegram]; ok {
		t.Fatal("expected stale inbound registration to be cleared")
	}
}

type retypedOutboundAdapter struct {
	channelType models.ChannelType
}

func (a retypedOutboundAdapter) Type() models.ChannelType { return a.channelType }
func (a retypedOutboundAdapter) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	return SendResult{Success: true}, nil
}

func outboundOnlyAdapterAs(channelType models.ChannelType) Adapter {
	return retypedOutboundAdapter{channelType: channelType}
}

func TestAggregateMessagesFansInFromEveryAdapter(t *testing.T) {
	registry := NewRegistry()
	inbound := &inboundOnlyAdapter{messages: make(chan InboundMessage, 1)}
	registry.Register(inbound)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := registry.AggregateMessages(ctx)
	msg := InboundMessage{ID: "m1", ChannelID: "c1", Text: "hi"}
	inbound.messages <- msg

	select {
	case got := <-out:
		if got.ID != msg.ID {
			t.Fatalf("expected message to pass through unchanged, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for aggregated message")
	}
}

func TestAggregateMessagesClosesWhenContextCancelled(t *testing.T) {
	registry := NewRegistry()
	inbound := &inboundOnlyAdapter{messages: make(chan InboundMessage)}
	registry.Register(inbound)

	ctx, cancel := context.WithCancel(context.Background())
	out := registry.AggregateMessages(ctx)
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected channel to close after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestStartAllStopsOnFirstError(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&lifecycleStub{channelType: models.ChannelDiscord})
	registry.Register(&lifecycleStub{channelType: models.ChannelSlack, startErr: context.DeadlineExceeded})

	if err := registry.StartAll(context.Background()); err == nil {
		t.Fatal("expected StartAll to surface the failing adapter's error")
	}
}

type lifecycleStub struct {
	channelType models.ChannelType
	startErr    error
	stopErr     error
}

func (s *lifecycleStub) Type() models.ChannelType          { return s.channelType }
func (s *lifecycleStub) Start(ctx context.Context) error { return s.startErr }
func (s *lifecycleStub) Stop(ctx context.Context) error  { return s.stopErr }

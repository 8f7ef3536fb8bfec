package providers

import (
	"context"
	"testing"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string         { return s.name }
func (s stubProvider) Models() []ModelInfo  { return nil }
func (s stubProvider) SupportsTools() bool  { return false }
func (s stubProvider) Complete(context.Context, CompletionRequest) (<-chan CompletionChunk, error) {
	return nil, nil
}

func TestRegistry_ResolvesDefaultOnEmptyName(t *testing.T) {
	r, err := NewRegistry("anthropic", stubProvider{name: "anthropic"}, stubProvider{name: "openai"})
	if err != nil {
		t.Fatal(err)
	}
	p, err := r.Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "anthropic" {
		t.Fatalf("got %q, want anthropic", p.Name())
	}
}

func TestRegistry_ResolvesByName(t *testing.T) {
	r, err := NewRegistry("anthropic", stubProvider{name: "anthropic"}, stubProvider{name: "openai"})
	if err != nil {
		t.Fatal(err)
	}
	p, err := r.Resolve("openai")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "openai" {
		t.Fatalf("got %q, want openai", p.Name())
	}
}

func TestRegistry_UnknownProviderErrors(t *testing.T) {
	r, err := NewRegistry("anthropic", stubProvider{name: "anthropic"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve("does-not-exist"); err == nil {
		t.Fatal("expected an error for an unregistered provider")
	}
}

func TestNewRegistry_RejectsUnknownDefault(t *testing.T) {
	if _, err := NewRegistry("missing", stubProvider{name: "anthropic"}); err == nil {
		t.Fatal("expected an error when the default provider isn't registered")
	}
}

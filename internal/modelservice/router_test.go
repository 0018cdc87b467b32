package modelservice

import (
	"context"
	"testing"
)

type stubService struct {
	name string
}

func (s *stubService) Name() string { return s.name }
func (s *stubService) Generate(ctx context.Context, req Request) (*Response, error) {
	return &Response{Content: "stub:" + s.name}, nil
}

func TestRouterResolvesPrefixedModel(t *testing.T) {
	r := NewRouter()
	local := []Service{&stubService{name: "anthropic"}}
	remote := []Service{&stubService{name: "openai"}}

	route := r.Resolve("anthropic/claude-opus-4-6", local, remote)
	if !route.Found || route.Service.Name() != "anthropic" {
		t.Fatalf("expected anthropic route, got %+v", route)
	}
	if route.EffectiveModel != "claude-opus-4-6" {
		t.Fatalf("expected stripped model name, got %q", route.EffectiveModel)
	}
}

func TestRouterFallsBackToRemote(t *testing.T) {
	r := NewRouter()
	remote := []Service{&stubService{name: "openai"}}
	route := r.Resolve("openai/gpt-5", nil, remote)
	if !route.Found || route.Service.Name() != "openai" {
		t.Fatalf("expected openai route from remote, got %+v", route)
	}
}

func TestRouterUnprefixedUsesFirstLocal(t *testing.T) {
	r := NewRouter()
	local := []Service{&stubService{name: "anthropic"}}
	route := r.Resolve("claude-opus-4-6", local, nil)
	if !route.Found || route.Service.Name() != "anthropic" {
		t.Fatalf("expected first local service, got %+v", route)
	}
	if route.EffectiveModel != "claude-opus-4-6" {
		t.Fatalf("expected unprefixed model passed through, got %q", route.EffectiveModel)
	}
}

func TestRouterNoServicesReturnsNotFound(t *testing.T) {
	r := NewRouter()
	route := r.Resolve("anthropic/claude-opus-4-6", nil, nil)
	if route.Found {
		t.Fatalf("expected not-found route, got %+v", route)
	}
}

package modelservice

import "strings"

// Route is the result of resolving a requested model identifier.
type Route struct {
	Service        Service
	EffectiveModel string
	Found          bool
}

// Router resolves a requested model identifier to a concrete Service. A
// pure function over a snapshot of registered services: it performs no
// I/O and holds no state of its own, per spec §4.6.
type Router struct{}

// NewRouter constructs a Router. Stateless; exists for symmetry with the
// rest of the package and to leave room for future routing policy.
func NewRouter() *Router { return &Router{} }

// Resolve maps requestedModel to a Route. local is tried before remote.
// A "provider/model" identifier (e.g. "anthropic/claude-opus-4-6") is
// matched against a service named "anthropic"; an identifier with no
// prefix is matched against the first service in local, falling back to
// the first in remote, so a single configured backend "just works"
// without requiring callers to prefix every model string.
func (r *Router) Resolve(requestedModel string, local, remote []Service) Route {
	provider, model := splitModelPrefix(requestedModel)
	if provider != "" {
		if svc := findByName(local, provider); svc != nil {
			return Route{Service: svc, EffectiveModel: model, Found: true}
		}
		if svc := findByName(remote, provider); svc != nil {
			return Route{Service: svc, EffectiveModel: model, Found: true}
		}
		return Route{}
	}
	if len(local) > 0 {
		return Route{Service: local[0], EffectiveModel: requestedModel, Found: true}
	}
	if len(remote) > 0 {
		return Route{Service: remote[0], EffectiveModel: requestedModel, Found: true}
	}
	return Route{}
}

func splitModelPrefix(requestedModel string) (provider, model string) {
	idx := strings.Index(requestedModel, "/")
	if idx <= 0 {
		return "", requestedModel
	}
	return requestedModel[:idx], requestedModel[idx+1:]
}

func findByName(services []Service, name string) Service {
	for _, svc := range services {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}

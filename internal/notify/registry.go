package notify

// Registry maps channels to providers. It is built once at startup and passed
// to whatever needs it, so there is no shared mutable provider state.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	registry := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, provider := range providers {
		registry.providers[provider.Channel()] = provider
	}
	return registry
}

func (r *Registry) Resolve(channel string) (Provider, bool) {
	provider, ok := r.providers[channel]
	return provider, ok
}

func (r *Registry) Channels() []string {
	channels := make([]string, 0, len(r.providers))
	for channel := range r.providers {
		channels = append(channels, channel)
	}
	return channels
}

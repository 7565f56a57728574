package hostsession

import "sync"

// Registry tracks currently-connected HostClients by hostname.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*HostClient
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*HostClient)}
}

func (r *Registry) put(c *HostClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name] = c
}

func (r *Registry) remove(name string, c *HostClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[name]; ok && cur == c {
		delete(r.clients, name)
	}
}

// Get returns the connected HostClient for name, or nil if not connected.
func (r *Registry) Get(name string) *HostClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[name]
}

// Names returns the hostnames currently connected.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for n := range r.clients {
		out = append(out, n)
	}
	return out
}

package provider

// Registry routes provider tags persisted on items to backends. New
// uploads always target the default backend; downloads and reclamation
// follow the tag an item was stored under, so switching the default never
// strands existing objects.
type Registry struct {
	def      Provider
	backends map[string]Provider
}

// NewRegistry creates a registry with a default backend plus any number
// of additional ones.
func NewRegistry(def Provider, others ...Provider) *Registry {
	backends := map[string]Provider{def.Name(): def}
	for _, p := range others {
		backends[p.Name()] = p
	}
	return &Registry{def: def, backends: backends}
}

// Default returns the backend new uploads are staged into.
func (r *Registry) Default() Provider { return r.def }

// For returns the backend for a stored provider tag, falling back to the
// default for unknown or empty tags.
func (r *Registry) For(tag string) Provider {
	if p, ok := r.backends[tag]; ok {
		return p
	}
	return r.def
}

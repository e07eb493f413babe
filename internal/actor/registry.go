package actor

// Source lists the actors that carry a network state id.
type Source interface {
	AllActorsWithNetworkState() []StateEntry
}

// Registry maps state ids to actors. It is rebuilt once per tick and only
// read afterwards, so ids reassigned between ticks never resolve stale.
type Registry struct {
	byID map[int32]*Actor
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[int32]*Actor)}
}

// Rebuild replaces the mapping with src's current actors. When two actors
// share an id the first one listed wins.
func (r *Registry) Rebuild(src Source) {
	clear(r.byID)
	if src == nil {
		return
	}
	for _, e := range src.AllActorsWithNetworkState() {
		if e.StateID == 0 || e.Actor == nil {
			continue
		}
		if _, dup := r.byID[e.StateID]; !dup {
			r.byID[e.StateID] = e.Actor
		}
	}
}

// Lookup resolves id to a live actor.
func (r *Registry) Lookup(id int32) (*Actor, bool) {
	a, ok := r.byID[id]
	if !ok || !a.Alive() {
		return nil, false
	}
	return a, true
}

// Len returns the number of registered ids.
func (r *Registry) Len() int { return len(r.byID) }

package resolver

import "xdao.co/nref/event"

type ChangeKind int

const (
	ChangeSaved ChangeKind = iota + 1
	ChangeForgotten
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSaved:
		return "saved"
	case ChangeForgotten:
		return "forgotten"
	default:
		return "unknown"
	}
}

// Change describes a mutation of the persisted tier.
type Change struct {
	ID   event.ID
	Kind ChangeKind
}

// Subscribe registers fn to be called after every successful Persist or
// Forget. fn runs synchronously on the mutating goroutine. The returned
// function unregisters it.
func (r *Resolver) Subscribe(fn func(Change)) (cancel func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	key := r.nextSub
	r.nextSub++
	r.subs[key] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, key)
	}
}

func (r *Resolver) notify(c Change) {
	r.subMu.Lock()
	fns := make([]func(Change), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

package document

import (
	"fmt"
	"sync"

	"xdao.co/nref/event"
	"xdao.co/nref/resolver"
)

// Namer labels pubkeys. *contacts.Book satisfies it.
type Namer interface {
	Label(pubkey string) string
}

// Item is the presentation state of one resolved event.
type Item struct {
	Event  event.Event
	Source string
	Author string
	Saved  bool
}

// View is the presentation model for resolved events. It follows the
// resolver's persisted-tier changes so a save or delete shows up without
// re-resolving.
type View struct {
	r     *resolver.Resolver
	names Namer

	mu       sync.Mutex
	items    map[event.ID]*Item
	order    []event.ID
	version  int
	onChange []func(Item)

	unsubscribe func()
}

func NewView(r *resolver.Resolver, names Namer) *View {
	v := &View{r: r, names: names, items: map[event.ID]*Item{}}
	v.unsubscribe = r.Subscribe(v.apply)
	return v
}

// Close detaches v from the resolver.
func (v *View) Close() { v.unsubscribe() }

// Show adds (or refreshes) the item for a resolution outcome.
func (v *View) Show(o resolver.Outcome) Item {
	saved := o.Tier == resolver.TierPersisted
	if !saved {
		saved, _ = v.r.Saved(o.Event.ID)
	}
	it := Item{Event: o.Event, Source: o.Source, Author: o.Event.PubKey, Saved: saved}
	if v.names != nil {
		it.Author = v.names.Label(o.Event.PubKey)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.items[o.Event.ID]; !ok {
		v.order = append(v.order, o.Event.ID)
	}
	v.items[o.Event.ID] = &it
	v.version++
	return it
}

// Items returns shown items in the order they were first shown.
func (v *View) Items() []Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Item, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, *v.items[id])
	}
	return out
}

func (v *View) Item(id event.ID) (Item, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	it, ok := v.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Version increases on every change to the view.
func (v *View) Version() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// OnChange registers fn to run after an item's saved state changes.
func (v *View) OnChange(fn func(Item)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = append(v.onChange, fn)
}

// Save persists a shown item and returns the user-facing notice.
func (v *View) Save(id event.ID, overwrite bool) (string, error) {
	it, ok := v.Item(id)
	if !ok {
		return "", fmt.Errorf("document: event %s is not shown", id.Short())
	}
	status, err := v.r.Persist(it.Event, it.Source, id, overwrite)
	if err != nil {
		return "", err
	}
	return Notice(status, id), nil
}

// Delete forgets a persisted event and returns the user-facing notice.
func (v *View) Delete(id event.ID) (string, error) {
	removed, err := v.r.Forget(id)
	if err != nil {
		return "", err
	}
	if !removed {
		return fmt.Sprintf("Event not saved: %s", id.Short()), nil
	}
	return fmt.Sprintf("Event deleted: %s", id.Short()), nil
}

func (v *View) apply(c resolver.Change) {
	v.mu.Lock()
	it, ok := v.items[c.ID]
	if !ok {
		v.mu.Unlock()
		return
	}
	it.Saved = c.Kind == resolver.ChangeSaved
	v.version++
	snapshot := *it
	fns := append([]func(Item){}, v.onChange...)
	v.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

// Notice renders a persist status the way users see it.
func Notice(status resolver.PersistStatus, id event.ID) string {
	switch status {
	case resolver.StatusAlreadyExists:
		return fmt.Sprintf("Event already exists: %s", id.Short())
	case resolver.StatusOverwritten:
		return fmt.Sprintf("Event overwritten: %s", id.Short())
	default:
		return fmt.Sprintf("Event saved: %s", id.Short())
	}
}

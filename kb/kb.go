package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventDishAdded EventType = iota
	EventStateUpdated
	EventParametersUpdated
)

func (t EventType) String() string {
	switch t {
	case EventDishAdded:
		return "dish_added"
	case EventStateUpdated:
		return "state_updated"
	case EventParametersUpdated:
		return "parameters_updated"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when a dish changes. Dish is a copy.
type Event struct {
	Type EventType
	Dish model.Dish
}

// DishRegistry is an in-memory, thread-safe store of dishes and their
// mechanical state. It is the host-side owner of MechanicalState; the core
// only ever sees copies.
type DishRegistry struct {
	mu sync.RWMutex

	dishes map[string]*model.Dish

	subs   map[int]func(Event)
	nextID int
}

// NewDishRegistry constructs an empty registry.
func NewDishRegistry() *DishRegistry {
	return &DishRegistry{
		dishes: make(map[string]*model.Dish),
		subs:   make(map[int]func(Event)),
	}
}

// AddDish registers a dish. It returns an error if the ID is empty or
// already exists.
func (r *DishRegistry) AddDish(d model.Dish) error {
	if d.ID == "" {
		return fmt.Errorf("dish ID must not be empty")
	}
	r.mu.Lock()
	if _, exists := r.dishes[d.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("dish with ID %q already exists", d.ID)
	}
	stored := copyDish(d)
	stored.State = stored.State.Normalized()
	r.dishes[d.ID] = &stored
	event := Event{Type: EventDishAdded, Dish: copyDish(stored)}
	subs := r.snapshotSubs()
	r.mu.Unlock()

	notify(subs, event)
	return nil
}

// GetDish returns a copy of the dish with the given ID.
func (r *DishRegistry) GetDish(id string) (model.Dish, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dishes[id]
	if !ok {
		return model.Dish{}, false
	}
	return copyDish(*d), true
}

// ListDishes returns copies of all dishes sorted by ID.
func (r *DishRegistry) ListDishes() []model.Dish {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.Dish, 0, len(r.dishes))
	for _, d := range r.dishes {
		res = append(res, copyDish(*d))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// UpdateState replaces a dish's mechanical state and notifies subscribers.
// Azimuth is wrapped and tilt clamped on the way in.
func (r *DishRegistry) UpdateState(id string, state model.MechanicalState) error {
	return r.mutate(id, EventStateUpdated, func(d *model.Dish) {
		d.State = copyState(state).Normalized()
	})
}

// Nudge moves a dish's pointing by the given deltas.
func (r *DishRegistry) Nudge(id string, dAzimuthDeg, dTiltDeg float64) error {
	return r.mutate(id, EventStateUpdated, func(d *model.Dish) {
		d.State.AzimuthDeg += dAzimuthDeg
		d.State.TiltDeg += dTiltDeg
		d.State = d.State.Normalized()
	})
}

// SetParameters replaces a dish's physical parameters. Values are sanitized
// so pattern builders can trust them.
func (r *DishRegistry) SetParameters(id string, params model.PhysicalParameters) error {
	return r.mutate(id, EventParametersUpdated, func(d *model.Dish) {
		d.Params = params.Sanitize()
	})
}

func (r *DishRegistry) mutate(id string, typ EventType, fn func(*model.Dish)) error {
	r.mu.Lock()
	d, ok := r.dishes[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("dish with ID %q not found", id)
	}
	fn(d)
	event := Event{Type: typ, Dish: copyDish(*d)}
	subs := r.snapshotSubs()
	r.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, event)
	return nil
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function.
func (r *DishRegistry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *DishRegistry) snapshotSubs() []func(Event) {
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, r.subs[id])
	}
	return subs
}

func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}

func copyDish(d model.Dish) model.Dish {
	out := d
	out.State = copyState(d.State)
	return out
}

func copyState(s model.MechanicalState) model.MechanicalState {
	out := s
	if s.Position != nil {
		p := *s.Position
		out.Position = &p
	}
	if s.IdealAzimuthDeg != nil {
		out.IdealAzimuthDeg = model.Float64Ptr(*s.IdealAzimuthDeg)
	}
	if s.IdealTiltDeg != nil {
		out.IdealTiltDeg = model.Float64Ptr(*s.IdealTiltDeg)
	}
	return out
}

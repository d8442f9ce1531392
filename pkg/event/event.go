// pkg/event/event.go
package event

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// Type represents the type of event
type Type string

// Common event types
const (
	CollisionEnter  Type = "collision.enter"
	CollisionExit   Type = "collision.exit"
	Died            Type = "mech.died"
	DamageTaken     Type = "mech.damage_taken"
	DamageDealt     Type = "mech.damage_dealt"
	BoostStarted    Type = "mech.boost_started"
	BoostStopped    Type = "mech.boost_stopped"
	AirborneChanged Type = "mech.airborne_changed"
	Footfall        Type = "gait.footfall"
	RigSpawned      Type = "sim.rig_spawned"
	RigRemoved      Type = "sim.rig_removed"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription identifies a registered handler. Cancel removes it; calling
// Cancel more than once is harmless.
type Subscription struct {
	ID     uint64
	Cancel func()
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching. Handlers run synchronously
// on the publishing goroutine in subscription order.
type Bus struct {
	handlers map[Type][]registration
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]registration),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})

	return &Subscription{
		ID:     id,
		Cancel: func() { b.Unsubscribe(id) },
	}
}

// Unsubscribe removes the handler registered under id. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, regs := range b.handlers {
		for i, reg := range regs {
			if reg.id != id {
				continue
			}
			remaining := make([]registration, 0, len(regs)-1)
			remaining = append(remaining, regs[:i]...)
			remaining = append(remaining, regs[i+1:]...)
			if len(remaining) == 0 {
				delete(b.handlers, eventType)
			} else {
				b.handlers[eventType] = remaining
			}
			return
		}
	}
}

// HandlerCount returns the number of handlers registered for eventType.
func (b *Bus) HandlerCount(eventType Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Publish sends an event to all subscribed handlers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	regs := b.handlers[event.GetType()]
	b.mu.RUnlock()

	// Handlers may cancel subscriptions while we iterate; the slice we hold is
	// never mutated in place, so the snapshot stays valid.
	for _, reg := range regs {
		reg.handler(event)
	}
}

// Specific event implementations

// CollisionEvent carries a physics contact transition
type CollisionEvent struct {
	BaseEvent
	Layer  int
	Normal mgl64.Vec3
	Point  mgl64.Vec3
}

// NewCollisionEvent creates a new collision event
func NewCollisionEvent(eventType Type, source interface{}, layer int, normal, point mgl64.Vec3) *CollisionEvent {
	return &CollisionEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		Layer:  layer,
		Normal: normal,
		Point:  point,
	}
}

// DamageEvent contains information about damage and death events
type DamageEvent struct {
	BaseEvent
	Kind   string
	Amount float64
	Health float64
}

// NewDamageEvent creates a new damage event
func NewDamageEvent(eventType Type, source interface{}, kind string, amount, health float64) *DamageEvent {
	return &DamageEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		Kind:   kind,
		Amount: amount,
		Health: health,
	}
}

// StateEvent reports a locomotion state flip
type StateEvent struct {
	BaseEvent
	Airborne bool
	Boosting bool
}

// NewStateEvent creates a new state event
func NewStateEvent(eventType Type, source interface{}, airborne, boosting bool) *StateEvent {
	return &StateEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		Airborne: airborne,
		Boosting: boosting,
	}
}

// FootfallEvent is published when a stepping foot lands
type FootfallEvent struct {
	BaseEvent
	Foot     string
	Position mgl64.Vec3
	Impact   float64
}

// NewFootfallEvent creates a new footfall event
func NewFootfallEvent(source interface{}, foot string, position mgl64.Vec3, impact float64) *FootfallEvent {
	return &FootfallEvent{
		BaseEvent: BaseEvent{
			EventType: Footfall,
			Source:    source,
		},
		Foot:     foot,
		Position: position,
		Impact:   impact,
	}
}

// RigEvent announces rigs entering or leaving a simulation
type RigEvent struct {
	BaseEvent
	RigID uint64
	Name  string
}

// NewRigEvent creates a new rig event
func NewRigEvent(eventType Type, source interface{}, rigID uint64, name string) *RigEvent {
	return &RigEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		RigID: rigID,
		Name:  name,
	}
}

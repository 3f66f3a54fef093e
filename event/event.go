package event

import "time"

// Event event interface
type Event interface {
	// Name event name (unique identifier, such as "registry.instance.registered")
	Name() string

	// Payload event payload (serialized as-is when routed to Kafka)
	Payload() interface{}
}

// BaseEvent base class for events, can be embedded into specific event structs
type BaseEvent struct {
	name       string
	payload    interface{}
	occurredAt time.Time
}

// NewEvent creates a base event
func NewEvent(name string, payload interface{}) BaseEvent {
	return BaseEvent{
		name:       name,
		payload:    payload,
		occurredAt: time.Now(),
	}
}

// Name returns the event name
func (e BaseEvent) Name() string {
	return e.name
}

// Payload returns the event payload
func (e BaseEvent) Payload() interface{} {
	return e.payload
}

// OccurredAt returns the event occurrence time
func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

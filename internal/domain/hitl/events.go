package hitl

// EventType names one of the five real-time events the gateway emits.
type EventType string

const (
	EventCreated      EventType = "hitl.created"
	EventDecided      EventType = "hitl.decided"
	EventExpired      EventType = "hitl.expired"
	EventRecovered    EventType = "hitl.recovered"
	EventAutoApproved EventType = "hitl.auto_approved"
)

// Event carries the full request payload alongside its type; transport is
// pluggable (internal/interfaces/events fans these out over an in-process
// bus and an optional websocket).
type Event struct {
	Type    EventType
	Request ApprovalRequest
}

// Publisher is the pluggable real-time transport the gateway emits
// through. Publish must not block the caller for long — a slow subscriber
// is the publisher implementation's problem, not the gateway's.
type Publisher interface {
	Publish(Event)
}

// NoopPublisher discards every event; used in tests that don't care about
// the event stream.
type NoopPublisher struct{}

func (NoopPublisher) Publish(Event) {}

package waiter

import "time"

type EventType string

const (
	EventOrderCreated     EventType = "order.created"
	EventOrderUpdated     EventType = "order.updated"
	EventOrderReady       EventType = "order.ready"
	EventOrderDeleted     EventType = "order.deleted"
	EventOrderAutoCleared EventType = "order.auto_cleared"
	EventSettingsUpdated  EventType = "settings.updated"
)

// EventVersion is bumped whenever the Event wire shape changes.
const EventVersion = 1

// Event is what boards and downstream consumers hear about a change.
// Order is set for order events, Settings for settings.updated.
type Event struct {
	V        int       `json:"v"`
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	OrderID  int64     `json:"order_id,omitempty"`
	Order    *Order    `json:"order,omitempty"`
	Settings *Settings `json:"settings,omitempty"`
	At       time.Time `json:"at"`
}

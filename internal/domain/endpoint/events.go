package endpoint

import "context"

// Action is the command carried by a control-plane event.
type Action string

const (
	// ActionConnect asks bridges to start serving an endpoint.
	ActionConnect Action = "CONNECT"
	// ActionDisconnect asks bridges to stop serving an endpoint.
	ActionDisconnect Action = "DISCONNECT"
	// ActionUpdate asks bridges to drop and re-establish connections
	// after an endpoint's name or URL changed.
	ActionUpdate Action = "UPDATE"
)

// Channel is the pub/sub channel control-plane events travel on.
const Channel = "mcp-commands"

// EventEndpoint is the endpoint summary embedded in an event.
type EventEndpoint struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Event is one control-plane command published by the admin API and
// consumed by bridge hosts.
type Event struct {
	Action   Action        `json:"action"`
	Endpoint EventEndpoint `json:"endpoint"`
}

// EventFor builds the event summary for an endpoint record.
func EventFor(action Action, ep *Endpoint) Event {
	return Event{
		Action: action,
		Endpoint: EventEndpoint{
			ID:   ep.ID,
			Name: ep.Name,
			URL:  ep.URL,
		},
	}
}

// Publisher pushes control-plane events towards bridge hosts.
// This is a port; implementations: redis pub/sub, in-process bus.
type Publisher interface {
	// Publish sends one event. Delivery is fire-and-forget.
	Publish(ctx context.Context, ev Event) error
}

// Subscriber delivers control-plane events to a handler until ctx is
// cancelled.
type Subscriber interface {
	// Subscribe blocks, invoking handle for each received event.
	// Returns when ctx is cancelled or the transport fails.
	Subscribe(ctx context.Context, handle func(Event)) error
}

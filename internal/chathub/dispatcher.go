package chathub

import (
	"encoding/json"
	"log"

	"mingle/backend/internal/models"
)

// Dispatcher is the single chokepoint every component pushes events
// through. Delivery is best-effort and isolated per connection: a slow or
// dead connection never blocks or fails delivery to its siblings. It holds
// no state of its own.
type Dispatcher struct {
	// unregister is invoked asynchronously for a connection that could not
	// accept an event (closed, or outbound buffer full). Delivery failure
	// is never surfaced to the caller of Deliver.
	unregister func(Client)
}

func NewDispatcher(unregister func(Client)) *Dispatcher {
	return &Dispatcher{unregister: unregister}
}

// Deliver pushes one event to a set of connections. The payload is
// marshalled once, up front; a payload that cannot be marshalled is a
// programming error and the event is dropped with a log line.
func (d *Dispatcher) Deliver(clients []Client, name string, payload any) {
	if len(clients) == 0 {
		return
	}

	ev := models.Event{Name: name}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Printf("dispatcher: dropping %q event, marshal failed: %v", name, err)
			return
		}
		ev.Payload = raw
	}

	for _, c := range clients {
		if c.Send(ev) {
			continue
		}
		log.Printf("dispatcher: connection %s cannot accept %q, unregistering", c.GetID(), name)
		go d.unregister(c)
	}
}

// DeliverExcept is Deliver minus one connection, typically the event's
// originator.
func (d *Dispatcher) DeliverExcept(clients []Client, exceptConnID, name string, payload any) {
	filtered := clients[:0:0]
	for _, c := range clients {
		if c.GetID() != exceptConnID {
			filtered = append(filtered, c)
		}
	}
	d.Deliver(filtered, name, payload)
}

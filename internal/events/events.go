// Package events carries domain events from the engine to push transports.
package events

import (
	"time"

	"lv-tradesim/internal/types"
)

type Event struct {
	Type    types.EventType `json:"type"`
	UserID  string          `json:"user_id,omitempty"`
	Payload any             `json:"payload"`
	TS      int64           `json:"ts"`
}

func New(typ types.EventType, userID string, payload any) Event {
	return Event{Type: typ, UserID: userID, Payload: payload, TS: time.Now().UnixMilli()}
}

// Broadcaster receives every event emitted by a mutating operation. Emit must
// not block the caller on slow consumers.
type Broadcaster interface {
	Emit(evt Event)
}

type multi []Broadcaster

// Fanout emits to every non-nil broadcaster in order.
func Fanout(bs ...Broadcaster) Broadcaster {
	out := make(multi, 0, len(bs))
	for _, b := range bs {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

func (m multi) Emit(evt Event) {
	for _, b := range m {
		b.Emit(evt)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Event) {}

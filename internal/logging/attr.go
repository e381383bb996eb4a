package logging

import (
	"log/slog"
	"time"
)

// Machine records the machine name under the key "machine".
func Machine(name string) slog.Attr {
	return slog.String("machine", name)
}

// EntityID records the entity identifier under the key "entity_id".
func EntityID(id string) slog.Attr {
	return slog.String("entity_id", id)
}

// Transition records a transition name under the key "transition".
// If name is empty, it returns an empty Attr.
func Transition(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("transition", name)
}

// Event records the trigger event under the key "event".
// If event is empty, it returns an empty Attr.
func Event(event string) slog.Attr {
	if event == "" {
		return slog.Attr{}
	}
	return slog.String("event", event)
}

// State records a state name under the key "state".
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the emitting component under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records an elapsed time under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Package stream encodes and decodes the chat endpoint's event stream: lines of
// "data: <json>" terminated by "data: [DONE]".
package stream

// EventType discriminates stream events.
type EventType string

const (
	EventStatus  EventType = "status"
	EventContent EventType = "content"
	EventDone    EventType = "done"
)

// Wire constants.
const (
	DataPrefix = "data: "
	Sentinel   = "[DONE]"
)

// Event is one decoded frame.
type Event struct {
	Type    EventType
	Content string
}

// Status builds a status event.
func Status(s string) Event { return Event{Type: EventStatus, Content: s} }

// Content builds a content event.
func Content(s string) Event { return Event{Type: EventContent, Content: s} }

// frame is the JSON payload. A missing type means content.
type frame struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
}

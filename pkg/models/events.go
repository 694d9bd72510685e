package models

import "encoding/json"

// EventType identifies a stream event emitted by the turn loop.
type EventType string

const (
	EventRunStarted        EventType = "run_started"
	EventTurnStart         EventType = "turn_start"
	EventTextDelta         EventType = "text_delta"
	EventToolCall          EventType = "tool_call"
	EventToolResult        EventType = "tool_result"
	EventOutputFile        EventType = "output_file"
	EventAssistant         EventType = "assistant"
	EventTurnComplete      EventType = "turn_complete"
	EventContextCompressed EventType = "context_compressed"
	EventSteeringReceived  EventType = "steering_received"
	EventComplete          EventType = "complete"
	EventError             EventType = "error"
)

// StreamEvent is one typed progress event. Data keys are flattened into the
// serialized object alongside event_type and turn, so each event is a single
// flat JSON object suitable for an SSE frame.
type StreamEvent struct {
	Type EventType
	Turn int
	Data map[string]any
}

// MarshalJSON flattens Data into the top-level object.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Data)+2)
	for k, v := range e.Data {
		obj[k] = v
	}
	obj["event_type"] = string(e.Type)
	obj["turn"] = e.Turn
	return json.Marshal(obj)
}

// UnmarshalJSON splits event_type and turn back out of the flat object.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj["event_type"].(string); ok {
		e.Type = EventType(v)
	}
	if v, ok := obj["turn"].(float64); ok {
		e.Turn = int(v)
	}
	delete(obj, "event_type")
	delete(obj, "turn")
	e.Data = obj
	return nil
}

package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"fluxo/internal/events"
)

var ErrMissingID = errors.New("message has no id")

// DatasetChangedMessage announces that a new dataset was uploaded to the
// backend. It carries no data: consumers refetch what they need.
type DatasetChangedMessage struct {
	ID         string    `json:"id"`
	Files      []string  `json:"files,omitempty"`
	HasOutflow bool      `json:"has_outflow"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewDatasetChangedMessage builds the message for a DataChanged event.
func NewDatasetChangedMessage(e events.Event) *DatasetChangedMessage {
	ts := e.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &DatasetChangedMessage{
		ID:         e.ID,
		Files:      e.Files,
		HasOutflow: e.HasOutflow,
		Message:    e.Message,
		Timestamp:  ts,
	}
}

// Event converts the message back into a bus event.
func (m *DatasetChangedMessage) Event() events.Event {
	return events.Event{
		ID:         m.ID,
		Kind:       events.DataChanged,
		Files:      m.Files,
		HasOutflow: m.HasOutflow,
		Message:    m.Message,
		At:         m.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *DatasetChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetChangedMessageFromJSON parses a message and requires an id.
func DatasetChangedMessageFromJSON(data []byte) (*DatasetChangedMessage, error) {
	var msg DatasetChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, ErrMissingID
	}
	return &msg, nil
}

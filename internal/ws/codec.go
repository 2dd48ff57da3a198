package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gorilla/websocket"

	"chat-client/internal/models"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownEventType = errors.New("unknown event type")
)

// Decode parses one inbound frame. A missing type is treated as a chat
// message and sender 0 marks a server notice.
func Decode(data []byte) (models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return models.Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch ev.Type {
	case "":
		ev.Type = models.EventMessage
	case models.EventMessage, models.EventTyping, models.EventStopTyping:
	default:
		return models.Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}

	if ev.SenderID == 0 {
		if ev.Type != models.EventMessage {
			return models.Event{}, fmt.Errorf("%w: %s without sender", ErrMalformedPayload, ev.Type)
		}
		ev.Type = models.EventSystem
	}
	return ev, nil
}

func writeJSON(conn *websocket.Conn, v any) error {
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := encodeJSON(w, v); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

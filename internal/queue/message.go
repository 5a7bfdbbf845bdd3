package queue

import (
	"encoding/json"
	"fmt"
)

const (
	EventMediaAttached = "resource.media_attached"
	EventMediaDetached = "resource.media_detached"

	messageVersion = 1
)

// Message is the payload sent to downstream media consumers (transcoding, CDN warmup).
type Message struct {
	Event      string `json:"event"`
	SectionID  int64  `json:"sectionId"`
	ResourceID int64  `json:"resourceId"`
	MediaURL   string `json:"mediaUrl,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.Version == 0 {
		msg.Version = messageVersion
	}
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Version > messageVersion {
		return Message{}, fmt.Errorf("unsupported message version %d", msg.Version)
	}
	return msg, nil
}

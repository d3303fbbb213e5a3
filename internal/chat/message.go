// Package chat provides chat message envelope types for broadcast parsing.
package chat

import (
	"encoding/json"
	"strconv"
)

// FlexInt64 handles JSON fields that can be either string or number.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	// Try as number first
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	// Try as string
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*f = 0
			return nil // Gateways sometimes send opaque IDs; treat as unknown.
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

// Message is a single chat message as delivered by a messaging gateway.
// It can be populated directly from flat JSON or extracted from GatewayWrapper.
type Message struct {
	ID        FlexInt64 `json:"id"`
	Source    string    `json:"source"` // Gateway name, e.g. "whatsapp".
	Timestamp string    `json:"timestamp"`
	Text      string    `json:"text"`

	Chat   *Chat   `json:"chat,omitempty"`
	Sender *Sender `json:"sender,omitempty"`
}

// Chat identifies the group or channel the message was posted to.
type Chat struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Sender identifies the author of a message.
type Sender struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// GatewayWrapper represents the envelope format published by the chat gateway,
// where the message body is nested inside a "message" field with chat and
// sender metadata at the top level.
type GatewayWrapper struct {
	Source  string        `json:"source,omitempty"`
	Chat    *Chat         `json:"chat,omitempty"`
	Sender  *Sender       `json:"sender,omitempty"`
	Message *GatewayInner `json:"message,omitempty"`
}

// GatewayInner is the inner message structure of a GatewayWrapper.
type GatewayInner struct {
	ID        FlexInt64 `json:"id"`
	Timestamp string    `json:"timestamp"`
	Text      string    `json:"text"`
	Body      string    `json:"body,omitempty"` // Older gateway builds use "body".
}

// ToMessage converts a GatewayWrapper to a unified Message.
func (w *GatewayWrapper) ToMessage() *Message {
	if w.Message == nil {
		return nil
	}

	msg := &Message{
		ID:        w.Message.ID,
		Source:    w.Source,
		Timestamp: w.Message.Timestamp,
		Text:      w.Message.Text,
		Chat:      w.Chat,
		Sender:    w.Sender,
	}

	if msg.Text == "" {
		msg.Text = w.Message.Body
	}

	return msg
}

// ChatID returns the chat identifier, or "" when the message has no chat.
func (m *Message) ChatID() string {
	if m.Chat == nil {
		return ""
	}
	return m.Chat.ID
}

// Decode accepts either a GatewayWrapper or a flat Message encoded as JSON.
// It returns nil when the payload carries no text.
func Decode(b []byte) *Message {
	var w GatewayWrapper
	if err := json.Unmarshal(b, &w); err == nil && w.Message != nil {
		if msg := w.ToMessage(); msg != nil && msg.Text != "" {
			return msg
		}
	}

	var m Message
	if err := json.Unmarshal(b, &m); err == nil && m.Text != "" {
		return &m
	}

	return nil
}

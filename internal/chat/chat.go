// Package chat defines the edge the sync engine uses to post into chat
// channels. The concrete transport lives with whoever owns the connection;
// stores only see this interface.
package chat

import "context"

// Attachment is a typed reference carried by a message, e.g. a task id.
type Attachment struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
}

// Message is an outgoing channel message.
type Message struct {
	CustomType  string       `json:"custom_type"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

// Channel can deliver messages to one chat channel.
type Channel interface {
	ID() string
	SendMessage(ctx context.Context, msg Message) error
}

package models

import "gorm.io/gorm"

// Message represents a chat message posted into a channel. CustomType
// distinguishes plain text from structured messages such as task references.
type Message struct {
	gorm.Model
	ChannelID  string `gorm:"size:255;not null;index"`
	SenderID   uint   `gorm:"not null"`
	CustomType string `gorm:"size:50;not null;default:'text'"`
	Content    string `gorm:"type:text"`

	Sender      User                `gorm:"foreignKey:SenderID"`
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID"`
}

// MessageAttachment is a typed reference carried by a message, e.g. a task id.
type MessageAttachment struct {
	gorm.Model
	MessageID uint   `gorm:"not null;index"`
	Type      string `gorm:"size:50;not null"`
	RefID     uint   `gorm:"not null"`
}

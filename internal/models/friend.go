package models

import "time"

// FriendRequestStatus defines the state of a friend request.
type FriendRequestStatus string

const (
	// RequestPending means the request has been sent but not yet answered.
	RequestPending FriendRequestStatus = "pending"

	// RequestAccepted means the receiver accepted; Friend rows exist for
	// both directions.
	RequestAccepted FriendRequestStatus = "accepted"

	// RequestRejected means the receiver rejected. The row is kept so the
	// same sender cannot re-request the same receiver.
	RequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest represents a directed invitation between two users.
// The primary key is a composite of (SenderID, ReceiverID) to ensure uniqueness.
type FriendRequest struct {
	SenderID   uint                `gorm:"primaryKey"`
	ReceiverID uint                `gorm:"primaryKey"`
	Status     FriendRequestStatus `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Sender   User `gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Receiver User `gorm:"foreignKey:ReceiverID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Friend is one direction of an accepted relationship. Accepting a request
// creates two rows, one per perspective.
type Friend struct {
	UserID    uint `gorm:"primaryKey"`
	FriendID  uint `gorm:"primaryKey"`
	CreatedAt time.Time

	FriendUser User `gorm:"foreignKey:FriendID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// BlockedUser is a directed block. A blocked user cannot send requests to
// the blocker.
type BlockedUser struct {
	BlockerID uint `gorm:"primaryKey"`
	BlockedID uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

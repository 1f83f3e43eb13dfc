package schema

import "time"

// Friend request lifecycle states.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// FriendRequest is the fetched row shape of a friend request.
type FriendRequest struct {
	SenderID   uint      `json:"sender_id" validate:"required"`
	ReceiverID uint      `json:"receiver_id" validate:"required"`
	Status     string    `json:"status" validate:"required,oneof=pending accepted rejected"`
	CreatedAt  time.Time `json:"created_at"`
}

// Friend is one direction of an accepted relationship, from the perspective
// of UserID.
type Friend struct {
	UserID    uint      `json:"user_id" validate:"required"`
	FriendID  uint      `json:"friend_id" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

// BlockedUser is the fetched row shape of a directed block.
type BlockedUser struct {
	BlockerID uint      `json:"blocker_id" validate:"required"`
	BlockedID uint      `json:"blocked_id" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxMilestonesPerTask bounds how many milestones a single task may carry;
// the milestone Index field must stay below it.
const MaxMilestonesPerTask = 10

// Milestone is a sub-goal belonging to exactly one task.
type Milestone struct {
	gorm.Model
	TaskID      uint   `gorm:"not null;index"`
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	Deadline    *time.Time
	Completed   bool `gorm:"not null;default:false"`
	Index       int  `gorm:"column:index;not null"`

	Assignees []MilestoneAssignee `gorm:"foreignKey:MilestoneID"`
}

// MilestoneAssignee links a user to a milestone with their own completion
// flag. Milestone assignees are kept a subset of the parent task's assignees
// by the client when editing; the server does not enforce it.
type MilestoneAssignee struct {
	MilestoneID uint `gorm:"primaryKey"`
	UserID      uint `gorm:"primaryKey;index"`
	Completed   bool `gorm:"not null;default:false"`
	CreatedAt   time.Time
}

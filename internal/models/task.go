package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskPriority is the optional priority label of a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Task represents a unit of work owned by its creator.
type Task struct {
	gorm.Model
	Title       string        `gorm:"size:255;not null"`
	Description string        `gorm:"type:text"`
	Completed   bool          `gorm:"not null;default:false"`
	Priority    *TaskPriority `gorm:"type:varchar(20)"`
	Deadline    *time.Time
	CreatorID   uint    `gorm:"not null;index"`
	Recurrence  *string `gorm:"size:50"`

	Creator    User           `gorm:"foreignKey:CreatorID"`
	Assignees  []TaskAssignee `gorm:"foreignKey:TaskID"`
	Milestones []Milestone    `gorm:"foreignKey:TaskID"`
}

// TaskAssignee links a user to a task with their own completion flag.
// Assignees may only toggle their own row.
type TaskAssignee struct {
	TaskID    uint `gorm:"primaryKey"`
	UserID    uint `gorm:"primaryKey;index"`
	Completed bool `gorm:"not null;default:false"`
	CreatedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}

// TaskDependency marks TaskID as blocked on DependsOnID.
type TaskDependency struct {
	TaskID      uint `gorm:"primaryKey"`
	DependsOnID uint `gorm:"primaryKey"`
	CreatedAt   time.Time
}

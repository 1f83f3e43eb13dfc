package models

import (
	"time"

	"gorm.io/gorm"
)

// Tag is a user-defined label attachable to tasks.
type Tag struct {
	gorm.Model
	Name string `gorm:"size:100;unique;not null"`
}

// TaskTag links a tag to a task.
type TaskTag struct {
	TaskID    uint `gorm:"primaryKey"`
	TagID     uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

package handler

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"taskmate/backend/internal/database"
	"taskmate/backend/internal/hub"
	"taskmate/backend/internal/models"
)

// broadcastChange marshals row snapshots and pushes a change event to every
// user in the audience.
func broadcastChange(table string, typ hub.ChangeType, newRow, oldRow any, audience []uint) {
	event := hub.ChangeEvent{Schema: "public", Table: table, Type: typ}

	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			log.Printf("Failed to marshal change payload for %s: %v", table, err)
			return
		}
		event.New = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			log.Printf("Failed to marshal change payload for %s: %v", table, err)
			return
		}
		event.Old = raw
	}

	hub.GlobalHub.Broadcast(audience, event)
}

// taskAudience returns the users who should see changes to a task: the
// creator plus every assignee.
func taskAudience(taskID uint) []uint {
	var task models.Task
	if err := database.DB.First(&task, taskID).Error; err != nil {
		return nil
	}

	audience := []uint{task.CreatorID}

	var assignees []models.TaskAssignee
	if err := database.DB.Where("task_id = ?", taskID).Find(&assignees).Error; err == nil {
		for _, a := range assignees {
			audience = append(audience, a.UserID)
		}
	}
	return audience
}

// friendAudience returns every user who has an accepted friend row pointing
// at the given user.
func friendAudience(userID uint) []uint {
	var friends []models.Friend
	if err := database.DB.Where("friend_id = ?", userID).Find(&friends).Error; err != nil {
		return nil
	}
	audience := make([]uint, 0, len(friends))
	for _, f := range friends {
		audience = append(audience, f.UserID)
	}
	return audience
}

// parseIDList parses a comma-separated id list query parameter.
func parseIDList(raw string) ([]uint, bool) {
	if raw == "" {
		return nil, true
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, false
		}
		ids = append(ids, uint(id))
	}
	return ids, true
}

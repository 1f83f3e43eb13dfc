package handler

import (
	"net/http"
	"strconv"
	"taskmate/backend/internal/database"
	"taskmate/backend/internal/models"
	"time"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

// TaskResponse is the row shape of a task.
type TaskResponse struct {
	ID          uint                 `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Completed   bool                 `json:"completed"`
	Priority    *models.TaskPriority `json:"priority"`
	Deadline    *time.Time           `json:"deadline"`
	CreatorID   uint                 `json:"creator_id"`
	Recurrence  *string              `json:"recurrence"`
	CreatedAt   time.Time            `json:"created_at"`
}

// TaskAssigneeResponse is the row shape of a task assignee.
type TaskAssigneeResponse struct {
	TaskID    uint `json:"task_id"`
	UserID    uint `json:"user_id"`
	Completed bool `json:"completed"`
}

// MilestoneResponse is the row shape of a milestone.
type MilestoneResponse struct {
	ID          uint       `json:"id"`
	TaskID      uint       `json:"task_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Completed   bool       `json:"completed"`
	Index       int        `json:"index"`
}

// MilestoneAssigneeResponse is the row shape of a milestone assignee.
type MilestoneAssigneeResponse struct {
	MilestoneID uint `json:"milestone_id"`
	UserID      uint `json:"user_id"`
	Completed   bool `json:"completed"`
}

// TaskTagResponse links a task to a named tag.
type TaskTagResponse struct {
	TaskID uint   `json:"task_id"`
	TagID  uint   `json:"tag_id"`
	Name   string `json:"name"`
}

// TaskDependencyResponse is the row shape of a dependency edge.
type TaskDependencyResponse struct {
	TaskID      uint `json:"task_id"`
	DependsOnID uint `json:"depends_on_id"`
}

// TaskBundleResponse is a task with every related row, the shape rendered by
// chat task attachments.
type TaskBundleResponse struct {
	Task               TaskResponse                `json:"task"`
	Assignees          []TaskAssigneeResponse      `json:"assignees"`
	Milestones         []MilestoneResponse         `json:"milestones"`
	MilestoneAssignees []MilestoneAssigneeResponse `json:"milestone_assignees"`
	Tags               []TaskTagResponse           `json:"tags"`
	Dependencies       []TaskDependencyResponse    `json:"dependencies"`
}

// MilestoneInput is one milestone of a composite task create.
type MilestoneInput struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Index       int        `json:"index" binding:"min=0"`
	AssigneeIDs []uint     `json:"assignee_ids"`
}

// CreateTaskInput is the composite payload for the transactional create.
type CreateTaskInput struct {
	Title        string               `json:"title" binding:"required"`
	Description  string               `json:"description"`
	Priority     *models.TaskPriority `json:"priority" binding:"omitempty,oneof=low medium high"`
	Deadline     *time.Time           `json:"deadline"`
	Recurrence   *string              `json:"recurrence"`
	AssigneeIDs  []uint               `json:"assignee_ids"`
	Milestones   []MilestoneInput     `json:"milestones" binding:"dive"`
	TagNames     []string             `json:"tag_names"`
	DependsOnIDs []uint               `json:"depends_on_ids"`
}

// UpdateTaskInput updates the core task fields. Only the creator may call it.
type UpdateTaskInput struct {
	Title       string               `json:"title" binding:"required"`
	Description string               `json:"description"`
	Completed   bool                 `json:"completed"`
	Priority    *models.TaskPriority `json:"priority" binding:"omitempty,oneof=low medium high"`
	Deadline    *time.Time           `json:"deadline"`
	Recurrence  *string              `json:"recurrence"`
}

// CompletionInput toggles an assignee's completion flag.
type CompletionInput struct {
	Completed *bool `json:"completed" binding:"required"`
}

func newTaskResponse(t models.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    t.Priority,
		Deadline:    t.Deadline,
		CreatorID:   t.CreatorID,
		Recurrence:  t.Recurrence,
		CreatedAt:   t.CreatedAt,
	}
}

func newMilestoneResponse(m models.Milestone) MilestoneResponse {
	return MilestoneResponse{
		ID:          m.ID,
		TaskID:      m.TaskID,
		Title:       m.Title,
		Description: m.Description,
		Deadline:    m.Deadline,
		Completed:   m.Completed,
		Index:       m.Index,
	}
}

// endregion

// region --- List handlers ---

// GetTasks godoc
// @Summary      List the authenticated user's tasks
// @Description  Fetches every task the user created or is assigned to.
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   TaskResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /tasks [get]
func GetTasks(c *gin.Context) {
	viewerID, _ := c.Get("userID")

	var tasks []models.Task
	err := database.DB.
		Joins("LEFT JOIN task_assignees ON task_assignees.task_id = tasks.id").
		Where("tasks.creator_id = ? OR task_assignees.user_id = ?", viewerID, viewerID).
		Group("tasks.id").
		Find(&tasks).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tasks"})
		return
	}

	responses := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		responses = append(responses, newTaskResponse(t))
	}

	c.JSON(http.StatusOK, responses)
}

// GetTaskAssignees godoc
// @Summary      List assignees for a set of tasks
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        task_ids  query     string  true  "Comma-separated task IDs"
// @Success      200       {array}   TaskAssigneeResponse
// @Failure      400       {object}  ErrorResponse
// @Router       /task-assignees [get]
func GetTaskAssignees(c *gin.Context) {
	ids, ok := parseIDList(c.Query("task_ids"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task_ids"})
		return
	}

	var rows []models.TaskAssignee
	if err := database.DB.Where("task_id IN ?", ids).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch assignees"})
		return
	}

	responses := make([]TaskAssigneeResponse, 0, len(rows))
	for _, r := range rows {
		responses = append(responses, TaskAssigneeResponse{TaskID: r.TaskID, UserID: r.UserID, Completed: r.Completed})
	}

	c.JSON(http.StatusOK, responses)
}

// GetTaskTags godoc
// @Summary      List tags for a set of tasks
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        task_ids  query     string  true  "Comma-separated task IDs"
// @Success      200       {array}   TaskTagResponse
// @Failure      400       {object}  ErrorResponse
// @Router       /task-tags [get]
func GetTaskTags(c *gin.Context) {
	ids, ok := parseIDList(c.Query("task_ids"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task_ids"})
		return
	}

	responses, err := fetchTaskTags(ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tags"})
		return
	}

	c.JSON(http.StatusOK, responses)
}

func fetchTaskTags(taskIDs []uint) ([]TaskTagResponse, error) {
	var rows []models.TaskTag
	if err := database.DB.Where("task_id IN ?", taskIDs).Find(&rows).Error; err != nil {
		return nil, err
	}

	tagIDs := make([]uint, 0, len(rows))
	for _, r := range rows {
		tagIDs = append(tagIDs, r.TagID)
	}

	names := make(map[uint]string, len(tagIDs))
	if len(tagIDs) > 0 {
		var tags []models.Tag
		if err := database.DB.Where("id IN ?", tagIDs).Find(&tags).Error; err != nil {
			return nil, err
		}
		for _, t := range tags {
			names[t.ID] = t.Name
		}
	}

	responses := make([]TaskTagResponse, 0, len(rows))
	for _, r := range rows {
		responses = append(responses, TaskTagResponse{TaskID: r.TaskID, TagID: r.TagID, Name: names[r.TagID]})
	}
	return responses, nil
}

// GetTaskDependencies godoc
// @Summary      List dependencies for a set of tasks
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        task_ids  query     string  true  "Comma-separated task IDs"
// @Success      200       {array}   TaskDependencyResponse
// @Failure      400       {object}  ErrorResponse
// @Router       /task-dependencies [get]
func GetTaskDependencies(c *gin.Context) {
	ids, ok := parseIDList(c.Query("task_ids"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task_ids"})
		return
	}

	var rows []models.TaskDependency
	if err := database.DB.Where("task_id IN ?", ids).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch dependencies"})
		return
	}

	responses := make([]TaskDependencyResponse, 0, len(rows))
	for _, r := range rows {
		responses = append(responses, TaskDependencyResponse{TaskID: r.TaskID, DependsOnID: r.DependsOnID})
	}

	c.JSON(http.StatusOK, responses)
}

// GetMilestones godoc
// @Summary      List milestones for a set of tasks
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        task_ids  query     string  true  "Comma-separated task IDs"
// @Success      200       {array}   MilestoneResponse
// @Failure      400       {object}  ErrorResponse
// @Router       /milestones [get]
func GetMilestones(c *gin.Context) {
	ids, ok := parseIDList(c.Query("task_ids"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task_ids"})
		return
	}

	var rows []models.Milestone
	if err := database.DB.Where("task_id IN ?", ids).Order("task_id, index").Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch milestones"})
		return
	}

	responses := make([]MilestoneResponse, 0, len(rows))
	for _, r := range rows {
		responses = append(responses, newMilestoneResponse(r))
	}

	c.JSON(http.StatusOK, responses)
}

// GetMilestoneAssignees godoc
// @Summary      List assignees for a set of milestones
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        milestone_ids  query     string  true  "Comma-separated milestone IDs"
// @Success      200            {array}   MilestoneAssigneeResponse
// @Failure      400            {object}  ErrorResponse
// @Router       /milestone-assignees [get]
func GetMilestoneAssignees(c *gin.Context) {
	ids, ok := parseIDList(c.Query("milestone_ids"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid milestone_ids"})
		return
	}

	var rows []models.MilestoneAssignee
	if err := database.DB.Where("milestone_id IN ?", ids).Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch milestone assignees"})
		return
	}

	responses := make([]MilestoneAssigneeResponse, 0, len(rows))
	for _, r := range rows {
		responses = append(responses, MilestoneAssigneeResponse{MilestoneID: r.MilestoneID, UserID: r.UserID, Completed: r.Completed})
	}

	c.JSON(http.StatusOK, responses)
}

// endregion

// GetTask godoc
// @Summary      Get a task with all related rows
// @Description  Returns the full bundle a chat task attachment renders from.
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Task ID"
// @Success      200  {object}  TaskBundleResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [get]
func GetTask(c *gin.Context) {
	taskID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return
	}

	var task models.Task
	if err := database.DB.First(&task, uint(taskID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	bundle, err := buildTaskBundle(task)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch related rows"})
		return
	}

	c.JSON(http.StatusOK, bundle)
}

func buildTaskBundle(task models.Task) (*TaskBundleResponse, error) {
	bundle := &TaskBundleResponse{
		Task:               newTaskResponse(task),
		Assignees:          []TaskAssigneeResponse{},
		Milestones:         []MilestoneResponse{},
		MilestoneAssignees: []MilestoneAssigneeResponse{},
		Tags:               []TaskTagResponse{},
		Dependencies:       []TaskDependencyResponse{},
	}

	var assignees []models.TaskAssignee
	if err := database.DB.Where("task_id = ?", task.ID).Find(&assignees).Error; err != nil {
		return nil, err
	}
	for _, a := range assignees {
		bundle.Assignees = append(bundle.Assignees, TaskAssigneeResponse{TaskID: a.TaskID, UserID: a.UserID, Completed: a.Completed})
	}

	var milestones []models.Milestone
	if err := database.DB.Where("task_id = ?", task.ID).Order("index").Find(&milestones).Error; err != nil {
		return nil, err
	}
	milestoneIDs := make([]uint, 0, len(milestones))
	for _, m := range milestones {
		bundle.Milestones = append(bundle.Milestones, newMilestoneResponse(m))
		milestoneIDs = append(milestoneIDs, m.ID)
	}

	if len(milestoneIDs) > 0 {
		var mas []models.MilestoneAssignee
		if err := database.DB.Where("milestone_id IN ?", milestoneIDs).Find(&mas).Error; err != nil {
			return nil, err
		}
		for _, ma := range mas {
			bundle.MilestoneAssignees = append(bundle.MilestoneAssignees, MilestoneAssigneeResponse{MilestoneID: ma.MilestoneID, UserID: ma.UserID, Completed: ma.Completed})
		}
	}

	tags, err := fetchTaskTags([]uint{task.ID})
	if err != nil {
		return nil, err
	}
	bundle.Tags = tags

	var deps []models.TaskDependency
	if err := database.DB.Where("task_id = ?", task.ID).Find(&deps).Error; err != nil {
		return nil, err
	}
	for _, d := range deps {
		bundle.Dependencies = append(bundle.Dependencies, TaskDependencyResponse{TaskID: d.TaskID, DependsOnID: d.DependsOnID})
	}

	return bundle, nil
}

// CreateTask godoc
// @Summary      Create a task with all related rows
// @Description  Inserts the task, its assignees, milestones, milestone assignees, tags and dependencies in one transaction.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body CreateTaskInput true "Task Info"
// @Success      201  {object}  TaskBundleResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /tasks [post]
func CreateTask(c *gin.Context) {
	viewerID, _ := c.Get("userID")

	var input CreateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(input.Milestones) > models.MaxMilestonesPerTask {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many milestones"})
		return
	}
	for _, m := range input.Milestones {
		if m.Index >= models.MaxMilestonesPerTask {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Milestone index out of range"})
			return
		}
	}

	task := models.Task{
		Title:       input.Title,
		Description: input.Description,
		Priority:    input.Priority,
		Deadline:    input.Deadline,
		CreatorID:   viewerID.(uint),
		Recurrence:  input.Recurrence,
	}

	// All related rows must land together; the composite insert is atomic
	// server-side so clients never observe a partial task.
	tx := database.DB.Begin()

	if err := tx.Create(&task).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	for _, userID := range input.AssigneeIDs {
		if err := tx.Create(&models.TaskAssignee{TaskID: task.ID, UserID: userID}).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create assignees"})
			return
		}
	}

	for _, m := range input.Milestones {
		milestone := models.Milestone{
			TaskID:      task.ID,
			Title:       m.Title,
			Description: m.Description,
			Deadline:    m.Deadline,
			Index:       m.Index,
		}
		if err := tx.Create(&milestone).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create milestones"})
			return
		}
		for _, userID := range m.AssigneeIDs {
			if err := tx.Create(&models.MilestoneAssignee{MilestoneID: milestone.ID, UserID: userID}).Error; err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create milestone assignees"})
				return
			}
		}
	}

	for _, name := range input.TagNames {
		var tag models.Tag
		if err := tx.Where("name = ?", name).FirstOrCreate(&tag, models.Tag{Name: name}).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tags"})
			return
		}
		if err := tx.Create(&models.TaskTag{TaskID: task.ID, TagID: tag.ID}).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tags"})
			return
		}
	}

	for _, dependsOn := range input.DependsOnIDs {
		if err := tx.Create(&models.TaskDependency{TaskID: task.ID, DependsOnID: dependsOn}).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create dependencies"})
			return
		}
	}

	tx.Commit()

	bundle, err := buildTaskBundle(task)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch created task"})
		return
	}

	audience := append([]uint{task.CreatorID}, input.AssigneeIDs...)
	broadcastChange("tasks", "INSERT", bundle.Task, nil, audience)
	for _, a := range bundle.Assignees {
		broadcastChange("task_assignees", "INSERT", a, nil, audience)
	}
	for _, m := range bundle.Milestones {
		broadcastChange("milestones", "INSERT", m, nil, audience)
	}
	for _, ma := range bundle.MilestoneAssignees {
		broadcastChange("milestone_assignees", "INSERT", ma, nil, audience)
	}

	c.JSON(http.StatusCreated, bundle)
}

// UpdateTask godoc
// @Summary      Update a task (creator only)
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int             true  "Task ID"
// @Param        input body      UpdateTaskInput true  "New Task Info"
// @Success      200   {object}  TaskResponse
// @Failure      403   {object}  ErrorResponse "Only the creator can update the task"
// @Failure      404   {object}  ErrorResponse "Task not found"
// @Router       /tasks/{id} [put]
func UpdateTask(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	taskID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return
	}

	var task models.Task
	if err := database.DB.First(&task, uint(taskID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	if task.CreatorID != viewerID.(uint) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the creator can update the task"})
		return
	}

	var input UpdateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task.Title = input.Title
	task.Description = input.Description
	task.Completed = input.Completed
	task.Priority = input.Priority
	task.Deadline = input.Deadline
	task.Recurrence = input.Recurrence

	if err := database.DB.Save(&task).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		return
	}

	response := newTaskResponse(task)
	broadcastChange("tasks", "UPDATE", response, nil, taskAudience(task.ID))

	c.JSON(http.StatusOK, response)
}

// DeleteTask godoc
// @Summary      Delete a task (creator only)
// @Description  Deletes the task and every related row in one transaction.
// @Tags         tasks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Task ID"
// @Success      200  {object}  map[string]string "{"message": "Task deleted"}"
// @Failure      403  {object}  ErrorResponse "Only the creator can delete the task"
// @Failure      404  {object}  ErrorResponse "Task not found"
// @Router       /tasks/{id} [delete]
func DeleteTask(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	taskID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return
	}

	var task models.Task
	if err := database.DB.First(&task, uint(taskID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	if task.CreatorID != viewerID.(uint) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the creator can delete the task"})
		return
	}

	// Snapshot the audience before the rows disappear.
	audience := taskAudience(task.ID)

	var milestoneIDs []uint
	database.DB.Model(&models.Milestone{}).Where("task_id = ?", task.ID).Pluck("id", &milestoneIDs)

	tx := database.DB.Begin()
	if len(milestoneIDs) > 0 {
		if err := tx.Where("milestone_id IN ?", milestoneIDs).Delete(&models.MilestoneAssignee{}).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
			return
		}
	}
	for _, model := range []any{&models.Milestone{}, &models.TaskAssignee{}, &models.TaskTag{}, &models.TaskDependency{}} {
		if err := tx.Where("task_id = ?", task.ID).Delete(model).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
			return
		}
	}
	if err := tx.Delete(&task).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}
	tx.Commit()

	// Clients cascade dependents locally off the single task DELETE.
	broadcastChange("tasks", "DELETE", nil, newTaskResponse(task), audience)

	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

// MarkTaskAssignee godoc
// @Summary      Toggle an assignee's completion on a task
// @Description  Assignees may only toggle their own completion flag.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      int             true  "Task ID"
// @Param        userID  path      int             true  "Assignee User ID"
// @Param        input   body      CompletionInput true  "Completion flag"
// @Success      200     {object}  TaskAssigneeResponse
// @Failure      403     {object}  ErrorResponse "Assignees may only mark themselves"
// @Failure      404     {object}  ErrorResponse "Assignee not found"
// @Router       /tasks/{id}/assignees/{userID} [put]
func MarkTaskAssignee(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	taskID, err1 := strconv.ParseUint(c.Param("id"), 10, 32)
	userID, err2 := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	if viewerID.(uint) != uint(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Assignees may only mark themselves"})
		return
	}

	var input CompletionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var assignee models.TaskAssignee
	if err := database.DB.Where("task_id = ? AND user_id = ?", taskID, userID).First(&assignee).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Assignee not found"})
		return
	}

	if err := database.DB.Model(&assignee).Update("completed", *input.Completed).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update completion"})
		return
	}

	response := TaskAssigneeResponse{TaskID: assignee.TaskID, UserID: assignee.UserID, Completed: *input.Completed}
	broadcastChange("task_assignees", "UPDATE", response, nil, taskAudience(assignee.TaskID))

	c.JSON(http.StatusOK, response)
}

// MarkMilestoneAssignee godoc
// @Summary      Toggle an assignee's completion on a milestone
// @Description  Assignees may only toggle their own completion flag.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      int             true  "Milestone ID"
// @Param        userID  path      int             true  "Assignee User ID"
// @Param        input   body      CompletionInput true  "Completion flag"
// @Success      200     {object}  MilestoneAssigneeResponse
// @Failure      403     {object}  ErrorResponse "Assignees may only mark themselves"
// @Failure      404     {object}  ErrorResponse "Assignee not found"
// @Router       /milestones/{id}/assignees/{userID} [put]
func MarkMilestoneAssignee(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	milestoneID, err1 := strconv.ParseUint(c.Param("id"), 10, 32)
	userID, err2 := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	if viewerID.(uint) != uint(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Assignees may only mark themselves"})
		return
	}

	var input CompletionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var assignee models.MilestoneAssignee
	if err := database.DB.Where("milestone_id = ? AND user_id = ?", milestoneID, userID).First(&assignee).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Assignee not found"})
		return
	}

	if err := database.DB.Model(&assignee).Update("completed", *input.Completed).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update completion"})
		return
	}

	var milestone models.Milestone
	audience := []uint{}
	if err := database.DB.First(&milestone, assignee.MilestoneID).Error; err == nil {
		audience = taskAudience(milestone.TaskID)
	}

	response := MilestoneAssigneeResponse{MilestoneID: assignee.MilestoneID, UserID: assignee.UserID, Completed: *input.Completed}
	broadcastChange("milestone_assignees", "UPDATE", response, nil, audience)

	c.JSON(http.StatusOK, response)
}

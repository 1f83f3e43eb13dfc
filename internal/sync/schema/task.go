package schema

import "time"

// MaxMilestonesPerTask bounds milestone counts and indexes client-side,
// matching the server's limit.
const MaxMilestonesPerTask = 10

// region --- insert-input flavor ---

// MilestoneInput is one milestone of a composite task creation form.
type MilestoneInput struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Index       int        `json:"index" validate:"gte=0,lt=10"`
	AssigneeIDs []uint     `json:"assignee_ids"`
}

// TaskInput is what the task creation form produces. Milestone assignees
// must be a subset of the task's assignees; the server does not enforce it,
// so it is validated here before anything goes on the wire.
type TaskInput struct {
	Title        string           `json:"title" validate:"required"`
	Description  string           `json:"description"`
	Priority     *string          `json:"priority" validate:"omitempty,oneof=low medium high"`
	Deadline     *time.Time       `json:"deadline"`
	Recurrence   *string          `json:"recurrence"`
	AssigneeIDs  []uint           `json:"assignee_ids"`
	Milestones   []MilestoneInput `json:"milestones" validate:"max=10,dive"`
	TagNames     []string         `json:"tag_names"`
	DependsOnIDs []uint           `json:"depends_on_ids"`
}

// CheckMilestoneAssignees reports whether every milestone assignee is also a
// task assignee.
func (in TaskInput) CheckMilestoneAssignees() bool {
	assigned := make(map[uint]bool, len(in.AssigneeIDs))
	for _, id := range in.AssigneeIDs {
		assigned[id] = true
	}
	for _, m := range in.Milestones {
		for _, id := range m.AssigneeIDs {
			if !assigned[id] {
				return false
			}
		}
	}
	return true
}

// endregion

// region --- insert/update wire flavor ---

// MilestoneInsert is the wire shape of a milestone inside a composite create.
type MilestoneInsert struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	Deadline    *string `json:"deadline"`
	Index       int     `json:"index" validate:"gte=0,lt=10"`
	AssigneeIDs []uint  `json:"assignee_ids"`
}

// TaskInsert is the wire shape of the composite transactional create.
type TaskInsert struct {
	Title        string            `json:"title" validate:"required"`
	Description  string            `json:"description"`
	Priority     *string           `json:"priority" validate:"omitempty,oneof=low medium high"`
	Deadline     *string           `json:"deadline"`
	Recurrence   *string           `json:"recurrence"`
	AssigneeIDs  []uint            `json:"assignee_ids"`
	Milestones   []MilestoneInsert `json:"milestones" validate:"max=10,dive"`
	TagNames     []string          `json:"tag_names"`
	DependsOnIDs []uint            `json:"depends_on_ids"`
}

// ToWire converts form input into the wire shape.
func (in TaskInput) ToWire() TaskInsert {
	out := TaskInsert{
		Title:        in.Title,
		Description:  in.Description,
		Priority:     in.Priority,
		Deadline:     DeadlineToWire(in.Deadline),
		Recurrence:   in.Recurrence,
		AssigneeIDs:  in.AssigneeIDs,
		TagNames:     in.TagNames,
		DependsOnIDs: in.DependsOnIDs,
	}
	for _, m := range in.Milestones {
		out.Milestones = append(out.Milestones, MilestoneInsert{
			Title:       m.Title,
			Description: m.Description,
			Deadline:    DeadlineToWire(m.Deadline),
			Index:       m.Index,
			AssigneeIDs: m.AssigneeIDs,
		})
	}
	return out
}

// TaskUpdate is the wire shape of a core-field task update.
type TaskUpdate struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	Completed   bool    `json:"completed"`
	Priority    *string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Deadline    *string `json:"deadline"`
	Recurrence  *string `json:"recurrence"`
}

// Completion is the wire shape of an assignee completion toggle.
type Completion struct {
	Completed bool `json:"completed"`
}

// endregion

// region --- fetch flavor ---

// Task is the fetched row shape of a task.
type Task struct {
	ID          uint       `json:"id" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	Deadline    *time.Time `json:"deadline"`
	CreatorID   uint       `json:"creator_id" validate:"required"`
	Recurrence  *string    `json:"recurrence"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TaskAssignee is the fetched row shape of a task assignee.
type TaskAssignee struct {
	TaskID    uint `json:"task_id" validate:"required"`
	UserID    uint `json:"user_id" validate:"required"`
	Completed bool `json:"completed"`
}

// Milestone is the fetched row shape of a milestone.
type Milestone struct {
	ID          uint       `json:"id" validate:"required"`
	TaskID      uint       `json:"task_id" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Completed   bool       `json:"completed"`
	Index       int        `json:"index" validate:"gte=0,lt=10"`
}

// MilestoneAssignee is the fetched row shape of a milestone assignee.
type MilestoneAssignee struct {
	MilestoneID uint `json:"milestone_id" validate:"required"`
	UserID      uint `json:"user_id" validate:"required"`
	Completed   bool `json:"completed"`
}

// TaskTag is the fetched row shape of a task's tag.
type TaskTag struct {
	TaskID uint   `json:"task_id" validate:"required"`
	TagID  uint   `json:"tag_id" validate:"required"`
	Name   string `json:"name"`
}

// TaskDependency is the fetched row shape of a dependency edge.
type TaskDependency struct {
	TaskID      uint `json:"task_id" validate:"required"`
	DependsOnID uint `json:"depends_on_id" validate:"required"`
}

// TaskRelations bundles every related row for a set of tasks, as returned by
// the parallel fan-out fetch.
type TaskRelations struct {
	Assignees    []TaskAssignee
	Tags         []TaskTag
	Dependencies []TaskDependency
	Milestones   []Milestone
}

// TaskAttachment is a task with all related rows, the shape a chat task
// attachment renders from.
type TaskAttachment struct {
	Task               Task                `json:"task"`
	Assignees          []TaskAssignee      `json:"assignees"`
	Milestones         []Milestone         `json:"milestones"`
	MilestoneAssignees []MilestoneAssignee `json:"milestone_assignees"`
	Tags               []TaskTag           `json:"tags"`
	Dependencies       []TaskDependency    `json:"dependencies"`
}

// endregion

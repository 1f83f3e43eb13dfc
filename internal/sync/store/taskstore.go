package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"taskmate/backend/internal/chat"
	"taskmate/backend/internal/hub"
	"taskmate/backend/internal/sync/backend"
	"taskmate/backend/internal/sync/realtime"
	"taskmate/backend/internal/sync/retry"
	"taskmate/backend/internal/sync/schema"

	"go.uber.org/zap"
)

// ErrMilestoneAssignees is returned when a milestone names an assignee who is
// not assigned to the task itself.
var ErrMilestoneAssignees = errors.New("milestone assignees must be task assignees")

// ErrNotCached is returned when a completion toggle targets a row the store
// has never seen.
var ErrNotCached = errors.New("row is not cached")

// TaskBackend is the slice of the access layer the task store needs.
type TaskBackend interface {
	Tasks(ctx context.Context) ([]schema.Task, error)
	Related(ctx context.Context, taskIDs []uint) (*schema.TaskRelations, error)
	MilestoneAssignees(ctx context.Context, milestoneIDs []uint) ([]schema.MilestoneAssignee, error)
	TaskBundle(ctx context.Context, taskID uint) (*schema.TaskAttachment, error)
	CreateTaskWithRelated(ctx context.Context, input schema.TaskInsert) (*schema.TaskAttachment, error)
	UpdateTask(ctx context.Context, taskID uint, input schema.TaskUpdate) (*schema.Task, error)
	DeleteTask(ctx context.Context, taskID uint) error
	SetTaskCompletion(ctx context.Context, taskID, userID uint, completed bool) (*schema.TaskAssignee, error)
	SetMilestoneCompletion(ctx context.Context, milestoneID, userID uint, completed bool) (*schema.MilestoneAssignee, error)
}

// TaskStore caches the current user's tasks and every related row, normalized
// by id so change events and completion toggles patch single entries. A
// relation index per task keeps delete cascades proportional to the task's
// own rows.
type TaskStore struct {
	mu      sync.RWMutex
	backend TaskBackend
	user    func() uint
	toasts  *Toasts
	log     *zap.Logger

	// Retry governs fetches and creates. Tests may replace its Sleep and Rand.
	Retry retry.Policy

	tasks              map[uint]schema.Task
	assignees          map[uint][]schema.TaskAssignee      // by task id
	tags               map[uint][]schema.TaskTag           // by task id
	dependencies       map[uint][]schema.TaskDependency    // by task id
	milestones         map[uint]schema.Milestone           // by milestone id
	taskMilestones     map[uint][]uint                     // task id -> milestone ids
	milestoneAssignees map[uint][]schema.MilestoneAssignee // by milestone id

	loading bool
	err     error
}

// NewTaskStore creates an empty task cache. currentUser supplies the
// signed-in user id.
func NewTaskStore(b TaskBackend, currentUser func() uint, toasts *Toasts, log *zap.Logger) *TaskStore {
	if log == nil {
		log = zap.NewNop()
	}
	if toasts == nil {
		toasts = NewToasts()
	}
	s := &TaskStore{
		backend: b,
		user:    currentUser,
		toasts:  toasts,
		log:     log,
		Retry:   retry.Policy{Retryable: backend.IsRetryable, Log: log},
	}
	s.resetLocked()
	return s
}

// FetchAll hydrates every task the current user can see, the related rows for
// all of them, and the milestone assignee rows. The whole sequence is retried
// with backoff and jitter; exhausted retries set the store error and leave
// previously cached data untouched.
func (s *TaskStore) FetchAll(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	var tasks []schema.Task
	var related *schema.TaskRelations
	var milestoneAssignees []schema.MilestoneAssignee

	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		if tasks, err = s.backend.Tasks(ctx); err != nil {
			return err
		}
		taskIDs := make([]uint, 0, len(tasks))
		for _, t := range tasks {
			taskIDs = append(taskIDs, t.ID)
		}
		if related, err = s.backend.Related(ctx, taskIDs); err != nil {
			return err
		}
		milestoneIDs := make([]uint, 0, len(related.Milestones))
		for _, m := range related.Milestones {
			milestoneIDs = append(milestoneIDs, m.ID)
		}
		milestoneAssignees, err = s.backend.MilestoneAssignees(ctx, milestoneIDs)
		return err
	})
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.resetLocked()
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	for _, a := range related.Assignees {
		s.assignees[a.TaskID] = append(s.assignees[a.TaskID], a)
	}
	for _, t := range related.Tags {
		s.tags[t.TaskID] = append(s.tags[t.TaskID], t)
	}
	for _, d := range related.Dependencies {
		s.dependencies[d.TaskID] = append(s.dependencies[d.TaskID], d)
	}
	for _, m := range related.Milestones {
		s.milestones[m.ID] = m
		s.taskMilestones[m.TaskID] = append(s.taskMilestones[m.TaskID], m.ID)
	}
	for _, a := range milestoneAssignees {
		s.milestoneAssignees[a.MilestoneID] = append(s.milestoneAssignees[a.MilestoneID], a)
	}
	s.mu.Unlock()
	return nil
}

// TaskAttachment returns the full bundle for one task, the shape a chat task
// attachment renders from. A cache hit costs no network; refresh forces a
// fetch and merges the result into the cache.
func (s *TaskStore) TaskAttachment(ctx context.Context, taskID uint, refresh bool) (*schema.TaskAttachment, error) {
	if !refresh {
		if bundle, ok := s.bundleFromCache(taskID); ok {
			return bundle, nil
		}
	}

	var bundle *schema.TaskAttachment
	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		bundle, err = s.backend.TaskBundle(ctx, taskID)
		return err
	})
	if err != nil {
		s.setErr(err)
		return nil, err
	}

	s.mu.Lock()
	s.mergeBundleLocked(bundle)
	s.mu.Unlock()
	return bundle, nil
}

// CreateTask validates the form input, runs the transactional server insert
// under retry, and announces the task in the given channel as a task
// attachment message. The announcement is best-effort: a task that exists but
// was never announced beats no task at all, so a failed message does not roll
// anything back.
func (s *TaskStore) CreateTask(ctx context.Context, input schema.TaskInput, channel chat.Channel) (*schema.TaskAttachment, error) {
	if err := schema.Validate(input); err != nil {
		s.setErr(err)
		return nil, err
	}
	if !input.CheckMilestoneAssignees() {
		s.setErr(ErrMilestoneAssignees)
		return nil, ErrMilestoneAssignees
	}

	wire := input.ToWire()
	var bundle *schema.TaskAttachment
	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		bundle, err = s.backend.CreateTaskWithRelated(ctx, wire)
		return err
	})
	if err != nil {
		s.setErr(err)
		return nil, err
	}

	s.mu.Lock()
	s.mergeBundleLocked(bundle)
	s.err = nil
	s.mu.Unlock()

	if channel != nil {
		msg := chat.Message{
			CustomType: "task",
			Content:    bundle.Task.Title,
			Attachments: []chat.Attachment{
				{Type: "task", ID: bundle.Task.ID},
			},
		}
		if err := s.Retry.Do(ctx, func(ctx context.Context) error {
			return channel.SendMessage(ctx, msg)
		}); err != nil {
			s.log.Warn("task created but announcement failed",
				zap.Uint("task_id", bundle.Task.ID), zap.Error(err))
			s.toasts.Push("Task created, but posting it to the chat failed")
			return bundle, nil
		}
	}

	s.toasts.Push(fmt.Sprintf("Task %q created", bundle.Task.Title))
	return bundle, nil
}

// Update rewrites the core fields of a task the current user created.
func (s *TaskStore) Update(ctx context.Context, taskID uint, input schema.TaskUpdate) error {
	task, err := s.backend.UpdateTask(ctx, taskID, input)
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.tasks[task.ID] = *task
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Delete removes a task and cascades over its related rows locally.
func (s *TaskStore) Delete(ctx context.Context, taskID uint) error {
	if err := s.backend.DeleteTask(ctx, taskID); err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.evictTaskLocked(taskID)
	s.err = nil
	s.mu.Unlock()
	return nil
}

// MarkTask toggles the current user's completion flag on a task and patches
// exactly that assignee row.
func (s *TaskStore) MarkTask(ctx context.Context, taskID uint, completed bool) error {
	me := s.user()
	row, err := s.backend.SetTaskCompletion(ctx, taskID, me, completed)
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.patchTaskAssigneeLocked(*row) {
		return ErrNotCached
	}
	s.err = nil
	return nil
}

// MarkMilestone toggles the current user's completion flag on a milestone and
// patches exactly that assignee row.
func (s *TaskStore) MarkMilestone(ctx context.Context, milestoneID uint, completed bool) error {
	me := s.user()
	row, err := s.backend.SetMilestoneCompletion(ctx, milestoneID, me, completed)
	if err != nil {
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.patchMilestoneAssigneeLocked(*row) {
		return ErrNotCached
	}
	s.err = nil
	return nil
}

// Tasks returns the cached tasks ordered by id.
func (s *TaskStore) Tasks() []schema.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Task returns one cached task. The second value reports a cache hit.
func (s *TaskStore) Task(taskID uint) (schema.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	return t, ok
}

// Assignees returns the cached assignee rows of one task.
func (s *TaskStore) Assignees(taskID uint) []schema.TaskAssignee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.TaskAssignee(nil), s.assignees[taskID]...)
}

// Milestones returns the cached milestones of one task ordered by index.
func (s *TaskStore) Milestones(taskID uint) []schema.Milestone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.Milestone, 0, len(s.taskMilestones[taskID]))
	for _, id := range s.taskMilestones[taskID] {
		if m, ok := s.milestones[id]; ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// MilestoneAssignees returns the cached assignee rows of one milestone.
func (s *TaskStore) MilestoneAssignees(milestoneID uint) []schema.MilestoneAssignee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.MilestoneAssignee(nil), s.milestoneAssignees[milestoneID]...)
}

// Tags returns the cached tag rows of one task.
func (s *TaskStore) Tags(taskID uint) []schema.TaskTag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.TaskTag(nil), s.tags[taskID]...)
}

// Dependencies returns the cached dependency edges of one task.
func (s *TaskStore) Dependencies(taskID uint) []schema.TaskDependency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.TaskDependency(nil), s.dependencies[taskID]...)
}

// HandleChange patches the cache from a change event on any task table.
// Inserts that assign the current user to an unknown task materialize the
// full bundle; updates for uncached rows are dropped; a task delete cascades
// over the task's related rows via the relation index.
func (s *TaskStore) HandleChange(ev hub.ChangeEvent) {
	switch ev.Table {
	case "tasks":
		s.handleTaskChange(ev)
	case "task_assignees":
		s.handleTaskAssigneeChange(ev)
	case "milestones":
		s.handleMilestoneChange(ev)
	case "milestone_assignees":
		s.handleMilestoneAssigneeChange(ev)
	case "task_tags":
		s.handleTagChange(ev)
	case "task_dependencies":
		s.handleDependencyChange(ev)
	}
}

// SubscribeChanges registers this store's tables on a subscriber.
func (s *TaskStore) SubscribeChanges(sub *realtime.Subscriber) {
	for _, table := range []string{
		"tasks", "task_assignees", "milestones",
		"milestone_assignees", "task_tags", "task_dependencies",
	} {
		sub.On(table, s.HandleChange)
	}
}

func (s *TaskStore) handleTaskChange(ev hub.ChangeEvent) {
	switch ev.Type {
	case hub.ChangeInsert, hub.ChangeUpdate:
		var task schema.Task
		if err := json.Unmarshal(ev.New, &task); err != nil {
			s.log.Warn("dropping malformed task event", zap.Error(err))
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if ev.Type == hub.ChangeUpdate {
			if _, ok := s.tasks[task.ID]; !ok {
				return
			}
		}
		s.tasks[task.ID] = task
	case hub.ChangeDelete:
		var old schema.Task
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return
		}
		s.mu.Lock()
		s.evictTaskLocked(old.ID)
		s.mu.Unlock()
	}
}

func (s *TaskStore) handleTaskAssigneeChange(ev hub.ChangeEvent) {
	switch ev.Type {
	case hub.ChangeInsert:
		var row schema.TaskAssignee
		if err := json.Unmarshal(ev.New, &row); err != nil {
			s.log.Warn("dropping malformed task assignee event", zap.Error(err))
			return
		}

		s.mu.Lock()
		_, known := s.tasks[row.TaskID]
		if known {
			s.assignees[row.TaskID] = append(s.assignees[row.TaskID], row)
		}
		s.mu.Unlock()

		// A row naming the current user on an unknown task means someone
		// assigned them to a task created elsewhere. The event carries one
		// row, not the task, so materialize the bundle.
		if !known && row.UserID == s.user() {
			bundle, err := s.TaskAttachment(context.Background(), row.TaskID, true)
			if err != nil {
				s.log.Warn("materializing assigned task failed",
					zap.Uint("task_id", row.TaskID), zap.Error(err))
				return
			}
			s.toasts.Push(fmt.Sprintf("You were assigned to %q", bundle.Task.Title))
		}
	case hub.ChangeUpdate:
		var row schema.TaskAssignee
		if err := json.Unmarshal(ev.New, &row); err != nil {
			return
		}
		s.mu.Lock()
		s.patchTaskAssigneeLocked(row)
		s.mu.Unlock()
	case hub.ChangeDelete:
		var old schema.TaskAssignee
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return
		}
		s.mu.Lock()
		rows := s.assignees[old.TaskID]
		for i, r := range rows {
			if r.UserID == old.UserID {
				s.assignees[old.TaskID] = append(rows[:i], rows[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}

func (s *TaskStore) handleMilestoneChange(ev hub.ChangeEvent) {
	switch ev.Type {
	case hub.ChangeInsert, hub.ChangeUpdate:
		var m schema.Milestone
		if err := json.Unmarshal(ev.New, &m); err != nil {
			s.log.Warn("dropping malformed milestone event", zap.Error(err))
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.tasks[m.TaskID]; !ok {
			return
		}
		if _, cached := s.milestones[m.ID]; !cached {
			s.taskMilestones[m.TaskID] = append(s.taskMilestones[m.TaskID], m.ID)
		}
		s.milestones[m.ID] = m
	case hub.ChangeDelete:
		var old schema.Milestone
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return
		}
		s.mu.Lock()
		s.evictMilestoneLocked(old.ID, old.TaskID)
		s.mu.Unlock()
	}
}

func (s *TaskStore) handleMilestoneAssigneeChange(ev hub.ChangeEvent) {
	switch ev.Type {
	case hub.ChangeInsert:
		var row schema.MilestoneAssignee
		if err := json.Unmarshal(ev.New, &row); err != nil {
			return
		}
		s.mu.Lock()
		if _, ok := s.milestones[row.MilestoneID]; ok {
			s.milestoneAssignees[row.MilestoneID] = append(s.milestoneAssignees[row.MilestoneID], row)
		}
		s.mu.Unlock()
	case hub.ChangeUpdate:
		var row schema.MilestoneAssignee
		if err := json.Unmarshal(ev.New, &row); err != nil {
			return
		}
		s.mu.Lock()
		s.patchMilestoneAssigneeLocked(row)
		s.mu.Unlock()
	case hub.ChangeDelete:
		var old schema.MilestoneAssignee
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return
		}
		s.mu.Lock()
		rows := s.milestoneAssignees[old.MilestoneID]
		for i, r := range rows {
			if r.UserID == old.UserID {
				s.milestoneAssignees[old.MilestoneID] = append(rows[:i], rows[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}

func (s *TaskStore) handleTagChange(ev hub.ChangeEvent) {
	switch ev.Type {
	case hub.ChangeInsert:
		var row schema.TaskTag
		if err := json.Unmarshal(ev.New, &row); err != nil {
			return
		}
		s.mu.Lock()
		if _, ok := s.tasks[row.TaskID]; ok {
			s.tags[row.TaskID] = append(s.tags[row.TaskID], row)
		}
		s.mu.Unlock()
	case hub.ChangeDelete:
		var old schema.TaskTag
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return
		}
		s.mu.Lock()
		rows := s.tags[old.TaskID]
		for i, r := range rows {
			if r.TagID == old.TagID {
				s.tags[old.TaskID] = append(rows[:i], rows[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}

func (s *TaskStore) handleDependencyChange(ev hub.ChangeEvent) {
	switch ev.Type {
	case hub.ChangeInsert:
		var row schema.TaskDependency
		if err := json.Unmarshal(ev.New, &row); err != nil {
			return
		}
		s.mu.Lock()
		if _, ok := s.tasks[row.TaskID]; ok {
			s.dependencies[row.TaskID] = append(s.dependencies[row.TaskID], row)
		}
		s.mu.Unlock()
	case hub.ChangeDelete:
		var old schema.TaskDependency
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return
		}
		s.mu.Lock()
		rows := s.dependencies[old.TaskID]
		for i, r := range rows {
			if r.DependsOnID == old.DependsOnID {
				s.dependencies[old.TaskID] = append(rows[:i], rows[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}

// Loading reports whether a hydration is in flight.
func (s *TaskStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last failure.
func (s *TaskStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Reset wipes the cache, e.g. on sign-out.
func (s *TaskStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *TaskStore) resetLocked() {
	s.tasks = make(map[uint]schema.Task)
	s.assignees = make(map[uint][]schema.TaskAssignee)
	s.tags = make(map[uint][]schema.TaskTag)
	s.dependencies = make(map[uint][]schema.TaskDependency)
	s.milestones = make(map[uint]schema.Milestone)
	s.taskMilestones = make(map[uint][]uint)
	s.milestoneAssignees = make(map[uint][]schema.MilestoneAssignee)
	s.loading = false
	s.err = nil
}

func (s *TaskStore) bundleFromCache(taskID uint) (*schema.TaskAttachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	bundle := &schema.TaskAttachment{
		Task:         task,
		Assignees:    append([]schema.TaskAssignee(nil), s.assignees[taskID]...),
		Tags:         append([]schema.TaskTag(nil), s.tags[taskID]...),
		Dependencies: append([]schema.TaskDependency(nil), s.dependencies[taskID]...),
	}
	for _, id := range s.taskMilestones[taskID] {
		m, ok := s.milestones[id]
		if !ok {
			continue
		}
		bundle.Milestones = append(bundle.Milestones, m)
		bundle.MilestoneAssignees = append(bundle.MilestoneAssignees, s.milestoneAssignees[id]...)
	}
	sort.Slice(bundle.Milestones, func(i, j int) bool {
		return bundle.Milestones[i].Index < bundle.Milestones[j].Index
	})
	return bundle, true
}

// mergeBundleLocked replaces the task's slice of the cache with the bundle's
// rows.
func (s *TaskStore) mergeBundleLocked(bundle *schema.TaskAttachment) {
	taskID := bundle.Task.ID
	s.evictTaskLocked(taskID)

	s.tasks[taskID] = bundle.Task
	s.assignees[taskID] = append([]schema.TaskAssignee(nil), bundle.Assignees...)
	s.tags[taskID] = append([]schema.TaskTag(nil), bundle.Tags...)
	s.dependencies[taskID] = append([]schema.TaskDependency(nil), bundle.Dependencies...)
	for _, m := range bundle.Milestones {
		s.milestones[m.ID] = m
		s.taskMilestones[taskID] = append(s.taskMilestones[taskID], m.ID)
	}
	for _, a := range bundle.MilestoneAssignees {
		s.milestoneAssignees[a.MilestoneID] = append(s.milestoneAssignees[a.MilestoneID], a)
	}
}

func (s *TaskStore) evictTaskLocked(taskID uint) {
	delete(s.tasks, taskID)
	delete(s.assignees, taskID)
	delete(s.tags, taskID)
	delete(s.dependencies, taskID)
	for _, milestoneID := range s.taskMilestones[taskID] {
		delete(s.milestones, milestoneID)
		delete(s.milestoneAssignees, milestoneID)
	}
	delete(s.taskMilestones, taskID)
}

func (s *TaskStore) evictMilestoneLocked(milestoneID, taskID uint) {
	delete(s.milestones, milestoneID)
	delete(s.milestoneAssignees, milestoneID)
	ids := s.taskMilestones[taskID]
	for i, id := range ids {
		if id == milestoneID {
			s.taskMilestones[taskID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

func (s *TaskStore) patchTaskAssigneeLocked(row schema.TaskAssignee) bool {
	rows := s.assignees[row.TaskID]
	for i, r := range rows {
		if r.UserID == row.UserID {
			rows[i] = row
			return true
		}
	}
	return false
}

func (s *TaskStore) patchMilestoneAssigneeLocked(row schema.MilestoneAssignee) bool {
	rows := s.milestoneAssignees[row.MilestoneID]
	for i, r := range rows {
		if r.UserID == row.UserID {
			rows[i] = row
			return true
		}
	}
	return false
}

func (s *TaskStore) setLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

func (s *TaskStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

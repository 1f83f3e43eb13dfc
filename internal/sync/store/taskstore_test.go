package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"taskmate/backend/internal/chat"
	"taskmate/backend/internal/hub"
	"taskmate/backend/internal/sync/backend"
	"taskmate/backend/internal/sync/retry"
	"taskmate/backend/internal/sync/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		Attempts:  5,
		Retryable: backend.IsRetryable,
		Sleep:     func(context.Context, time.Duration) error { return nil },
		Rand:      func() float64 { return 0 },
	}
}

type fakeTaskBackend struct {
	mu    sync.Mutex
	calls map[string]int

	tasks              []schema.Task
	related            schema.TaskRelations
	milestoneAssignees []schema.MilestoneAssignee
	bundles            map[uint]schema.TaskAttachment

	failTasksTimes int
	failTasksWith  error
	createErr      error
	onTasks        func()
}

func newFakeTaskBackend() *fakeTaskBackend {
	return &fakeTaskBackend{
		calls:   make(map[string]int),
		bundles: make(map[uint]schema.TaskAttachment),
	}
}

func (f *fakeTaskBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeTaskBackend) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeTaskBackend) Tasks(context.Context) ([]schema.Task, error) {
	f.record("Tasks")
	if f.onTasks != nil {
		f.onTasks()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTasksTimes > 0 {
		f.failTasksTimes--
		return nil, f.failTasksWith
	}
	return f.tasks, nil
}

func (f *fakeTaskBackend) Related(context.Context, []uint) (*schema.TaskRelations, error) {
	f.record("Related")
	related := f.related
	return &related, nil
}

func (f *fakeTaskBackend) MilestoneAssignees(context.Context, []uint) ([]schema.MilestoneAssignee, error) {
	f.record("MilestoneAssignees")
	return f.milestoneAssignees, nil
}

func (f *fakeTaskBackend) TaskBundle(_ context.Context, taskID uint) (*schema.TaskAttachment, error) {
	f.record("TaskBundle")
	bundle, ok := f.bundles[taskID]
	if !ok {
		return nil, &backend.Error{Kind: backend.KindPermanent, Status: 404, Message: "task not found"}
	}
	return &bundle, nil
}

func (f *fakeTaskBackend) CreateTaskWithRelated(_ context.Context, input schema.TaskInsert) (*schema.TaskAttachment, error) {
	f.record("CreateTask")
	if f.createErr != nil {
		return nil, f.createErr
	}
	bundle := schema.TaskAttachment{
		Task: schema.Task{ID: 42, Title: input.Title, CreatorID: 1},
	}
	for _, id := range input.AssigneeIDs {
		bundle.Assignees = append(bundle.Assignees, schema.TaskAssignee{TaskID: 42, UserID: id})
	}
	for i, m := range input.Milestones {
		milestone := schema.Milestone{ID: uint(100 + i), TaskID: 42, Title: m.Title, Index: m.Index}
		bundle.Milestones = append(bundle.Milestones, milestone)
		for _, id := range m.AssigneeIDs {
			bundle.MilestoneAssignees = append(bundle.MilestoneAssignees,
				schema.MilestoneAssignee{MilestoneID: milestone.ID, UserID: id})
		}
	}
	return &bundle, nil
}

func (f *fakeTaskBackend) UpdateTask(_ context.Context, taskID uint, input schema.TaskUpdate) (*schema.Task, error) {
	f.record("UpdateTask")
	return &schema.Task{ID: taskID, Title: input.Title, Completed: input.Completed, CreatorID: 1}, nil
}

func (f *fakeTaskBackend) DeleteTask(context.Context, uint) error {
	f.record("DeleteTask")
	return nil
}

func (f *fakeTaskBackend) SetTaskCompletion(_ context.Context, taskID, userID uint, completed bool) (*schema.TaskAssignee, error) {
	f.record("SetTaskCompletion")
	return &schema.TaskAssignee{TaskID: taskID, UserID: userID, Completed: completed}, nil
}

func (f *fakeTaskBackend) SetMilestoneCompletion(_ context.Context, milestoneID, userID uint, completed bool) (*schema.MilestoneAssignee, error) {
	f.record("SetMilestoneCompletion")
	return &schema.MilestoneAssignee{MilestoneID: milestoneID, UserID: userID, Completed: completed}, nil
}

type fakeChannel struct {
	id       string
	messages []chat.Message
	failWith error
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) SendMessage(_ context.Context, msg chat.Message) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.messages = append(c.messages, msg)
	return nil
}

func me() uint { return 1 }

func seededBackend() *fakeTaskBackend {
	f := newFakeTaskBackend()
	f.tasks = []schema.Task{
		{ID: 10, Title: "Groceries", CreatorID: 1},
		{ID: 20, Title: "Taxes", CreatorID: 2},
	}
	f.related = schema.TaskRelations{
		Assignees: []schema.TaskAssignee{
			{TaskID: 10, UserID: 1},
			{TaskID: 20, UserID: 1},
			{TaskID: 20, UserID: 2},
		},
		Tags:         []schema.TaskTag{{TaskID: 10, TagID: 5, Name: "home"}},
		Dependencies: []schema.TaskDependency{{TaskID: 20, DependsOnID: 10}},
		Milestones: []schema.Milestone{
			{ID: 100, TaskID: 20, Title: "Collect receipts", Index: 0},
			{ID: 101, TaskID: 20, Title: "File", Index: 1},
		},
	}
	f.milestoneAssignees = []schema.MilestoneAssignee{
		{MilestoneID: 100, UserID: 1},
		{MilestoneID: 101, UserID: 2},
	}
	return f
}

func newTestTaskStore(f *fakeTaskBackend) *TaskStore {
	s := NewTaskStore(f, me, NewToasts(), nil)
	s.Retry = fastPolicy()
	return s
}

func TestTaskStoreFetchAllHydrates(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)

	require.NoError(t, s.FetchAll(context.Background()))

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "Groceries", tasks[0].Title)
	assert.Len(t, s.Assignees(20), 2)
	assert.Len(t, s.Tags(10), 1)
	assert.Len(t, s.Dependencies(20), 1)

	milestones := s.Milestones(20)
	require.Len(t, milestones, 2)
	assert.Equal(t, "Collect receipts", milestones[0].Title)
	assert.Len(t, s.MilestoneAssignees(100), 1)
	assert.NoError(t, s.Err())
}

func TestTaskStoreFetchAllRetriesTransientFailures(t *testing.T) {
	f := seededBackend()
	f.failTasksTimes = 2
	f.failTasksWith = &backend.Error{Kind: backend.KindTransient, Status: 503}
	s := newTestTaskStore(f)

	require.NoError(t, s.FetchAll(context.Background()))
	assert.Equal(t, 3, f.count("Tasks"))
	assert.Len(t, s.Tasks(), 2)
}

func TestTaskStoreFetchAllKeepsCacheOnExhaustion(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	f.failTasksTimes = 100
	f.failTasksWith = &backend.Error{Kind: backend.KindTransient, Status: 503}

	err := s.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 5 attempt(s)")
	assert.Len(t, s.Tasks(), 2, "stale data beats no data")
	assert.Error(t, s.Err())
}

func TestTaskStoreFetchAllPermanentErrorShortCircuits(t *testing.T) {
	f := seededBackend()
	f.failTasksTimes = 100
	f.failTasksWith = &backend.Error{Kind: backend.KindPermanent, Status: 403}
	s := newTestTaskStore(f)

	require.Error(t, s.FetchAll(context.Background()))
	assert.Equal(t, 1, f.count("Tasks"))
}

func TestTaskAttachmentCacheHitCostsNoNetwork(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	bundle, err := s.TaskAttachment(context.Background(), 20, false)
	require.NoError(t, err)
	assert.Equal(t, "Taxes", bundle.Task.Title)
	assert.Len(t, bundle.Assignees, 2)
	assert.Len(t, bundle.Milestones, 2)
	assert.Equal(t, 0, f.count("TaskBundle"))
}

func TestTaskAttachmentMissFetchesAndMerges(t *testing.T) {
	f := newFakeTaskBackend()
	f.bundles[30] = schema.TaskAttachment{
		Task:      schema.Task{ID: 30, Title: "Shared", CreatorID: 2},
		Assignees: []schema.TaskAssignee{{TaskID: 30, UserID: 1}},
		Milestones: []schema.Milestone{
			{ID: 300, TaskID: 30, Title: "Step", Index: 0},
		},
	}
	s := newTestTaskStore(f)

	bundle, err := s.TaskAttachment(context.Background(), 30, false)
	require.NoError(t, err)
	assert.Equal(t, "Shared", bundle.Task.Title)
	assert.Equal(t, 1, f.count("TaskBundle"))

	// Second read hits the merged cache.
	_, err = s.TaskAttachment(context.Background(), 30, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("TaskBundle"))

	// Refresh forces a fetch even on a hit.
	_, err = s.TaskAttachment(context.Background(), 30, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("TaskBundle"))
}

func TestCreateTaskPostsAnnouncement(t *testing.T) {
	f := newFakeTaskBackend()
	s := newTestTaskStore(f)
	ch := &fakeChannel{id: "room-1"}

	input := schema.TaskInput{
		Title:       "Plan the trip",
		AssigneeIDs: []uint{1, 2},
		Milestones: []schema.MilestoneInput{
			{Title: "Book flights", Index: 0, AssigneeIDs: []uint{1}},
		},
		TagNames: []string{"travel"},
	}

	bundle, err := s.CreateTask(context.Background(), input, ch)
	require.NoError(t, err)
	assert.Equal(t, uint(42), bundle.Task.ID)
	assert.Len(t, s.Assignees(42), 2)
	assert.Len(t, s.Milestones(42), 1)

	require.Len(t, ch.messages, 1)
	msg := ch.messages[0]
	assert.Equal(t, "task", msg.CustomType)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, chat.Attachment{Type: "task", ID: 42}, msg.Attachments[0])

	toasts := s.toasts.Drain()
	require.Len(t, toasts, 1)
	assert.Contains(t, toasts[0], "Plan the trip")
}

func TestCreateTaskRejectsForeignMilestoneAssignee(t *testing.T) {
	f := newFakeTaskBackend()
	s := newTestTaskStore(f)

	input := schema.TaskInput{
		Title:       "x",
		AssigneeIDs: []uint{1},
		Milestones: []schema.MilestoneInput{
			{Title: "m", Index: 0, AssigneeIDs: []uint{9}},
		},
	}

	_, err := s.CreateTask(context.Background(), input, nil)
	assert.ErrorIs(t, err, ErrMilestoneAssignees)
	assert.Equal(t, 0, f.count("CreateTask"), "invalid input must not reach the network")
}

func TestCreateTaskSurvivesAnnouncementFailure(t *testing.T) {
	f := newFakeTaskBackend()
	s := newTestTaskStore(f)
	ch := &fakeChannel{id: "room-1", failWith: &backend.Error{Kind: backend.KindPermanent, Status: 403}}

	bundle, err := s.CreateTask(context.Background(), schema.TaskInput{Title: "x", AssigneeIDs: []uint{1}}, ch)
	require.NoError(t, err, "the task exists even if the announcement failed")
	require.NotNil(t, bundle)
	_, cached := s.Task(42)
	assert.True(t, cached)

	toasts := s.toasts.Drain()
	require.Len(t, toasts, 1)
	assert.Contains(t, toasts[0], "failed")
}

func TestMarkTaskPatchesExactlyOneRow(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	require.NoError(t, s.MarkTask(context.Background(), 20, true))

	for _, row := range s.Assignees(20) {
		if row.UserID == 1 {
			assert.True(t, row.Completed)
		} else {
			assert.False(t, row.Completed, "other assignees untouched")
		}
	}
	for _, row := range s.Assignees(10) {
		assert.False(t, row.Completed, "other tasks untouched")
	}
}

func TestMarkMilestoneUncachedReturnsError(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	err := s.MarkMilestone(context.Background(), 999, true)
	assert.ErrorIs(t, err, ErrNotCached)

	require.NoError(t, s.MarkMilestone(context.Background(), 100, true))
	rows := s.MilestoneAssignees(100)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Completed)
}

func TestDeleteCascadesLocally(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	require.NoError(t, s.Delete(context.Background(), 20))

	_, cached := s.Task(20)
	assert.False(t, cached)
	assert.Empty(t, s.Assignees(20))
	assert.Empty(t, s.Dependencies(20))
	assert.Empty(t, s.Milestones(20))
	assert.Empty(t, s.MilestoneAssignees(100))
	assert.Empty(t, s.MilestoneAssignees(101))

	_, cached = s.Task(10)
	assert.True(t, cached, "unrelated task survives")
}

func event(t *testing.T, table string, typ hub.ChangeType, newRow, oldRow any) hub.ChangeEvent {
	t.Helper()
	ev := hub.ChangeEvent{Schema: "public", Table: table, Type: typ}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		require.NoError(t, err)
		ev.New = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		require.NoError(t, err)
		ev.Old = raw
	}
	return ev
}

func TestHandleChangeDeleteCascades(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	s.HandleChange(event(t, "tasks", hub.ChangeDelete, nil, schema.Task{ID: 20, Title: "Taxes", CreatorID: 2}))

	_, cached := s.Task(20)
	assert.False(t, cached)
	assert.Empty(t, s.Milestones(20))
	assert.Empty(t, s.MilestoneAssignees(100))
}

func TestHandleChangeUpdateDropsUncachedTask(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	s.HandleChange(event(t, "tasks", hub.ChangeUpdate, schema.Task{ID: 999, Title: "Ghost", CreatorID: 3}, nil))

	_, cached := s.Task(999)
	assert.False(t, cached, "updates for unknown rows are dropped")

	s.HandleChange(event(t, "tasks", hub.ChangeUpdate, schema.Task{ID: 10, Title: "Groceries!", CreatorID: 1}, nil))
	task, _ := s.Task(10)
	assert.Equal(t, "Groceries!", task.Title)
}

func TestHandleChangeAssignmentMaterializesBundle(t *testing.T) {
	f := seededBackend()
	f.bundles[30] = schema.TaskAttachment{
		Task:      schema.Task{ID: 30, Title: "Surprise", CreatorID: 2},
		Assignees: []schema.TaskAssignee{{TaskID: 30, UserID: 1}},
	}
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	s.HandleChange(event(t, "task_assignees", hub.ChangeInsert,
		schema.TaskAssignee{TaskID: 30, UserID: 1}, nil))

	task, cached := s.Task(30)
	require.True(t, cached, "assignment to an unknown task pulls the bundle")
	assert.Equal(t, "Surprise", task.Title)
	assert.Equal(t, 1, f.count("TaskBundle"))

	toasts := s.toasts.Drain()
	require.Len(t, toasts, 1)
	assert.Contains(t, toasts[0], "Surprise")
}

func TestHandleChangeAssignmentOfOthersIsQuiet(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	// Someone else assigned to an unknown task: no fetch, no toast.
	s.HandleChange(event(t, "task_assignees", hub.ChangeInsert,
		schema.TaskAssignee{TaskID: 77, UserID: 9}, nil))

	_, cached := s.Task(77)
	assert.False(t, cached)
	assert.Equal(t, 0, f.count("TaskBundle"))
	assert.Empty(t, s.toasts.Drain())
}

func TestHandleChangeMilestoneInsertIndexed(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))

	s.HandleChange(event(t, "milestones", hub.ChangeInsert,
		schema.Milestone{ID: 102, TaskID: 20, Title: "Pay", Index: 2}, nil))

	milestones := s.Milestones(20)
	require.Len(t, milestones, 3)
	assert.Equal(t, "Pay", milestones[2].Title)

	// Then the delete removes it from the task index too.
	s.HandleChange(event(t, "milestones", hub.ChangeDelete, nil,
		schema.Milestone{ID: 102, TaskID: 20, Title: "Pay", Index: 2}))
	assert.Len(t, s.Milestones(20), 2)
}

func TestTaskStoreLoadingAndErrLifecycle(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)

	var loadingDuringFetch bool
	f.onTasks = func() { loadingDuringFetch = s.Loading() }

	require.NoError(t, s.FetchAll(context.Background()))
	assert.True(t, loadingDuringFetch, "loading is visible while the hydration runs")
	assert.False(t, s.Loading())
	assert.NoError(t, s.Err())

	f.failTasksTimes = 100
	f.failTasksWith = &backend.Error{Kind: backend.KindPermanent, Status: 403}
	require.Error(t, s.FetchAll(context.Background()))
	assert.False(t, s.Loading())
	assert.Error(t, s.Err())

	// A later success clears the failure.
	f.failTasksTimes = 0
	require.NoError(t, s.FetchAll(context.Background()))
	assert.NoError(t, s.Err())
}

func TestTaskStoreReset(t *testing.T) {
	f := seededBackend()
	s := newTestTaskStore(f)
	require.NoError(t, s.FetchAll(context.Background()))
	require.NotEmpty(t, s.Tasks())

	s.Reset()
	assert.Empty(t, s.Tasks())
	assert.NoError(t, s.Err())
}

func TestToastQueueDrainsAtomically(t *testing.T) {
	q := NewToasts()
	q.Push("one")
	q.Push("two")

	assert.Equal(t, []string{"one", "two"}, q.Drain())
	assert.Empty(t, q.Drain(), "each message delivered at most once")
}

var errTransport = errors.New("connection reset")

func TestTaskStoreRetriesUntaggedErrors(t *testing.T) {
	f := seededBackend()
	f.failTasksTimes = 1
	f.failTasksWith = errTransport
	s := newTestTaskStore(f)

	require.NoError(t, s.FetchAll(context.Background()))
	assert.Equal(t, 2, f.count("Tasks"))
}

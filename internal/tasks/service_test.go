package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parentSet struct {
	taskID    int64
	parentID  *int64
	projectID int64
	position  int
}

type fakeStore struct {
	tasks      map[int64]Task
	listed     []Task
	shells     map[GroupDimension][]Group
	categories map[int64]StatusCategory
	colors     map[int64]string
	colorErr   error
	depCount   int
	depErr     error
	maxPos     int
	maxOK      bool

	statusUpdates [][2]int64
	parentSets    []parentSet
	replaced      map[int64][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:      map[int64]Task{},
		shells:     map[GroupDimension][]Group{},
		categories: map[int64]StatusCategory{},
		colors:     map[int64]string{},
		replaced:   map[int64][]int64{},
	}
}

func (f *fakeStore) ListTasks(ctx context.Context, _ Filters) ([]Task, error) {
	return append([]Task(nil), f.listed...), nil
}

func (f *fakeStore) CountTasks(ctx context.Context, _ Filters) (int, error) {
	return len(f.listed), nil
}

func (f *fakeStore) GetTask(ctx context.Context, taskID, _ int64) (Task, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	return t, nil
}

func (f *fakeStore) GroupShells(ctx context.Context, _ int64, dim GroupDimension) ([]Group, error) {
	return append([]Group(nil), f.shells[dim]...), nil
}

func (f *fakeStore) StatusCategories(ctx context.Context, _ int64) (map[int64]StatusCategory, error) {
	return f.categories, nil
}

func (f *fakeStore) StatusCategory(ctx context.Context, statusID int64) (StatusCategory, error) {
	cat, ok := f.categories[statusID]
	if !ok {
		return "", fmt.Errorf("status %d: %w", statusID, ErrNotFound)
	}
	return cat, nil
}

func (f *fakeStore) StatusColor(ctx context.Context, statusID int64) (string, error) {
	if f.colorErr != nil {
		return "", f.colorErr
	}
	color, ok := f.colors[statusID]
	if !ok {
		return "", fmt.Errorf("status %d: %w", statusID, ErrNotFound)
	}
	return color, nil
}

func (f *fakeStore) UnfinishedDependencyCount(ctx context.Context, _ int64) (int, error) {
	if f.depErr != nil {
		return 0, f.depErr
	}
	return f.depCount, nil
}

func (f *fakeStore) UpdateTaskStatus(ctx context.Context, taskID, statusID int64) error {
	t, ok := f.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	t.StatusID = statusID
	f.tasks[taskID] = t
	f.statusUpdates = append(f.statusUpdates, [2]int64{taskID, statusID})
	return nil
}

func (f *fakeStore) MaxPosition(ctx context.Context, _ int64, _ *int64) (int, bool, error) {
	return f.maxPos, f.maxOK, nil
}

func (f *fakeStore) SetParent(ctx context.Context, taskID int64, parentID *int64, projectID int64, position int) error {
	t, ok := f.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	t.ParentID = parentID
	t.ProjectID = projectID
	t.Position = position
	f.tasks[taskID] = t
	f.parentSets = append(f.parentSets, parentSet{taskID, parentID, projectID, position})
	return nil
}

func (f *fakeStore) ReplaceLabels(ctx context.Context, taskID int64, labelIDs []int64) error {
	f.replaced[taskID] = append([]int64(nil), labelIDs...)
	return nil
}

func (f *fakeStore) SetColumnValue(ctx context.Context, _, _ int64, _ string) error {
	return nil
}

// ---- dependency gate ----

func TestCanTransitionNonDoneTargetAlwaysAllowed(t *testing.T) {
	store := newFakeStore()
	store.categories[4] = CategoryDoing
	store.depCount = 5

	allowed, err := NewService(store).CanTransition(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCanTransitionDoneTargetWithOpenDependencyBlocked(t *testing.T) {
	store := newFakeStore()
	store.categories[3] = CategoryDone
	store.depCount = 1

	allowed, err := NewService(store).CanTransition(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCanTransitionDoneTargetWithoutDependenciesAllowed(t *testing.T) {
	store := newFakeStore()
	store.categories[3] = CategoryDone

	allowed, err := NewService(store).CanTransition(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCanTransitionUnknownTargetStatus(t *testing.T) {
	store := newFakeStore()

	_, err := NewService(store).CanTransition(context.Background(), 1, 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCanTransitionDependencyErrorSurfaces(t *testing.T) {
	store := newFakeStore()
	store.categories[3] = CategoryDone
	store.depErr = errors.New("connection reset")

	allowed, err := NewService(store).CanTransition(context.Background(), 1, 3)
	require.Error(t, err)
	assert.False(t, allowed, "a failed check must never read as allowed")
}

// ---- status change ----

func TestChangeStatusBlockedLeavesTaskUntouched(t *testing.T) {
	store := newFakeStore()
	store.categories[3] = CategoryDone
	store.depCount = 2
	store.tasks[1] = Task{ID: 1, StatusID: 2}

	_, err := NewService(store).ChangeStatus(context.Background(), 1, 3, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDependenciesOpen))
	assert.Empty(t, store.statusUpdates)
}

func TestChangeStatusAllowed(t *testing.T) {
	store := newFakeStore()
	store.categories[3] = CategoryDone
	store.colors[3] = "#22c55e"
	store.tasks[1] = Task{ID: 1, StatusID: 2}

	updated, err := NewService(store).ChangeStatus(context.Background(), 1, 3, 7)
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{1, 3}}, store.statusUpdates)
	assert.Equal(t, int64(3), updated.StatusID)
	assert.Equal(t, "#22c55e", updated.StatusColor)
}

// ---- reparent ----

func TestReparentToRootTakesMaxPositionPlusOne(t *testing.T) {
	store := newFakeStore()
	parent := int64(5)
	store.tasks[10] = Task{ID: 10, ProjectID: 2, ParentID: &parent, StatusID: 1}
	store.colors[1] = "#ef4444"
	store.maxPos = 5
	store.maxOK = true

	updated, err := NewService(store).Reparent(context.Background(), 10, nil, 2, 7)
	require.NoError(t, err)

	require.Len(t, store.parentSets, 1)
	set := store.parentSets[0]
	assert.Nil(t, set.parentID)
	assert.Equal(t, int64(2), set.projectID)
	assert.Equal(t, 6, set.position)
	assert.Nil(t, updated.ParentID)
}

func TestReparentIntoEmptyScopeTakesPositionZero(t *testing.T) {
	store := newFakeStore()
	store.tasks[10] = Task{ID: 10, ProjectID: 2, StatusID: 1}
	store.colors[1] = "#ef4444"
	store.maxOK = false

	_, err := NewService(store).Reparent(context.Background(), 10, nil, 3, 7)
	require.NoError(t, err)
	require.Len(t, store.parentSets, 1)
	assert.Equal(t, 0, store.parentSets[0].position)
	assert.Equal(t, int64(3), store.parentSets[0].projectID)
}

func TestReparentUnderParentUsesParentProject(t *testing.T) {
	store := newFakeStore()
	store.tasks[10] = Task{ID: 10, ProjectID: 2, StatusID: 1}
	store.tasks[20] = Task{ID: 20, ProjectID: 4, StatusID: 1}
	store.colors[1] = "#ef4444"
	store.maxPos = 1
	store.maxOK = true

	parent := int64(20)
	_, err := NewService(store).Reparent(context.Background(), 10, &parent, 0, 7)
	require.NoError(t, err)
	require.Len(t, store.parentSets, 1)
	assert.Equal(t, int64(4), store.parentSets[0].projectID)
	require.NotNil(t, store.parentSets[0].parentID)
	assert.Equal(t, int64(20), *store.parentSets[0].parentID)
}

func TestReparentRejectsNestingUnderSubtask(t *testing.T) {
	store := newFakeStore()
	grandparent := int64(1)
	store.tasks[10] = Task{ID: 10, ProjectID: 2}
	store.tasks[20] = Task{ID: 20, ProjectID: 2, ParentID: &grandparent}

	parent := int64(20)
	_, err := NewService(store).Reparent(context.Background(), 10, &parent, 0, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNestingTooDeep))
	assert.Empty(t, store.parentSets)
}

func TestReparentRejectsTaskWithSubtasks(t *testing.T) {
	store := newFakeStore()
	store.tasks[10] = Task{ID: 10, ProjectID: 2, SubtaskCount: 3}
	store.tasks[20] = Task{ID: 20, ProjectID: 2}

	parent := int64(20)
	_, err := NewService(store).Reparent(context.Background(), 10, &parent, 0, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNestingTooDeep))
}

func TestReparentRejectsSelfParent(t *testing.T) {
	store := newFakeStore()
	store.tasks[10] = Task{ID: 10, ProjectID: 2}

	parent := int64(10)
	_, err := NewService(store).Reparent(context.Background(), 10, &parent, 0, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

// ---- grouped listing ----

func TestListGroupedByStatus(t *testing.T) {
	store := newFakeStore()
	store.shells[GroupByStatus] = statusShells()
	store.categories = map[int64]StatusCategory{1: CategoryTodo, 2: CategoryDoing, 3: CategoryDone}
	store.listed = []Task{
		{ID: 1, StatusID: 1},
		{ID: 2, StatusID: 2},
		{ID: 3, StatusID: 3},
		{ID: 4, StatusID: 3},
	}

	groups, err := NewService(store).ListGrouped(context.Background(), Filters{ProjectID: 1}, GroupByStatus)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Len(t, groups[0].Tasks, 1)
	assert.Len(t, groups[1].Tasks, 1)
	assert.Len(t, groups[2].Tasks, 2)

	assert.Equal(t, 0, groups[0].DoneProgress)
	assert.Equal(t, 100, groups[0].TodoProgress)
	assert.Equal(t, 100, groups[2].DoneProgress)
}

func TestListGroupedByLabelMultiMembership(t *testing.T) {
	store := newFakeStore()
	store.shells[GroupByLabel] = []Group{
		{Key: 1, Name: "backend", Color: "#0ea5e9"},
		{Key: 2, Name: "urgent", Color: "#ef4444"},
	}
	store.categories = map[int64]StatusCategory{3: CategoryDone}
	store.listed = []Task{
		{ID: 1, StatusID: 3, LabelIDs: []int64{1, 2}},
		{ID: 2, StatusID: 3, LabelIDs: []int64{2}},
		{ID: 3, StatusID: 3},
	}

	groups, err := NewService(store).ListGrouped(context.Background(), Filters{ProjectID: 1}, GroupByLabel)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, []int64{1}, taskIDs(groups[0].Tasks))
	assert.Equal(t, []int64{1, 2}, taskIDs(groups[1].Tasks))
	assert.Equal(t, 100, groups[1].DoneProgress)
}

func TestListGroupedUnknownDimension(t *testing.T) {
	store := newFakeStore()
	_, err := NewService(store).ListGrouped(context.Background(), Filters{ProjectID: 1}, GroupDimension("owner"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

// ---- degraded decoration ----

func TestGetTaskColorLookupFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	store.tasks[1] = Task{ID: 1, StatusID: 2}
	store.colorErr = errors.New("connection reset")

	got, err := NewService(store).GetTask(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Empty(t, got.StatusColor)
}

func TestListFlatAssignsDisplayIndexes(t *testing.T) {
	store := newFakeStore()
	store.listed = []Task{{ID: 9}, {ID: 4}, {ID: 6}}

	list, err := NewService(store).ListFlat(context.Background(), Filters{ProjectID: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{list[0].Index, list[1].Index, list[2].Index})
}

func TestAssignLabelsReplacesWholeSet(t *testing.T) {
	store := newFakeStore()
	store.tasks[1] = Task{ID: 1, StatusID: 2}
	store.colors[2] = "#eab308"

	_, err := NewService(store).AssignLabels(context.Background(), 1, []int64{3, 4}, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, store.replaced[1])
}

func TestAssignLabelsUnknownTask(t *testing.T) {
	store := newFakeStore()

	_, err := NewService(store).AssignLabels(context.Background(), 99, []int64{1}, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, store.replaced)
}

package tasks

import (
	"context"
	"fmt"
	"log"
)

// Service implements the task listing, grouping and mutation operations on
// top of the storage collaborator. It holds no cross-request state.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListGrouped returns the filtered tasks of a project organized into named
// groups along dim, each group carrying its three progress ratios.
func (s *Service) ListGrouped(ctx context.Context, f Filters, dim GroupDimension) ([]Group, error) {
	if _, ok := ParseGroupDimension(string(dim)); !ok {
		return nil, fmt.Errorf("%w: unknown group dimension %q", ErrInvalidFilter, dim)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	shells, err := s.store.GroupShells(ctx, f.ProjectID, dim)
	if err != nil {
		return nil, err
	}
	flat, err := s.store.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.StatusCategories(ctx, f.ProjectID)
	if err != nil {
		return nil, err
	}

	var groups []Group
	if dim == GroupByLabel {
		groups = labelGroups(flat, shells)
	} else {
		groups, err = Partition(flat, dim, shells)
		if err != nil {
			return nil, err
		}
	}

	for i := range groups {
		Aggregate(&groups[i], categories)
	}
	return groups, nil
}

// labelGroups fills the label shells by membership. A task carrying several
// labels shows up in several groups; this is the one deliberate exception
// to exclusive partitioning.
func labelGroups(flat []Task, shells []Group) []Group {
	for i := range flat {
		flat[i].Index = i + 1
	}

	groups := make([]Group, len(shells))
	for i, sh := range shells {
		sh.Dimension = GroupByLabel
		sh.Tasks = nil
		for _, t := range flat {
			for _, id := range t.LabelIDs {
				if id == sh.Key {
					sh.Tasks = append(sh.Tasks, t)
					break
				}
			}
		}
		groups[i] = sh
	}
	return groups
}

// ListFlat returns the filtered tasks in sort order, with display indexes
// assigned from the flat order.
func (s *Service) ListFlat(ctx context.Context, f Filters) ([]Task, error) {
	flat, err := s.store.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range flat {
		flat[i].Index = i + 1
	}
	return flat, nil
}

// CountFlat is the counts-only shape of ListFlat over the same predicate.
func (s *Service) CountFlat(ctx context.Context, f Filters) (int, error) {
	return s.store.CountTasks(ctx, f)
}

// GetTask returns one decorated task. The status color is best-effort: a
// failed lookup logs a warning and leaves the field empty instead of
// failing the fetch.
func (s *Service) GetTask(ctx context.Context, taskID, callerID int64) (Task, error) {
	t, err := s.store.GetTask(ctx, taskID, callerID)
	if err != nil {
		return Task{}, err
	}

	color, err := s.store.StatusColor(ctx, t.StatusID)
	if err != nil {
		log.Printf("[WARN] status color lookup failed task_id=%d: %v", taskID, err)
	} else {
		t.StatusColor = color
	}
	return t, nil
}

// ChangeStatus moves a task into a new status after the dependency gate
// approves the transition.
func (s *Service) ChangeStatus(ctx context.Context, taskID, statusID, callerID int64) (Task, error) {
	allowed, err := s.CanTransition(ctx, taskID, statusID)
	if err != nil {
		return Task{}, err
	}
	if !allowed {
		return Task{}, fmt.Errorf("task %d: %w", taskID, ErrDependenciesOpen)
	}

	if err := s.store.UpdateTaskStatus(ctx, taskID, statusID); err != nil {
		return Task{}, err
	}
	return s.GetTask(ctx, taskID, callerID)
}

// Reparent converts a task to a sub-task of newParentID, or to a root task
// of projectID when newParentID is nil. Nesting depth stays at one: a task
// with children cannot become a sub-task and a sub-task cannot be a parent.
// The task takes one more than the highest manual position in the
// destination scope, or 0 when the scope is empty.
func (s *Service) Reparent(ctx context.Context, taskID int64, newParentID *int64, projectID, callerID int64) (Task, error) {
	t, err := s.store.GetTask(ctx, taskID, callerID)
	if err != nil {
		return Task{}, err
	}

	if newParentID != nil {
		if *newParentID == taskID {
			return Task{}, fmt.Errorf("%w: task cannot be its own parent", ErrInvalidFilter)
		}
		parent, err := s.store.GetTask(ctx, *newParentID, callerID)
		if err != nil {
			return Task{}, fmt.Errorf("parent: %w", err)
		}
		if parent.ParentID != nil {
			return Task{}, fmt.Errorf("parent %d is a sub-task: %w", *newParentID, ErrNestingTooDeep)
		}
		if t.SubtaskCount > 0 {
			return Task{}, fmt.Errorf("task %d has sub-tasks: %w", taskID, ErrNestingTooDeep)
		}
		projectID = parent.ProjectID
	}
	if projectID == 0 {
		projectID = t.ProjectID
	}

	max, ok, err := s.store.MaxPosition(ctx, projectID, newParentID)
	if err != nil {
		return Task{}, err
	}
	position := 0
	if ok {
		position = max + 1
	}

	if err := s.store.SetParent(ctx, taskID, newParentID, projectID, position); err != nil {
		return Task{}, err
	}
	return s.GetTask(ctx, taskID, callerID)
}

// AssignLabels replaces the task's label set. The write is a single
// all-or-nothing batch; partial label sets are never observable.
func (s *Service) AssignLabels(ctx context.Context, taskID int64, labelIDs []int64, callerID int64) (Task, error) {
	if _, err := s.store.GetTask(ctx, taskID, callerID); err != nil {
		return Task{}, err
	}
	if err := s.store.ReplaceLabels(ctx, taskID, labelIDs); err != nil {
		return Task{}, err
	}
	return s.GetTask(ctx, taskID, callerID)
}

// SetColumnValue upserts one custom-column value for a task.
func (s *Service) SetColumnValue(ctx context.Context, taskID, columnID int64, value string) error {
	return s.store.SetColumnValue(ctx, taskID, columnID, value)
}

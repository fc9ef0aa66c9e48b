package tasks

import (
	"context"
	"fmt"
)

// CanTransition reports whether moving taskID into targetStatusID is
// permitted by the task's direct dependencies. Moving into anything but a
// done-category status is never blocked. The check is one hop only — it
// never follows transitive chains, so dependency cycles cannot make it
// loop. Evaluation errors are always surfaced; a failed check must not
// silently read as "allowed".
func (s *Service) CanTransition(ctx context.Context, taskID, targetStatusID int64) (bool, error) {
	cat, err := s.store.StatusCategory(ctx, targetStatusID)
	if err != nil {
		return false, fmt.Errorf("target status: %w", err)
	}
	if cat != CategoryDone {
		return true, nil
	}

	open, err := s.store.UnfinishedDependencyCount(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("dependency check: %w", err)
	}
	return open == 0, nil
}

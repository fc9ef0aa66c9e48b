package tasks

import "errors"

var (
	ErrInvalidFilter    = errors.New("invalid filter")
	ErrNotFound         = errors.New("not found")
	ErrDependenciesOpen = errors.New("unfinished dependencies")
	ErrNestingTooDeep   = errors.New("sub-tasks cannot be nested")
)

package tasks

import "fmt"

// UnmappedKey marks the overflow bucket for tasks whose group value has no
// defined group (deleted phase, no phase at all). Real ids start at 1, so
// the sentinel can never collide with a shell.
const UnmappedKey int64 = 0

const unmappedColor = "#9ca3af"

// Partition distributes tasks over the supplied group shells in shell
// order. Every task lands in exactly one group; unknown keys go to a
// lazily created unmapped bucket appended after the shells. Each task gets
// a display index from its position in the flat input, so the global order
// survives grouping. Within a group the flat order is preserved.
//
// The label dimension is multi-valued per task and is not an exclusive
// partition; asking for it here is an input error.
func Partition(tasks []Task, dim GroupDimension, shells []Group) ([]Group, error) {
	if dim == GroupByLabel {
		return nil, fmt.Errorf("%w: label groups are not an exclusive partition", ErrInvalidFilter)
	}

	groups := make([]Group, len(shells))
	byKey := make(map[int64]int, len(shells))
	for i, sh := range shells {
		sh.Dimension = dim
		sh.Tasks = nil
		groups[i] = sh
		byKey[sh.Key] = i
	}

	var unmapped *Group
	for i := range tasks {
		t := tasks[i]
		t.Index = i + 1

		key, mapped := groupKey(t, dim)
		if gi, found := byKey[key]; mapped && found {
			groups[gi].Tasks = append(groups[gi].Tasks, t)
			continue
		}

		if unmapped == nil {
			unmapped = &Group{
				Key:       UnmappedKey,
				Dimension: dim,
				Name:      unmappedName(dim),
				Color:     unmappedColor,
			}
		}
		unmapped.Tasks = append(unmapped.Tasks, t)
	}

	if unmapped != nil {
		groups = append(groups, *unmapped)
	}
	return groups, nil
}

func groupKey(t Task, dim GroupDimension) (int64, bool) {
	switch dim {
	case GroupByStatus:
		return t.StatusID, true
	case GroupByPriority:
		return t.PriorityID, true
	case GroupByPhase:
		if t.PhaseID == nil {
			return 0, false
		}
		return *t.PhaseID, true
	}
	return 0, false
}

func unmappedName(dim GroupDimension) string {
	return "No " + string(dim)
}

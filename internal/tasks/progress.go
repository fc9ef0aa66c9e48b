package tasks

import "math"

// Aggregate computes the three category ratios for g and writes them back.
// Each ratio is matching members over total members, rounded to the nearest
// whole percent. An empty group is (0,0,0), never a division error. The
// ratios are independent: a task whose status id is missing from categories
// counts toward none of them.
func Aggregate(g *Group, categories map[int64]StatusCategory) {
	total := len(g.Tasks)
	if total == 0 {
		g.TodoProgress, g.DoingProgress, g.DoneProgress = 0, 0, 0
		return
	}

	var todo, doing, done int
	for _, t := range g.Tasks {
		switch categories[t.StatusID] {
		case CategoryTodo:
			todo++
		case CategoryDoing:
			doing++
		case CategoryDone:
			done++
		}
	}

	g.TodoProgress = ratio(todo, total)
	g.DoingProgress = ratio(doing, total)
	g.DoneProgress = ratio(done, total)
}

func ratio(n, total int) int {
	return int(math.Round(float64(n) * 100 / float64(total)))
}

package scheduler

import "container/heap"

// taskHeap orders tasks by At, earliest first.
type taskHeap []Task

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func pushTask(h *taskHeap, t Task) {
	heap.Push(h, t)
}

// popTask panics on an empty heap.
func popTask(h *taskHeap) Task {
	return heap.Pop(h).(Task)
}

// removeTask drops every task called name and reports whether any existed.
func removeTask(h *taskHeap, name string) bool {
	removed := false
	for i := 0; i < h.Len(); {
		if (*h)[i].Name == name {
			heap.Remove(h, i)
			removed = true
			continue
		}
		i++
	}
	return removed
}

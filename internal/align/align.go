// Package align computes global alignments between two sequences under a
// pluggable cost model, via Dijkstra search over the edit lattice. Only the
// part of the lattice cheaper than the best path to the end is explored.
package align

import (
	"container/heap"
	"math"
	"strings"
)

// Pair is one column of an alignment: indexes into the two sequences, -1 on
// the side that was skipped.
type Pair struct {
	A int
	B int
}

type cell struct {
	cost float64
	x, y int
}

type cellHeap []cell

func (h cellHeap) Len() int { return len(h) }

// Less breaks cost ties in favor of cells closer to the end of both
// sequences, which keeps unavoidable skips early.
func (h cellHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].x != h[j].x {
		return h[i].x > h[j].x
	}
	return h[i].y > h[j].y
}

func (h cellHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cellHeap) Push(x interface{}) { *h = append(*h, x.(cell)) }
func (h *cellHeap) Pop() interface{} {
	old := *h
	n := len(old)
	out := old[n-1]
	*h = old[:n-1]
	return out
}

// Align aligns a with b. alignCost prices matching a[i] against b[j];
// skipCost prices leaving an element unmatched. The returned pairs cover
// both sequences in order.
func Align(a, b []string, alignCost func(x, y string) float64, skipCost func(s string) float64) []Pair {
	la, lb := len(a), len(b)
	dist := make([][]float64, la+1)
	prevX := make([][]int, la+1)
	prevY := make([][]int, la+1)
	for i := range dist {
		dist[i] = make([]float64, lb+1)
		prevX[i] = make([]int, lb+1)
		prevY[i] = make([]int, lb+1)
		for j := range dist[i] {
			dist[i][j] = math.Inf(1)
			prevX[i][j] = -1
			prevY[i][j] = -1
		}
	}
	dist[0][0] = 0

	frontier := &cellHeap{{0, 0, 0}}
	for frontier.Len() > 0 {
		cur := heap.Pop(frontier).(cell)
		if cur.x == la && cur.y == lb {
			break
		}
		if cur.cost > dist[cur.x][cur.y] {
			continue
		}
		relax := func(nx, ny int, step float64) {
			cost := cur.cost + step
			if cost < dist[nx][ny] {
				dist[nx][ny] = cost
				prevX[nx][ny] = cur.x
				prevY[nx][ny] = cur.y
				heap.Push(frontier, cell{cost, nx, ny})
			}
		}
		if cur.x < la {
			relax(cur.x+1, cur.y, skipCost(a[cur.x]))
		}
		if cur.x < la && cur.y < lb {
			relax(cur.x+1, cur.y+1, alignCost(a[cur.x], b[cur.y]))
		}
		if cur.y < lb {
			relax(cur.x, cur.y+1, skipCost(b[cur.y]))
		}
	}

	var rev []Pair
	x, y := la, lb
	for x != 0 || y != 0 {
		px, py := prevX[x][y], prevY[x][y]
		p := Pair{A: -1, B: -1}
		if px < x {
			p.A = px
		}
		if py < y {
			p.B = py
		}
		rev = append(rev, p)
		x, y = px, py
	}

	out := make([]Pair, len(rev))
	for i, p := range rev {
		out[len(rev)-1-i] = p
	}
	return out
}

// Skip cost is less than half the cost of misalignment to encourage
// skipping over forced bad matches.
const defaultSkipCost = 0.25

func exactCost(x, y string) float64 {
	if x == y {
		return 0
	}
	return 1
}

func flatSkip(string) float64 { return defaultSkipCost }

// Strings aligns two string sequences under exact-match cost.
func Strings(a, b []string) []Pair {
	return Align(a, b, exactCost, flatSkip)
}

// lastComponent returns the text after the final dot.
func lastComponent(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// SerapiIDs aligns two identifier sequences comparing only the last dotted
// component, the form in which the proof assistant reports local names.
func SerapiIDs(a, b []string) []Pair {
	cost := func(x, y string) float64 {
		if lastComponent(x) == lastComponent(y) {
			return 0
		}
		return 1
	}
	return Align(a, b, cost, flatSkip)
}

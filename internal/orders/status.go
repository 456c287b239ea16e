package orders

import (
	"fmt"
	"sort"
	"strings"
)

// StatusCanceled names the side-exit used by CancelOrder.
const StatusCanceled = "CANCELED"

// StatusGraph is an immutable snapshot of the status chain. Each state has at
// most one outgoing "advance" edge; terminal states have none.
type StatusGraph struct {
	byID    map[int]Status
	next    map[int]int
	prev    map[int]int
	initial int
	flow    []int
}

// NewStatusGraph validates the topology and builds the transition table.
//
// Rules: ids are unique, non-final nodes have exactly one existing successor,
// final nodes have none, no node has two predecessors, exactly one non-final
// node has no predecessor (the initial node), and every non-final node is
// reachable from it (which rules out cycles). Final nodes without a
// predecessor are side-exits and are allowed.
func NewStatusGraph(statuses []Status) (*StatusGraph, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("%w: no statuses", ErrInvalidStatusGraph)
	}
	g := &StatusGraph{
		byID: make(map[int]Status, len(statuses)),
		next: make(map[int]int, len(statuses)),
		prev: make(map[int]int, len(statuses)),
	}
	for _, s := range statuses {
		if _, dup := g.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate status id %d", ErrInvalidStatusGraph, s.ID)
		}
		g.byID[s.ID] = s
	}

	incoming := make(map[int]int, len(statuses))
	for _, s := range statuses {
		switch {
		case s.IsFinal && s.NextStatusID != nil:
			return nil, fmt.Errorf("%w: final status %s (%d) has a successor", ErrInvalidStatusGraph, s.Name, s.ID)
		case !s.IsFinal && s.NextStatusID == nil:
			return nil, fmt.Errorf("%w: status %s (%d) is not final but has no successor", ErrInvalidStatusGraph, s.Name, s.ID)
		case s.NextStatusID == nil:
			continue
		}
		nextID := *s.NextStatusID
		if _, ok := g.byID[nextID]; !ok {
			return nil, fmt.Errorf("%w: status %s (%d) points to unknown status %d", ErrInvalidStatusGraph, s.Name, s.ID, nextID)
		}
		incoming[nextID]++
		if incoming[nextID] > 1 {
			return nil, fmt.Errorf("%w: status %d has more than one predecessor", ErrInvalidStatusGraph, nextID)
		}
		g.next[s.ID] = nextID
		g.prev[nextID] = s.ID
	}

	var roots []int
	for _, s := range statuses {
		if !s.IsFinal && incoming[s.ID] == 0 {
			roots = append(roots, s.ID)
		}
	}
	if len(roots) != 1 {
		sort.Ints(roots)
		return nil, fmt.Errorf("%w: expected exactly one initial status, found %d %v", ErrInvalidStatusGraph, len(roots), roots)
	}
	g.initial = roots[0]

	seen := make(map[int]bool, len(statuses))
	for id := g.initial; ; {
		if seen[id] {
			return nil, fmt.Errorf("%w: cycle at status %d", ErrInvalidStatusGraph, id)
		}
		seen[id] = true
		g.flow = append(g.flow, id)
		nextID, ok := g.next[id]
		if !ok {
			break
		}
		id = nextID
	}
	for _, s := range statuses {
		if !s.IsFinal && !seen[s.ID] {
			return nil, fmt.Errorf("%w: status %s (%d) is unreachable from the initial status", ErrInvalidStatusGraph, s.Name, s.ID)
		}
	}
	return g, nil
}

func (g *StatusGraph) Initial() Status { return g.byID[g.initial] }

func (g *StatusGraph) Status(id int) (Status, bool) {
	s, ok := g.byID[id]
	return s, ok
}

// Successor returns the single state reachable from id by "advance".
func (g *StatusGraph) Successor(id int) (Status, bool) {
	nextID, ok := g.next[id]
	if !ok {
		return Status{}, false
	}
	return g.byID[nextID], true
}

// Predecessor returns the state that advances into id. The initial state and
// side-exits have none.
func (g *StatusGraph) Predecessor(id int) (Status, bool) {
	prevID, ok := g.prev[id]
	if !ok {
		return Status{}, false
	}
	return g.byID[prevID], true
}

func (g *StatusGraph) IsFinal(id int) bool {
	_, ok := g.next[id]
	return !ok
}

// ByName looks a status up case-insensitively.
func (g *StatusGraph) ByName(name string) (Status, bool) {
	for _, s := range g.byID {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Status{}, false
}

// Flow lists the chain from the initial status to its terminal status.
func (g *StatusGraph) Flow() []Status {
	out := make([]Status, 0, len(g.flow))
	for _, id := range g.flow {
		out = append(out, g.byID[id])
	}
	return out
}

// All lists every status ordered by id.
func (g *StatusGraph) All() []Status {
	out := make([]Status, 0, len(g.byID))
	for _, s := range g.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

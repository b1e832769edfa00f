package graph

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

/**
 * @brief A dependency cycle found while linearizing the graph. Fatal for
 * the frame; Passes names the members of the cycle.
 */
type CycleError struct {
	Passes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among passes: %s", strings.Join(e.Passes, ", "))
}

/** @brief A cross-queue synchronization point: which pass on which queue
 * must complete before the waiting pass may start. */
type WaitEdge struct {
	Pass  metadata.PassHandle
	Queue metadata.QueueType
}

/** @brief One pass in its final scheduled position, with the transitions
 * to apply before it and the queues it must wait on. */
type ScheduledPass struct {
	Pass        *Pass
	Transitions []metadata.Transition
	WaitsOn     []WaitEdge

	// deps are indices into CompiledGraph.Order of every upstream pass,
	// used to sequence execution.
	deps []int
}

/** @brief The frozen, validated execution plan for one frame. */
type CompiledGraph struct {
	Frame uint64
	Order []*ScheduledPass
}

// Builder accumulates the passes of a single frame and compiles them
// into a valid execution order. Built fresh every frame, discarded after
// execution, never persisted. Submission and compilation are
// single-threaded per frame; pass construction may happen anywhere.
type Builder struct {
	frame  uint64
	views  []uint16
	passes []*Pass
	// validate is the registry's handle check, applied to every declared
	// access at submission. Stale or unknown handles abort the frame's
	// graph before anything executes.
	validate func(metadata.ResourceHandle) error
}

func NewBuilder(frame uint64, views []uint16, validate func(metadata.ResourceHandle) error) *Builder {
	return &Builder{
		frame:    frame,
		views:    append([]uint16(nil), views...),
		validate: validate,
	}
}

func (b *Builder) Frame() uint64 {
	return b.frame
}

// PassCount reports the number of passes submitted so far, before any
// per-view expansion.
func (b *Builder) PassCount() int {
	return len(b.passes)
}

// AddPass submits a built pass to this frame's graph.
func (b *Builder) AddPass(p *Pass) error {
	if p == nil {
		return fmt.Errorf("cannot add a nil pass")
	}
	if p.executor == nil {
		// Clones do not inherit executors; one must be rebound before
		// submission.
		return fmt.Errorf("pass '%s': %w", p.name, ErrNoExecutor)
	}
	if b.validate != nil {
		for _, access := range p.reads {
			if err := b.validate(access.Handle); err != nil {
				return fmt.Errorf("pass '%s' read: %w", p.name, err)
			}
		}
		for _, access := range p.writes {
			if err := b.validate(access.Handle); err != nil {
				return fmt.Errorf("pass '%s' write: %w", p.name, err)
			}
		}
	}
	b.passes = append(b.passes, p)
	return nil
}

// Compile expands per-view passes, derives dependency edges, computes a
// topological order and the resource transitions each pass needs. Any
// validation failure aborts the whole frame's graph; nothing executes.
func (b *Builder) Compile() (*CompiledGraph, error) {
	nodes, origin, err := b.expandViews()
	if err != nil {
		return nil, err
	}

	adj, indegree, err := deriveEdges(nodes, origin)
	if err != nil {
		return nil, err
	}

	order, err := topoSort(nodes, adj, indegree)
	if err != nil {
		return nil, err
	}

	compiled := buildSchedule(b.frame, nodes, adj, order)
	core.MetricsAddPassesScheduled(len(compiled.Order))
	return compiled, nil
}

// expandViews clones IterateAllViews passes once per matching active
// view, rebinding the original executor to each clone. Returns the node
// list plus a map from original pass handle to node indices, which keeps
// explicit dependencies on an expanded pass pointing at all its clones.
func (b *Builder) expandViews() ([]*Pass, map[metadata.PassHandle][]int, error) {
	nodes := make([]*Pass, 0, len(b.passes))
	origin := make(map[metadata.PassHandle][]int)

	for _, p := range b.passes {
		if !p.iterateAll {
			origin[p.handle] = append(origin[p.handle], len(nodes))
			nodes = append(nodes, p)
			continue
		}
		expanded := 0
		for _, view := range b.views {
			if !p.MatchesView(view) {
				continue
			}
			clone := p.Clone()
			clone.viewID = view
			// Rebind explicitly: Clone never copies the executor.
			clone.executor = p.executor
			origin[p.handle] = append(origin[p.handle], len(nodes))
			nodes = append(nodes, clone)
			expanded++
		}
		if expanded == 0 {
			core.LogWarn("pass '%s' iterates views but matched none of the %d active views", p.name, len(b.views))
			origin[p.handle] = nil
		}
	}

	// Defensive: a clone submitted without a rebound executor would
	// silently execute as a no-op. Reject instead.
	for _, n := range nodes {
		if n.executor == nil {
			return nil, nil, fmt.Errorf("pass '%s': %w", n.name, ErrNoExecutor)
		}
	}
	return nodes, origin, nil
}

func intersects(writes []metadata.ResourceAccess, accesses []metadata.ResourceAccess) bool {
	for _, w := range writes {
		for _, a := range accesses {
			if w.Handle == a.Handle {
				return true
			}
		}
	}
	return false
}

// deriveEdges computes the dependency edge set. For declaration-ordered
// passes A before B: an edge A->B exists when B reads or writes anything
// A writes, or when B explicitly depends on A. Read-after-read never
// produces an edge.
func deriveEdges(nodes []*Pass, origin map[metadata.PassHandle][]int) ([][]int, []int, error) {
	adj := make([][]int, len(nodes))
	indegree := make([]int, len(nodes))
	seen := make([]map[int]struct{}, len(nodes))
	for i := range seen {
		seen[i] = make(map[int]struct{})
	}
	addEdge := func(from, to int) {
		if from == to {
			return
		}
		if _, ok := seen[from][to]; ok {
			return
		}
		seen[from][to] = struct{}{}
		adj[from] = append(adj[from], to)
		indegree[to]++
	}

	for j, later := range nodes {
		for i := 0; i < j; i++ {
			earlier := nodes[i]
			if intersects(earlier.writes, later.reads) || intersects(earlier.writes, later.writes) {
				addEdge(i, j)
			}
		}
		for _, dep := range later.dependsOn {
			upstream, ok := origin[dep]
			if !ok {
				return nil, nil, fmt.Errorf("pass '%s' depends on a pass not in this frame's graph (handle %d)", later.name, dep)
			}
			for _, i := range upstream {
				addEdge(i, j)
			}
		}
	}
	return adj, indegree, nil
}

// topoSort linearizes the DAG with deterministic tie-breaks: among ready
// passes pick the highest priority, then one on the same queue as the
// previously emitted pass to minimize queue switches, then the earliest
// declared. A cycle is fatal and reported with its member passes.
func topoSort(nodes []*Pass, adj [][]int, indegree []int) ([]int, error) {
	remaining := make([]int, len(indegree))
	copy(remaining, indegree)

	ready := make([]int, 0, len(nodes))
	for i := range nodes {
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(nodes))
	lastQueue := metadata.QueueTypeGraphics
	haveLast := false

	for len(ready) > 0 {
		best := 0
		for k := 1; k < len(ready); k++ {
			a, cand := nodes[ready[best]], nodes[ready[k]]
			switch {
			case cand.priority != a.priority:
				if cand.priority > a.priority {
					best = k
				}
			case haveLast && (cand.queue == lastQueue) != (a.queue == lastQueue):
				if cand.queue == lastQueue {
					best = k
				}
			case ready[k] < ready[best]:
				best = k
			}
		}
		picked := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, picked)
		lastQueue = nodes[picked].queue
		haveLast = true
		for _, next := range adj[picked] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, &CycleError{Passes: cycleMembers(nodes, adj, order)}
	}
	return order, nil
}

// cycleMembers narrows the unscheduled remainder down to the passes that
// actually lie on a cycle, trimming nodes that merely depend on one.
func cycleMembers(nodes []*Pass, adj [][]int, order []int) []string {
	inRemainder := make([]bool, len(nodes))
	for i := range nodes {
		inRemainder[i] = true
	}
	for _, i := range order {
		inRemainder[i] = false
	}

	// Iteratively trim remainder nodes with no outgoing edge inside the
	// remainder; what survives lies on a cycle.
	for changed := true; changed; {
		changed = false
		for i := range nodes {
			if !inRemainder[i] {
				continue
			}
			hasOut := false
			for _, next := range adj[i] {
				if inRemainder[next] {
					hasOut = true
					break
				}
			}
			if !hasOut {
				inRemainder[i] = false
				changed = true
			}
		}
	}

	var names []string
	for i, n := range nodes {
		if inRemainder[i] {
			names = append(names, n.name)
		}
	}
	return names
}

// buildSchedule walks the linearized order computing, per pass, the
// resource transitions it needs and the cross-queue completions it must
// wait on.
func buildSchedule(frame uint64, nodes []*Pass, adj [][]int, order []int) *CompiledGraph {
	position := make([]int, len(nodes))
	for pos, i := range order {
		position[i] = pos
	}

	compiled := &CompiledGraph{
		Frame: frame,
		Order: make([]*ScheduledPass, 0, len(order)),
	}
	// Every resource starts the frame in the undefined state; the graph
	// is rebuilt from zero each frame so no state leaks across frames.
	currentState := make(map[metadata.ResourceHandle]metadata.ResourceState)

	scheduled := make([]*ScheduledPass, len(nodes))
	for _, i := range order {
		node := nodes[i]
		sp := &ScheduledPass{Pass: node}

		for _, access := range node.reads {
			recordTransition(sp, currentState, access)
		}
		for _, access := range node.writes {
			recordTransition(sp, currentState, access)
		}

		scheduled[i] = sp
		compiled.Order = append(compiled.Order, sp)
	}

	for from, nexts := range adj {
		for _, to := range nexts {
			sp := scheduled[to]
			sp.deps = append(sp.deps, position[from])
			if nodes[from].queue != nodes[to].queue {
				sp.WaitsOn = append(sp.WaitsOn, WaitEdge{
					Pass:  nodes[from].handle,
					Queue: nodes[from].queue,
				})
			}
		}
	}
	return compiled
}

func recordTransition(sp *ScheduledPass, currentState map[metadata.ResourceHandle]metadata.ResourceState, access metadata.ResourceAccess) {
	before, ok := currentState[access.Handle]
	if !ok {
		before = metadata.ResourceStateUndefined
	}
	if before != access.RequiredState {
		sp.Transitions = append(sp.Transitions, metadata.Transition{
			Handle: access.Handle,
			Before: before,
			After:  access.RequiredState,
		})
		currentState[access.Handle] = access.RequiredState
	}
}

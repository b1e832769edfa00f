package graph

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

var (
	// ErrNoExecutor is returned by Build when no executor was bound. It
	// is caught here, before graph submission, not at execution time.
	ErrNoExecutor = errors.New("pass has no executor")
	// ErrNoName is returned by Build for an unnamed pass; names identify
	// passes in cycle reports and retirement records.
	ErrNoName = errors.New("pass has no name")
)

// handleCounter mints pass handles. Monotonic for the process lifetime;
// handles are never reused, clones always get a fresh one.
var handleCounter atomic.Uint64

func nextPassHandle() metadata.PassHandle {
	return metadata.PassHandle(handleCounter.Add(1))
}

/**
 * @brief The context an executor is bound to at execution time. Commands
 * is the backend's submission primitive; the graph treats what the
 * executor records through it as opaque.
 */
type ExecutionContext struct {
	FrameNumber uint64
	// ViewID is the view this instance renders for, or InvalidIDUint16
	// for shared passes.
	ViewID   uint16
	PassName string
	Queue    metadata.QueueType
	Commands CommandSubmitter
}

/** @brief The deferred unit of work a pass performs when scheduled. */
type Executor func(ctx *ExecutionContext) error

/**
 * @brief The backend's command boundary. Transitions become the
 * backend's native barrier primitive; SubmitPass is invoked once per
 * pass by its executor.
 */
type CommandSubmitter interface {
	ApplyTransitions(queue metadata.QueueType, transitions []metadata.Transition) error
	SubmitPass(queue metadata.QueueType, debugName string) error
}

type viewFilterKind uint8

const (
	viewFilterNone viewFilterKind = iota
	viewFilterSingle
	viewFilterSet
)

// Pass is an immutable declaration of one unit of GPU work: what it
// reads, what it writes, which queue it runs on and how to execute it.
// Build one through a PassBuilder.
type Pass struct {
	handle   metadata.PassHandle
	name     string
	kind     metadata.PassKind
	scope    metadata.PassScope
	queue    metadata.QueueType
	priority int32
	cost     metadata.PassCost

	reads     []metadata.ResourceAccess
	writes    []metadata.ResourceAccess
	dependsOn []metadata.PassHandle

	filterKind  viewFilterKind
	filterView  uint16
	filterViews map[uint16]struct{}
	iterateAll  bool

	// viewID is bound on per-view clones; InvalidIDUint16 otherwise.
	viewID   uint16
	executor Executor
}

func (p *Pass) Handle() metadata.PassHandle { return p.handle }
func (p *Pass) Name() string                { return p.name }
func (p *Pass) Kind() metadata.PassKind     { return p.kind }
func (p *Pass) Scope() metadata.PassScope   { return p.scope }
func (p *Pass) Queue() metadata.QueueType   { return p.queue }
func (p *Pass) Priority() int32             { return p.priority }
func (p *Pass) Cost() metadata.PassCost     { return p.cost }
func (p *Pass) ViewID() uint16              { return p.viewID }
func (p *Pass) IterateAllViews() bool       { return p.iterateAll }

// Reads returns the declared read accesses in declaration order.
func (p *Pass) Reads() []metadata.ResourceAccess { return p.reads }

// Writes returns the declared write accesses in declaration order.
func (p *Pass) Writes() []metadata.ResourceAccess { return p.writes }

// DependsOn returns the explicitly declared upstream pass handles.
func (p *Pass) DependsOn() []metadata.PassHandle { return p.dependsOn }

// MatchesView reports whether this pass participates in the given view.
// A pass with no view filter matches every view.
func (p *Pass) MatchesView(viewID uint16) bool {
	switch p.filterKind {
	case viewFilterSingle:
		return p.filterView == viewID
	case viewFilterSet:
		_, ok := p.filterViews[viewID]
		return ok
	}
	return true
}

// Clone produces a structurally identical pass with a fresh handle, for
// per-view instantiation. The executor is intentionally NOT copied: the
// graph rebinds one per clone and the compiler rejects any clone left
// unbound, rather than executing a silent no-op.
func (p *Pass) Clone() *Pass {
	clone := &Pass{
		handle:     nextPassHandle(),
		name:       p.name,
		kind:       p.kind,
		scope:      p.scope,
		queue:      p.queue,
		priority:   p.priority,
		cost:       p.cost,
		reads:      append([]metadata.ResourceAccess(nil), p.reads...),
		writes:     append([]metadata.ResourceAccess(nil), p.writes...),
		dependsOn:  append([]metadata.PassHandle(nil), p.dependsOn...),
		filterKind: p.filterKind,
		filterView: p.filterView,
		iterateAll: p.iterateAll,
		viewID:     metadata.InvalidIDUint16,
	}
	if p.filterViews != nil {
		clone.filterViews = make(map[uint16]struct{}, len(p.filterViews))
		for v := range p.filterViews {
			clone.filterViews[v] = struct{}{}
		}
	}
	return clone
}

// PassBuilder is a fluent accumulator for a Pass. Zero value is not
// usable; start from NewPass.
type PassBuilder struct {
	pass *Pass
}

func NewPass(name string) *PassBuilder {
	return &PassBuilder{
		pass: &Pass{
			name:   name,
			kind:   metadata.PassKindRaster,
			scope:  metadata.PassScopeShared,
			queue:  metadata.QueueTypeGraphics,
			viewID: metadata.InvalidIDUint16,
		},
	}
}

// Read declares that the pass reads the resource in the given state.
func (pb *PassBuilder) Read(handle metadata.ResourceHandle, state metadata.ResourceState) *PassBuilder {
	pb.pass.reads = append(pb.pass.reads, metadata.ResourceAccess{Handle: handle, RequiredState: state})
	return pb
}

// Write declares that the pass writes the resource in the given state.
func (pb *PassBuilder) Write(handle metadata.ResourceHandle, state metadata.ResourceState) *PassBuilder {
	pb.pass.writes = append(pb.pass.writes, metadata.ResourceAccess{Handle: handle, RequiredState: state})
	return pb
}

// DependsOn declares an explicit ordering edge on another pass, beyond
// whatever the resource sets already imply.
func (pb *PassBuilder) DependsOn(handle metadata.PassHandle) *PassBuilder {
	pb.pass.dependsOn = append(pb.pass.dependsOn, handle)
	return pb
}

func (pb *PassBuilder) SetKind(kind metadata.PassKind) *PassBuilder {
	pb.pass.kind = kind
	return pb
}

func (pb *PassBuilder) SetQueue(queue metadata.QueueType) *PassBuilder {
	pb.pass.queue = queue
	return pb
}

// SetPriority raises or lowers the pass among otherwise independent
// passes. Higher priority schedules earlier.
func (pb *PassBuilder) SetPriority(priority int32) *PassBuilder {
	pb.pass.priority = priority
	return pb
}

// SetCost attaches an advisory cost estimate. Heuristics only.
func (pb *PassBuilder) SetCost(cost metadata.PassCost) *PassBuilder {
	pb.pass.cost = cost
	return pb
}

// RestrictToView limits the pass to a single view.
func (pb *PassBuilder) RestrictToView(viewID uint16) *PassBuilder {
	pb.pass.filterKind = viewFilterSingle
	pb.pass.filterView = viewID
	pb.pass.scope = metadata.PassScopePerView
	return pb
}

// RestrictToViews limits the pass to an explicit set of views.
func (pb *PassBuilder) RestrictToViews(viewIDs ...uint16) *PassBuilder {
	pb.pass.filterKind = viewFilterSet
	pb.pass.filterViews = make(map[uint16]struct{}, len(viewIDs))
	for _, v := range viewIDs {
		pb.pass.filterViews[v] = struct{}{}
	}
	pb.pass.scope = metadata.PassScopePerView
	return pb
}

// IterateAllViews requests one clone of the pass per active view at
// compile time. Clones share the declared resource edges but are
// otherwise independent nodes.
func (pb *PassBuilder) IterateAllViews() *PassBuilder {
	pb.pass.iterateAll = true
	pb.pass.scope = metadata.PassScopePerView
	return pb
}

func (pb *PassBuilder) SetExecutor(executor Executor) *PassBuilder {
	pb.pass.executor = executor
	return pb
}

// Build finalizes the pass. A pass without an executor or name is a
// builder error, surfaced now rather than at execution time.
func (pb *PassBuilder) Build() (*Pass, error) {
	if pb.pass.name == "" {
		return nil, ErrNoName
	}
	if pb.pass.executor == nil {
		return nil, fmt.Errorf("pass '%s': %w", pb.pass.name, ErrNoExecutor)
	}
	pb.pass.handle = nextPassHandle()
	return pb.pass, nil
}

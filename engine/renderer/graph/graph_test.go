package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

func mustBuild(t *testing.T, pb *PassBuilder) *Pass {
	t.Helper()
	p, err := pb.Build()
	require.NoError(t, err)
	return p
}

func scheduledNames(cg *CompiledGraph) []string {
	names := make([]string, 0, len(cg.Order))
	for _, sp := range cg.Order {
		names = append(names, sp.Pass.Name())
	}
	return names
}

func positionOf(t *testing.T, cg *CompiledGraph, name string) int {
	t.Helper()
	for i, sp := range cg.Order {
		if sp.Pass.Name() == name {
			return i
		}
	}
	t.Fatalf("pass %q not scheduled", name)
	return -1
}

func TestCompileReadAfterWriteOrdering(t *testing.T) {
	a := metadata.NewResourceHandle(0, 0)

	b := NewBuilder(1, nil, nil)
	// Declared consumer-first on purpose: the resource edge, not the
	// declaration order, must put the producer first.
	consumer := mustBuild(t, NewPass("consumer").Read(a, metadata.ResourceStateShaderRead).SetExecutor(noopExecutor))
	producer := mustBuild(t, NewPass("producer").Write(a, metadata.ResourceStateRenderTarget).SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(producer))
	require.NoError(t, b.AddPass(consumer))

	cg, err := b.Compile()
	require.NoError(t, err)
	assert.Less(t, positionOf(t, cg, "producer"), positionOf(t, cg, "consumer"))
}

func TestCompileWriteAfterWriteOrdering(t *testing.T) {
	a := metadata.NewResourceHandle(0, 0)

	b := NewBuilder(1, nil, nil)
	first := mustBuild(t, NewPass("first").Write(a, metadata.ResourceStateRenderTarget).SetExecutor(noopExecutor))
	second := mustBuild(t, NewPass("second").Write(a, metadata.ResourceStateCopyDest).SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(first))
	require.NoError(t, b.AddPass(second))

	cg, err := b.Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, scheduledNames(cg))
}

func TestCompileReadReadNoEdge(t *testing.T) {
	a := metadata.NewResourceHandle(0, 0)

	b := NewBuilder(1, nil, nil)
	// Two pure readers share a resource. Reads do not conflict with
	// reads, so priority alone decides the order; were there an edge,
	// declaration order would win instead.
	early := mustBuild(t, NewPass("early-reader").Read(a, metadata.ResourceStateShaderRead).SetPriority(0).SetExecutor(noopExecutor))
	late := mustBuild(t, NewPass("late-reader").Read(a, metadata.ResourceStateShaderRead).SetPriority(10).SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(early))
	require.NoError(t, b.AddPass(late))

	cg, err := b.Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"late-reader", "early-reader"}, scheduledNames(cg))
}

func TestCompileExplicitDependency(t *testing.T) {
	b := NewBuilder(1, nil, nil)
	p1 := mustBuild(t, NewPass("p1").SetExecutor(noopExecutor))
	p2 := mustBuild(t, NewPass("p2").DependsOn(p1.Handle()).SetExecutor(noopExecutor))
	// Declare the dependent first; the explicit edge must still hold.
	require.NoError(t, b.AddPass(p2))
	require.NoError(t, b.AddPass(p1))

	cg, err := b.Compile()
	require.NoError(t, err)
	assert.Less(t, positionOf(t, cg, "p1"), positionOf(t, cg, "p2"))
}

func TestCompileUnknownDependency(t *testing.T) {
	b := NewBuilder(1, nil, nil)
	p := mustBuild(t, NewPass("orphan").DependsOn(metadata.PassHandle(999999)).SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(p))

	_, err := b.Compile()
	assert.Error(t, err)
}

func TestCompileCycleIsFatalAndNamed(t *testing.T) {
	a := metadata.NewResourceHandle(0, 0)

	// P1 writes R, P2 reads R with an explicit P2->P1 dependency: fine.
	build := func(reciprocal bool) error {
		b := NewBuilder(1, nil, nil)
		p1b := NewPass("p1").Write(a, metadata.ResourceStateRenderTarget).SetExecutor(noopExecutor)
		p2b := NewPass("p2").Read(a, metadata.ResourceStateShaderRead).SetExecutor(noopExecutor)
		p1 := mustBuild(t, p1b)
		p2b.DependsOn(p1.Handle())
		p2 := mustBuild(t, p2b)
		if reciprocal {
			p1.dependsOn = append(p1.dependsOn, p2.Handle())
		}
		require.NoError(t, b.AddPass(p1))
		require.NoError(t, b.AddPass(p2))
		_, err := b.Compile()
		return err
	}

	require.NoError(t, build(false))

	err := build(true)
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"p1", "p2"}, cycleErr.Passes)
}

func TestCompilePriorityAndDeclarationTieBreaks(t *testing.T) {
	b := NewBuilder(1, nil, nil)
	low := mustBuild(t, NewPass("low").SetPriority(1).SetExecutor(noopExecutor))
	high := mustBuild(t, NewPass("high").SetPriority(9).SetExecutor(noopExecutor))
	alsoHigh := mustBuild(t, NewPass("also-high").SetPriority(9).SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(low))
	require.NoError(t, b.AddPass(high))
	require.NoError(t, b.AddPass(alsoHigh))

	cg, err := b.Compile()
	require.NoError(t, err)
	// Priority first, then declaration order among equals.
	assert.Equal(t, []string{"high", "also-high", "low"}, scheduledNames(cg))
}

func TestCompileQueueGroupingTieBreak(t *testing.T) {
	b := NewBuilder(1, nil, nil)
	g1 := mustBuild(t, NewPass("g1").SetQueue(metadata.QueueTypeGraphics).SetExecutor(noopExecutor))
	c1 := mustBuild(t, NewPass("c1").SetQueue(metadata.QueueTypeCompute).SetExecutor(noopExecutor))
	g2 := mustBuild(t, NewPass("g2").SetQueue(metadata.QueueTypeGraphics).SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(g1))
	require.NoError(t, b.AddPass(c1))
	require.NoError(t, b.AddPass(g2))

	cg, err := b.Compile()
	require.NoError(t, err)
	// g1 goes first by declaration; g2 then groups with the graphics
	// queue before c1 switches lanes.
	assert.Equal(t, []string{"g1", "g2", "c1"}, scheduledNames(cg))
}

func TestCompileStateTransitions(t *testing.T) {
	a := metadata.NewResourceHandle(0, 0)
	bb := metadata.NewResourceHandle(1, 0)

	b := NewBuilder(1, nil, nil)
	p1 := mustBuild(t, NewPass("p1").Write(a, metadata.ResourceStateRenderTarget).SetExecutor(noopExecutor))
	p2 := mustBuild(t, NewPass("p2").
		Read(a, metadata.ResourceStateShaderRead).
		Write(bb, metadata.ResourceStateRenderTarget).
		SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(p1))
	require.NoError(t, b.AddPass(p2))

	cg, err := b.Compile()
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, scheduledNames(cg))

	// P1 brings A out of undefined.
	require.Len(t, cg.Order[0].Transitions, 1)
	assert.Equal(t, metadata.Transition{
		Handle: a,
		Before: metadata.ResourceStateUndefined,
		After:  metadata.ResourceStateRenderTarget,
	}, cg.Order[0].Transitions[0])

	// Exactly one transition for A between P1 and P2, plus B's initial.
	transitionsForA := 0
	for _, tr := range cg.Order[1].Transitions {
		if tr.Handle == a {
			transitionsForA++
			assert.Equal(t, metadata.ResourceStateRenderTarget, tr.Before)
			assert.Equal(t, metadata.ResourceStateShaderRead, tr.After)
		}
	}
	assert.Equal(t, 1, transitionsForA)
}

func TestCompileNoRedundantTransitions(t *testing.T) {
	a := metadata.NewResourceHandle(0, 0)

	b := NewBuilder(1, nil, nil)
	writer := mustBuild(t, NewPass("writer").Write(a, metadata.ResourceStateRenderTarget).SetExecutor(noopExecutor))
	r1 := mustBuild(t, NewPass("r1").Read(a, metadata.ResourceStateShaderRead).SetExecutor(noopExecutor))
	r2 := mustBuild(t, NewPass("r2").Read(a, metadata.ResourceStateShaderRead).SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(writer))
	require.NoError(t, b.AddPass(r1))
	require.NoError(t, b.AddPass(r2))

	cg, err := b.Compile()
	require.NoError(t, err)
	// The second consecutive read in the same state needs no transition.
	assert.Empty(t, cg.Order[2].Transitions)
}

func TestCompileCrossQueueWaits(t *testing.T) {
	a := metadata.NewResourceHandle(0, 0)

	b := NewBuilder(1, nil, nil)
	producer := mustBuild(t, NewPass("producer").
		SetQueue(metadata.QueueTypeGraphics).
		Write(a, metadata.ResourceStateRenderTarget).
		SetExecutor(noopExecutor))
	consumer := mustBuild(t, NewPass("consumer").
		SetQueue(metadata.QueueTypeCompute).
		Read(a, metadata.ResourceStateShaderRead).
		SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(producer))
	require.NoError(t, b.AddPass(consumer))

	cg, err := b.Compile()
	require.NoError(t, err)

	consumerScheduled := cg.Order[positionOf(t, cg, "consumer")]
	require.Len(t, consumerScheduled.WaitsOn, 1)
	assert.Equal(t, producer.Handle(), consumerScheduled.WaitsOn[0].Pass)
	assert.Equal(t, metadata.QueueTypeGraphics, consumerScheduled.WaitsOn[0].Queue)

	// Same-queue dependencies need no wait edge.
	producerScheduled := cg.Order[positionOf(t, cg, "producer")]
	assert.Empty(t, producerScheduled.WaitsOn)
}

func TestCompileExpandsPerViewPasses(t *testing.T) {
	a := metadata.NewResourceHandle(0, 0)

	b := NewBuilder(1, []uint16{0, 1, 2}, nil)
	shared := mustBuild(t, NewPass("shared").Write(a, metadata.ResourceStateRenderTarget).SetExecutor(noopExecutor))
	perView := mustBuild(t, NewPass("per-view").
		IterateAllViews().
		Read(a, metadata.ResourceStateShaderRead).
		SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(shared))
	require.NoError(t, b.AddPass(perView))

	cg, err := b.Compile()
	require.NoError(t, err)
	require.Len(t, cg.Order, 4)

	views := make(map[uint16]bool)
	handles := make(map[metadata.PassHandle]bool)
	for _, sp := range cg.Order {
		if sp.Pass.Name() != "per-view" {
			continue
		}
		// Clones carry distinct identities and view bindings but share
		// the declared resource edges.
		views[sp.Pass.ViewID()] = true
		assert.False(t, handles[sp.Pass.Handle()])
		handles[sp.Pass.Handle()] = true
		assert.Equal(t, perView.Reads(), sp.Pass.Reads())
		assert.Greater(t, positionOf(t, cg, "per-view"), positionOf(t, cg, "shared"))
	}
	assert.Len(t, views, 3)
}

func TestCompileExpansionHonorsViewFilter(t *testing.T) {
	b := NewBuilder(1, []uint16{0, 1, 2}, nil)
	filtered := mustBuild(t, NewPass("filtered").
		IterateAllViews().
		RestrictToViews(1, 2).
		SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(filtered))

	cg, err := b.Compile()
	require.NoError(t, err)
	require.Len(t, cg.Order, 2)
	for _, sp := range cg.Order {
		assert.NotEqual(t, uint16(0), sp.Pass.ViewID())
	}
}

func TestCompileExplicitDependencyOnExpandedPass(t *testing.T) {
	b := NewBuilder(1, []uint16{0, 1}, nil)
	perView := mustBuild(t, NewPass("per-view").IterateAllViews().SetExecutor(noopExecutor))
	after := mustBuild(t, NewPass("after").DependsOn(perView.Handle()).SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(after))
	require.NoError(t, b.AddPass(perView))

	cg, err := b.Compile()
	require.NoError(t, err)
	require.Len(t, cg.Order, 3)
	// Depending on an expanded pass means depending on all its clones.
	assert.Equal(t, "after", cg.Order[2].Pass.Name())
}

func TestCompileRejectsUnboundExecutor(t *testing.T) {
	b := NewBuilder(1, nil, nil)
	p := mustBuild(t, NewPass("late-unbind").SetExecutor(noopExecutor))
	require.NoError(t, b.AddPass(p))

	// An executor lost between submission and compile must fail the
	// frame's graph rather than execute as a silent no-op.
	p.executor = nil
	_, err := b.Compile()
	assert.ErrorIs(t, err, ErrNoExecutor)
}

func TestAddPassValidatesResources(t *testing.T) {
	a := metadata.NewResourceHandle(0, 0)
	stale := metadata.NewResourceHandle(1, 0)

	validate := func(h metadata.ResourceHandle) error {
		if h == stale {
			return assert.AnError
		}
		return nil
	}

	b := NewBuilder(1, nil, validate)
	ok := mustBuild(t, NewPass("ok").Read(a, metadata.ResourceStateShaderRead).SetExecutor(noopExecutor))
	bad := mustBuild(t, NewPass("bad").Write(stale, metadata.ResourceStateRenderTarget).SetExecutor(noopExecutor))

	assert.NoError(t, b.AddPass(ok))
	assert.Error(t, b.AddPass(bad))
	assert.Equal(t, 1, b.PassCount())
}

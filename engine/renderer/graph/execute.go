package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/systems"
)

// Execute runs every scheduled pass through the job system's queue
// lanes. Passes on different queues run concurrently; dependency edges
// are enforced by waiting on the upstream pass's completion before a
// pass starts, which is also where cross-queue synchronization points
// land. Executor failures do not cancel downstream passes (passes are
// not cancellable); they are collected and returned together.
func (cg *CompiledGraph) Execute(jobs *systems.JobSystem, commands CommandSubmitter) error {
	if jobs == nil || commands == nil {
		return fmt.Errorf("graph execution requires a job system and a command submitter")
	}

	done := make([]chan struct{}, len(cg.Order))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var mu sync.Mutex
	var errs []error
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for i, sp := range cg.Order {
		i, sp := i, sp
		task := systems.JobTask{
			Name: sp.Pass.Name(),
			OnStart: func() error {
				// done must close even on failure or downstream passes
				// would wait forever.
				defer close(done[i])
				for _, dep := range sp.deps {
					<-done[dep]
				}
				if len(sp.Transitions) > 0 {
					if err := commands.ApplyTransitions(sp.Pass.Queue(), sp.Transitions); err != nil {
						return fmt.Errorf("pass '%s' transitions: %w", sp.Pass.Name(), err)
					}
				}
				ctx := &ExecutionContext{
					FrameNumber: cg.Frame,
					ViewID:      sp.Pass.ViewID(),
					PassName:    sp.Pass.Name(),
					Queue:       sp.Pass.Queue(),
					Commands:    commands,
				}
				if err := sp.Pass.executor(ctx); err != nil {
					return fmt.Errorf("pass '%s': %w", sp.Pass.Name(), err)
				}
				return nil
			},
			OnFailure: record,
		}
		if err := jobs.Submit(sp.Pass.Queue(), task); err != nil {
			close(done[i])
			record(err)
		}
	}

	for _, ch := range done {
		<-ch
	}

	if len(errs) > 0 {
		core.LogError("frame %d graph execution finished with %d failed passes", cg.Frame, len(errs))
		return errors.Join(errs...)
	}
	return nil
}

package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

/** @brief A unit of work submitted to a queue lane. */
type JobTask struct {
	Name      string
	OnStart   func() error
	OnFailure func(err error)
}

// JobSystem fans work out across one lane per GPU queue type. With one
// worker per lane, tasks on the same lane run in submission order, which
// is what keeps same-queue passes in their scheduled order; cross-lane
// ordering is the submitter's problem (the graph encodes it as wait
// edges inside the tasks it submits).
type JobSystem struct {
	workersPerLane int
	lanes          map[metadata.QueueType]chan JobTask
	wg             sync.WaitGroup
}

func NewJobSystem(workersPerLane int, channelSize int) (*JobSystem, error) {
	if workersPerLane <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		workersPerLane: workersPerLane,
		lanes:          make(map[metadata.QueueType]chan JobTask),
	}
	for _, queue := range []metadata.QueueType{metadata.QueueTypeGraphics, metadata.QueueTypeCompute, metadata.QueueTypeCopy} {
		js.lanes[queue] = make(chan JobTask, channelSize)
		js.startLane(queue)
	}
	return js, nil
}

func (js *JobSystem) startLane(queue metadata.QueueType) {
	lane := js.lanes[queue]
	for i := 0; i < js.workersPerLane; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range lane {
				if err := job.OnStart(); err != nil {
					core.LogError("job '%s' on %s lane failed: %s", job.Name, queue.String(), err.Error())
					if job.OnFailure != nil {
						job.OnFailure(err)
					}
				}
			}
		}()
	}
}

// Submit queues the job on its lane. Blocks when the lane is full.
func (js *JobSystem) Submit(queue metadata.QueueType, job JobTask) error {
	lane, ok := js.lanes[queue]
	if !ok {
		return fmt.Errorf("no lane for queue type %s", queue.String())
	}
	lane <- job
	return nil
}

/**
 * @brief Shuts the job system down, draining every lane.
 */
func (js *JobSystem) Shutdown() error {
	for _, lane := range js.lanes {
		close(lane)
	}
	js.wg.Wait()
	return nil
}

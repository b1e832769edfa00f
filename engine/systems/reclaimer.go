package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/aurora/engine/containers"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

/**
 * @brief The external GPU completion signal. CompletedFrame reports the
 * highest frame number whose submitted work the GPU has confirmed done.
 * It must never go backwards; the reclaimer tolerates (and logs) a
 * regression by clamping to its own watermark.
 */
type CompletionSignal interface {
	CompletedFrame() uint64
}

/** @brief One retired resource awaiting safe physical release. */
type RetirementRecord struct {
	Handle metadata.ResourceHandle
	// SubmittedFrame is the frame whose GPU work may still reference the
	// resource. Release is legal only once that frame is confirmed done.
	SubmittedFrame uint64
	DebugName      string
}

/** @brief The configuration for the reclaim system. */
type ReclaimSystemConfig struct {
	// MaxPendingCount bounds the retirement queue. There can never be
	// more pending reclaims than registry slots, so size it to match.
	MaxPendingCount uint32
}

// ReclaimSystem delays physical release of retired resources until the
// GPU has confirmed completion of every frame that could reference them.
// ScheduleReclaim and ProcessCompletedFrames may run on different
// goroutines; a single mutex serializes them.
type ReclaimSystem struct {
	mutex   sync.Mutex
	pending *containers.RingQueue[RetirementRecord]
	signal  CompletionSignal
	// lastDrained is the highest completed frame already processed. It
	// makes draining idempotent per frame index.
	lastDrained uint64
	releaser    func(RetirementRecord)
}

func NewReclaimSystem(config *ReclaimSystemConfig, signal CompletionSignal) (*ReclaimSystem, error) {
	if config.MaxPendingCount == 0 {
		return nil, fmt.Errorf("func NewReclaimSystem - config.MaxPendingCount must be > 0")
	}
	if signal == nil {
		return nil, fmt.Errorf("func NewReclaimSystem - a completion signal is required")
	}
	return &ReclaimSystem{
		pending: containers.NewRingQueue[RetirementRecord](int(config.MaxPendingCount)),
		signal:  signal,
	}, nil
}

// SetReleaser installs the callback invoked for every drained record.
// The system manager points this at the resource system's release path.
func (rs *ReclaimSystem) SetReleaser(releaser func(RetirementRecord)) {
	rs.mutex.Lock()
	rs.releaser = releaser
	rs.mutex.Unlock()
}

// ScheduleReclaim appends a retirement record. It never blocks; a full
// queue is an exhaustion error for the caller.
func (rs *ReclaimSystem) ScheduleReclaim(handle metadata.ResourceHandle, submittedFrame uint64, debugName string) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	record := RetirementRecord{
		Handle:         handle,
		SubmittedFrame: submittedFrame,
		DebugName:      debugName,
	}
	if err := rs.pending.Enqueue(record); err != nil {
		core.LogError("reclaim queue exhausted, cannot retire %s (%s)", debugName, handle.String())
		return fmt.Errorf("failed to schedule reclaim for %s: %w", debugName, err)
	}
	core.LogDebug("scheduled reclaim of %s (%s) for frame %d", debugName, handle.String(), submittedFrame)
	return nil
}

// ProcessCompletedFrames polls the completion signal and releases every
// record whose submitted frame is confirmed done, returning the number
// released. Records enqueue in nondecreasing frame order, so draining
// stops at the first record still outstanding. Calling again with no new
// completions releases nothing.
func (rs *ReclaimSystem) ProcessCompletedFrames() int {
	rs.mutex.Lock()

	completed := rs.signal.CompletedFrame()
	if completed < rs.lastDrained {
		core.LogWarn("completion signal regressed from %d to %d, ignoring", rs.lastDrained, completed)
		completed = rs.lastDrained
	}
	frameAdvanced := completed > rs.lastDrained

	released := 0
	for {
		record, err := rs.pending.Peek()
		if err != nil || record.SubmittedFrame > completed {
			break
		}
		record, _ = rs.pending.Dequeue()
		if rs.releaser != nil {
			rs.releaser(record)
		}
		core.LogDebug("released %s (%s), submitted frame %d <= completed %d",
			record.DebugName, record.Handle.String(), record.SubmittedFrame, completed)
		released++
	}
	rs.lastDrained = completed

	// Events fire unlocked so a listener may call back into the reclaimer.
	rs.mutex.Unlock()

	if frameAdvanced {
		ctx := core.EventContext{}
		ctx.Data.U64[0] = completed
		core.EventFire(core.EVENT_CODE_FRAME_COMPLETED, rs, ctx)
	}
	if released > 0 {
		core.MetricsAddResourcesReclaimed(released)
		ctx := core.EventContext{}
		ctx.Data.U32[0] = uint32(released)
		ctx.Data.U64[0] = completed
		core.EventFire(core.EVENT_CODE_RESOURCES_RECLAIMED, rs, ctx)
	}
	return released
}

// PendingCount reports how many retirement records await release.
func (rs *ReclaimSystem) PendingCount() int {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	return rs.pending.Len()
}

// LastDrainedFrame reports the completion watermark.
func (rs *ReclaimSystem) LastDrainedFrame() uint64 {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	return rs.lastDrained
}

/**
 * @brief The result of a reclaimer invariant check. A failing report
 * indicates a logic bug to be caught in testing, not a runtime condition
 * to recover from, so it is returned rather than asserted.
 */
type InvariantReport struct {
	OK           bool
	PendingCount int
	Violations   []string
}

// CheckInvariants verifies the reclaimer's bookkeeping against the
// registry's view of the world.
func (rs *ReclaimSystem) CheckInvariants(retiredCount uint32, currentFrame uint64) InvariantReport {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	report := InvariantReport{OK: true, PendingCount: rs.pending.Len()}
	if uint32(rs.pending.Len()) > retiredCount {
		report.OK = false
		report.Violations = append(report.Violations,
			fmt.Sprintf("%d pending reclaims exceed %d retired resources", rs.pending.Len(), retiredCount))
	}
	if rs.lastDrained > currentFrame {
		report.OK = false
		report.Violations = append(report.Violations,
			fmt.Sprintf("drain watermark %d is ahead of current frame %d", rs.lastDrained, currentFrame))
	}
	return report
}

func (rs *ReclaimSystem) Shutdown() error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	if !rs.pending.IsEmpty() {
		core.LogWarn("reclaim system shutting down with %d records still pending", rs.pending.Len())
	}
	return nil
}

package core

import "sync"

const AVG_COUNT uint8 = 30

type MetricsState struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64

	// cumulative counters, guarded by countersMutex
	countersMutex      sync.Mutex
	PassesScheduled    uint64
	ResourcesReclaimed uint64
	TablesPublished    uint64
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{
			MStimes: [AVG_COUNT]float64{0},
		}
	})
	return nil
}

func MetricsUpdate(frameElapsedTime float64) {
	// Calculate frame ms average
	frameMS := (frameElapsedTime * 1000.0)
	metricsState.MStimes[metricsState.FrameAVGCounter] = frameMS
	if metricsState.FrameAVGCounter == AVG_COUNT-1 {
		for i := uint8(0); i < AVG_COUNT; i++ {
			metricsState.MSavg += metricsState.MStimes[i]
		}
		metricsState.MSavg /= float64(AVG_COUNT)
	}
	metricsState.FrameAVGCounter++
	metricsState.FrameAVGCounter %= AVG_COUNT

	// Calculate frames per second.
	metricsState.AccumulatedFrameMS += frameMS
	if metricsState.AccumulatedFrameMS > 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
	}

	// Count all frames.
	metricsState.Frames++
}

func MetricsAddPassesScheduled(n int) {
	if metricsState == nil {
		return
	}
	metricsState.countersMutex.Lock()
	metricsState.PassesScheduled += uint64(n)
	metricsState.countersMutex.Unlock()
}

func MetricsAddResourcesReclaimed(n int) {
	if metricsState == nil {
		return
	}
	metricsState.countersMutex.Lock()
	metricsState.ResourcesReclaimed += uint64(n)
	metricsState.countersMutex.Unlock()
}

func MetricsAddTablePublished() {
	if metricsState == nil {
		return
	}
	metricsState.countersMutex.Lock()
	metricsState.TablesPublished++
	metricsState.countersMutex.Unlock()
}

func MetricsFPS() float64 {
	return metricsState.FPS
}

func MetricsFrameTime() float64 {
	return metricsState.MSavg
}

func MetricsFrame() (float64, float64) {
	return metricsState.FPS, metricsState.MSavg
}

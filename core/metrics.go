package core

import "sync"

const avgCount uint8 = 30

// MetricsState tracks a rolling frame-time average and an FPS counter,
// fed by the render executor once per completed frame.
type MetricsState struct {
	frameAvgCounter    uint8
	msTimes            [avgCount]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

var onceMetrics sync.Once
var metricsState *MetricsState

func MetricsInitialize() {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{}
	})
}

// MetricsUpdate records one frame's elapsed time, in seconds.
func MetricsUpdate(frameElapsedTime float64) {
	if metricsState == nil {
		MetricsInitialize()
	}

	frameMS := frameElapsedTime * 1000.0
	metricsState.msTimes[metricsState.frameAvgCounter] = frameMS
	if metricsState.frameAvgCounter == avgCount-1 {
		var sum float64
		for i := uint8(0); i < avgCount; i++ {
			sum += metricsState.msTimes[i]
		}
		metricsState.msAvg = sum / float64(avgCount)
	}
	metricsState.frameAvgCounter++
	metricsState.frameAvgCounter %= avgCount

	metricsState.accumulatedFrameMS += frameMS
	if metricsState.accumulatedFrameMS > 1000 {
		metricsState.fps = float64(metricsState.frames)
		metricsState.accumulatedFrameMS -= 1000
		metricsState.frames = 0
	}
	metricsState.frames++
}

// MetricsFrame returns the current (fps, average frame-ms) pair.
func MetricsFrame() (float64, float64) {
	if metricsState == nil {
		return 0, 0
	}
	return metricsState.fps, metricsState.msAvg
}

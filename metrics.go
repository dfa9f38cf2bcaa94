package seisgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordShot is called after each single-shot modeling pass.
	// duration is the total time taken, err is nil if successful.
	RecordShot(duration time.Duration, err error)

	// RecordEvaluate is called after each objective evaluation.
	// shots is the number of sources in the batch, misfit the resulting
	// objective value.
	RecordEvaluate(shots int, misfit float64, duration time.Duration, err error)

	// RecordCheckpointReplay is called for each replayed segment during
	// checkpointed gradient computation.
	RecordCheckpointReplay(steps int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordShot(time.Duration, error)                   {}
func (NoopMetricsCollector) RecordEvaluate(int, float64, time.Duration, error) {}
func (NoopMetricsCollector) RecordCheckpointReplay(int)                        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ShotCount          atomic.Int64
	ShotErrors         atomic.Int64
	ShotTotalNanos     atomic.Int64
	EvaluateCount      atomic.Int64
	EvaluateErrors     atomic.Int64
	EvaluateTotalNanos atomic.Int64
	EvaluateShots      atomic.Int64
	ReplaySegments     atomic.Int64
	ReplaySteps        atomic.Int64
}

// RecordShot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordShot(duration time.Duration, err error) {
	b.ShotCount.Add(1)
	b.ShotTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ShotErrors.Add(1)
	}
}

// RecordEvaluate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEvaluate(shots int, misfit float64, duration time.Duration, err error) {
	b.EvaluateCount.Add(1)
	b.EvaluateShots.Add(int64(shots))
	b.EvaluateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.EvaluateErrors.Add(1)
	}
}

// RecordCheckpointReplay implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpointReplay(steps int) {
	b.ReplaySegments.Add(1)
	b.ReplaySteps.Add(int64(steps))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ShotCount:        b.ShotCount.Load(),
		ShotErrors:       b.ShotErrors.Load(),
		ShotAvgNanos:     b.avgShotNanos(),
		EvaluateCount:    b.EvaluateCount.Load(),
		EvaluateErrors:   b.EvaluateErrors.Load(),
		EvaluateAvgNanos: b.avgEvaluateNanos(),
		EvaluateShots:    b.EvaluateShots.Load(),
		ReplaySegments:   b.ReplaySegments.Load(),
		ReplaySteps:      b.ReplaySteps.Load(),
	}
}

func (b *BasicMetricsCollector) avgShotNanos() int64 {
	count := b.ShotCount.Load()
	if count == 0 {
		return 0
	}
	return b.ShotTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) avgEvaluateNanos() int64 {
	count := b.EvaluateCount.Load()
	if count == 0 {
		return 0
	}
	return b.EvaluateTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ShotCount        int64
	ShotErrors       int64
	ShotAvgNanos     int64
	EvaluateCount    int64
	EvaluateErrors   int64
	EvaluateAvgNanos int64
	EvaluateShots    int64
	ReplaySegments   int64
	ReplaySteps      int64
}

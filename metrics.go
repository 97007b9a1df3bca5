package rodb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    saveCounter   prometheus.Counter
//	    loadHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSave(resource string, duration time.Duration, err error) {
//	    p.saveCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordSave is called after each object store.
	// duration is the total time taken, err is nil if successful.
	RecordSave(resource string, duration time.Duration, err error)

	// RecordLoad is called after each object load. cached reports whether
	// the identity map already held the object.
	RecordLoad(resource string, cached bool, duration time.Duration, err error)

	// RecordIndexLookup is called after each FindBy.
	RecordIndexLookup(resource string, duration time.Duration, err error)

	// RecordFlush is called after each flush of indexes and manifest.
	RecordFlush(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSave(string, time.Duration, error)        {}
func (NoopMetricsCollector) RecordLoad(string, bool, time.Duration, error)  {}
func (NoopMetricsCollector) RecordIndexLookup(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SaveCount        atomic.Int64
	SaveErrors       atomic.Int64
	SaveTotalNanos   atomic.Int64
	LoadCount        atomic.Int64
	LoadCacheHits    atomic.Int64
	LoadErrors       atomic.Int64
	LoadTotalNanos   atomic.Int64
	LookupCount      atomic.Int64
	LookupErrors     atomic.Int64
	LookupTotalNanos atomic.Int64
	FlushCount       atomic.Int64
	FlushErrors      atomic.Int64
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(_ string, duration time.Duration, err error) {
	b.SaveCount.Add(1)
	b.SaveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SaveErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(_ string, cached bool, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if cached {
		b.LoadCacheHits.Add(1)
	}
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordIndexLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIndexLookup(_ string, duration time.Duration, err error) {
	b.LookupCount.Add(1)
	b.LookupTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LookupErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(_ time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SaveCount:      b.SaveCount.Load(),
		SaveErrors:     b.SaveErrors.Load(),
		SaveAvgNanos:   avgNanos(b.SaveTotalNanos.Load(), b.SaveCount.Load()),
		LoadCount:      b.LoadCount.Load(),
		LoadCacheHits:  b.LoadCacheHits.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		LoadAvgNanos:   avgNanos(b.LoadTotalNanos.Load(), b.LoadCount.Load()),
		LookupCount:    b.LookupCount.Load(),
		LookupErrors:   b.LookupErrors.Load(),
		LookupAvgNanos: avgNanos(b.LookupTotalNanos.Load(), b.LookupCount.Load()),
		FlushCount:     b.FlushCount.Load(),
		FlushErrors:    b.FlushErrors.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SaveCount      int64
	SaveErrors     int64
	SaveAvgNanos   int64
	LoadCount      int64
	LoadCacheHits  int64
	LoadErrors     int64
	LoadAvgNanos   int64
	LookupCount    int64
	LookupErrors   int64
	LookupAvgNanos int64
	FlushCount     int64
	FlushErrors    int64
}

package cache

import (
	"sync/atomic"
)

// Metrics receives cache events for reporting. Implement this interface to
// integrate with a process-wide metrics registry; the cache manager accepts
// a handle at construction instead of reaching into a singleton.
type Metrics interface {
	// MarkBytesWritten is called with the body size after each successful
	// page store write
	MarkBytesWritten(n int64)
	// MarkBytesEvicted is called with the body size after each page removal
	MarkBytesEvicted(n int64)
	// MarkPagesEvicted is called once per page removal
	MarkPagesEvicted(n int64)

	// IncPutError / IncGetError / IncDeleteError count underlying I/O failures
	IncPutError()
	IncGetError()
	IncDeleteError()

	// RegisterSpaceGauges is called once at construction with callbacks
	// reporting the current used and available byte counts
	RegisterSpaceGauges(spaceUsed func() int64, spaceAvailable func() int64)
}

// NopMetrics is a no-op implementation of Metrics
type NopMetrics struct{}

func (NopMetrics) MarkBytesWritten(int64)                         {}
func (NopMetrics) MarkBytesEvicted(int64)                         {}
func (NopMetrics) MarkPagesEvicted(int64)                         {}
func (NopMetrics) IncPutError()                                   {}
func (NopMetrics) IncGetError()                                   {}
func (NopMetrics) IncDeleteError()                                {}
func (NopMetrics) RegisterSpaceGauges(func() int64, func() int64) {}

// BasicMetrics provides simple in-memory metrics collection, useful for
// tests and basic monitoring without an external registry.
type BasicMetrics struct {
	BytesWrittenCache atomic.Int64
	BytesEvictedCache atomic.Int64
	PagesEvictedCache atomic.Int64
	PutErrors         atomic.Int64
	GetErrors         atomic.Int64
	DeleteErrors      atomic.Int64

	spaceUsed      func() int64
	spaceAvailable func() int64
}

// NewBasicMetrics creates a new BasicMetrics
func NewBasicMetrics() *BasicMetrics {
	return &BasicMetrics{}
}

// MarkBytesWritten implements Metrics
func (metrics *BasicMetrics) MarkBytesWritten(n int64) {
	metrics.BytesWrittenCache.Add(n)
}

// MarkBytesEvicted implements Metrics
func (metrics *BasicMetrics) MarkBytesEvicted(n int64) {
	metrics.BytesEvictedCache.Add(n)
}

// MarkPagesEvicted implements Metrics
func (metrics *BasicMetrics) MarkPagesEvicted(n int64) {
	metrics.PagesEvictedCache.Add(n)
}

// IncPutError implements Metrics
func (metrics *BasicMetrics) IncPutError() {
	metrics.PutErrors.Add(1)
}

// IncGetError implements Metrics
func (metrics *BasicMetrics) IncGetError() {
	metrics.GetErrors.Add(1)
}

// IncDeleteError implements Metrics
func (metrics *BasicMetrics) IncDeleteError() {
	metrics.DeleteErrors.Add(1)
}

// RegisterSpaceGauges implements Metrics
func (metrics *BasicMetrics) RegisterSpaceGauges(spaceUsed func() int64, spaceAvailable func() int64) {
	metrics.spaceUsed = spaceUsed
	metrics.spaceAvailable = spaceAvailable
}

// SpaceUsed returns the current used byte count
func (metrics *BasicMetrics) SpaceUsed() int64 {
	if metrics.spaceUsed == nil {
		return 0
	}
	return metrics.spaceUsed()
}

// SpaceAvailable returns the current available byte count
func (metrics *BasicMetrics) SpaceAvailable() int64 {
	if metrics.spaceAvailable == nil {
		return 0
	}
	return metrics.spaceAvailable()
}

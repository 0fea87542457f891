package io

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

const (
	prefetchTriggerRatio float32 = 0.3 // determine when to start prefetch
	prefetchConcurrency  int64   = 4
)

// Prefetcher schedules background loads of upcoming pages during sequential
// reads. Concurrent loads are bounded by a weighted semaphore; when no slot
// is free the prefetch is skipped rather than queued.
type Prefetcher struct {
	prefetchMap map[int64]bool
	pageSize    int
	fetch       func(pageIndex int64)

	semaphore *semaphore.Weighted
	waiter    sync.WaitGroup
	mutex     sync.Mutex
}

// NewPrefetcher creates a new Prefetcher
func NewPrefetcher(pageSize int, fetch func(pageIndex int64)) *Prefetcher {
	return &Prefetcher{
		prefetchMap: map[int64]bool{},
		pageSize:    pageSize,
		fetch:       fetch,

		semaphore: semaphore.NewWeighted(prefetchConcurrency),
	}
}

// Release waits for in-flight prefetches
func (prefetcher *Prefetcher) Release() {
	prefetcher.waiter.Wait()
}

// Determine schedules a prefetch of the next page when the read passed a
// certain point, e.g., 30% of its last page
func (prefetcher *Prefetcher) Determine(offset int64, length int64) {
	lastOffset := offset + length - 1
	lastSpan := spanForOffset(prefetcher.pageSize, lastOffset, 1)

	triggerPoint := float32(prefetcher.pageSize) * prefetchTriggerRatio
	if lastSpan.inPageOffset < int(triggerPoint) {
		return
	}

	targetPageIndex := lastSpan.pageIndex + 1

	prefetcher.mutex.Lock()

	// if target page is already prefetched
	if _, ok := prefetcher.prefetchMap[targetPageIndex]; ok {
		prefetcher.mutex.Unlock()
		return
	}

	if !prefetcher.semaphore.TryAcquire(1) {
		prefetcher.mutex.Unlock()
		return
	}

	prefetcher.prefetchMap[targetPageIndex] = true
	prefetcher.mutex.Unlock()

	prefetcher.waiter.Add(1)
	go func() {
		defer prefetcher.waiter.Done()
		defer prefetcher.semaphore.Release(1)

		prefetcher.fetch(targetPageIndex)
	}()
}

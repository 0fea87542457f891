package cache

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
)

// LRUEvictor implements Evictor with least-recently-used ordering
type LRUEvictor struct {
	lru   *simplelru.LRU
	mutex sync.Mutex
}

// NewLRUEvictor creates a new LRUEvictor
func NewLRUEvictor() *LRUEvictor {
	// the list is used as an access-ordered set; the cache manager bounds
	// residency, so the list itself must never evict
	lru, err := simplelru.NewLRU(math.MaxInt32, nil)
	if err != nil {
		// NewLRU fails only on a non-positive size
		panic(err)
	}

	return &LRUEvictor{
		lru: lru,
	}
}

// UpdateOnGet promotes the page to most-recently-used
func (evictor *LRUEvictor) UpdateOnGet(pageID PageID) {
	evictor.mutex.Lock()
	defer evictor.mutex.Unlock()

	evictor.lru.Get(pageID)
}

// UpdateOnPut starts tracking the page as most-recently-used
func (evictor *LRUEvictor) UpdateOnPut(pageID PageID) {
	evictor.mutex.Lock()
	defer evictor.mutex.Unlock()

	evictor.lru.Add(pageID, nil)
}

// UpdateOnDelete stops tracking the page
func (evictor *LRUEvictor) UpdateOnDelete(pageID PageID) {
	evictor.mutex.Lock()
	defer evictor.mutex.Unlock()

	evictor.lru.Remove(pageID)
}

// Evict returns the least-recently-used page among tracked ids
func (evictor *LRUEvictor) Evict() (PageID, bool) {
	evictor.mutex.Lock()
	defer evictor.mutex.Unlock()

	key, _, ok := evictor.lru.GetOldest()
	if !ok {
		return PageID{}, false
	}
	return key.(PageID), true
}

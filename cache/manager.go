package cache

import (
	"hash/fnv"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	// lockStripes is the size of the page lock pool. Pages hashing to the
	// same stripe share a lock; collisions merely serialize unrelated pages.
	lockStripes = 1024
)

// CacheManager manages and serves cached pages. It coordinates the meta
// store, the page store and the evictor for thread-safety and enforces the
// byte budget.
//
// Lock hierarchy. All operations must follow this order to operate on pages:
//  1. acquire the corresponding page lock(s)
//  2. acquire the metadata lock
//  3. update the meta store
//  4. release the metadata lock
//  5. update the page store and the evictor
//  6. release the page lock(s)
type CacheManager struct {
	pageSizeMax int64
	cacheSize   int64

	metaStore MetaStore // guarded by metaLock
	pageStore PageStore
	evictor   Evictor
	metrics   Metrics

	pageLocks [lockStripes]sync.RWMutex
	metaLock  sync.RWMutex
}

// NewCacheManager creates a new CacheManager over the given collaborators
// and reloads whatever pages the page store enumerates. On failure the page
// store is closed before returning.
func NewCacheManager(pageSizeMax int64, cacheBytes int64, metaStore MetaStore, pageStore PageStore, evictor Evictor, metrics Metrics) (*CacheManager, error) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "CacheManager",
		"function": "NewCacheManager",
	})

	manager := &CacheManager{
		pageSizeMax: pageSizeMax,
		cacheSize:   int64(float64(cacheBytes) / (1.0 + pageStore.OverheadRatio())),

		metaStore: metaStore,
		pageStore: pageStore,
		evictor:   evictor,
		metrics:   metrics,
	}

	pageInfos, err := pageStore.Pages()
	if err != nil {
		if closeErr := pageStore.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("failed to close page store")
		}
		return nil, xerrors.Errorf("failed to enumerate existing pages: %w", err)
	}

	logger.Infof("creating cache manager with %d existing pages", len(pageInfos))

	for _, pageInfo := range pageInfos {
		metaStore.Add(pageInfo.PageID, pageInfo)
		evictor.UpdateOnPut(pageInfo.PageID)
	}

	metrics.RegisterSpaceGauges(
		func() int64 {
			return pageStore.Bytes()
		},
		func() int64 {
			return manager.cacheSize - pageStore.Bytes()
		},
	)

	return manager, nil
}

// PageSizeMax returns the maximum bytes of a single page body
func (manager *CacheManager) PageSizeMax() int64 {
	return manager.pageSizeMax
}

// CacheSize returns the effective byte budget
func (manager *CacheManager) CacheSize() int64 {
	return manager.cacheSize
}

// pageLockID returns the lock stripe for the given page
func (manager *CacheManager) pageLockID(pageID PageID) int {
	hash := fnv.New32a()
	hash.Write([]byte(pageID.FileID))
	return floorMod(int64(int32(hash.Sum32()))+pageID.PageIndex, lockStripes)
}

// pageLockPair returns the lock stripes for two pages in acquisition order
func (manager *CacheManager) pageLockPair(pageID1 PageID, pageID2 PageID) (int, int) {
	lockID1 := manager.pageLockID(pageID1)
	lockID2 := manager.pageLockID(pageID2)
	if lockID1 < lockID2 {
		return lockID1, lockID2
	}
	return lockID2, lockID1
}

// Put stores a page body under the given id. Returns false when the page is
// already resident, a racing thread won the insert or evicted the chosen
// victim, or the underlying store failed.
func (manager *CacheManager) Put(pageID PageID, data []byte) bool {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "CacheManager",
		"function": "Put",
	})

	logger.Debugf("put(%s, %d bytes) enters", pageID, len(data))

	var victim PageID
	hasVictim := false
	enoughSpace := false

	lockID := manager.pageLockID(pageID)
	manager.pageLocks[lockID].Lock()

	manager.metaLock.Lock()
	if manager.metaStore.Has(pageID) {
		manager.metaLock.Unlock()
		manager.pageLocks[lockID].Unlock()
		logger.Debugf("%s is already inserted before", pageID)
		return false
	}

	enoughSpace = manager.pageStore.Bytes()+int64(len(data)) <= manager.cacheSize
	if enoughSpace {
		manager.metaStore.Add(pageID, NewPageInfo(pageID, int64(len(data))))
	} else {
		victim, hasVictim = manager.evictor.Evict()
	}
	manager.metaLock.Unlock()

	if enoughSpace {
		ok := manager.addPage(pageID, data)
		manager.pageLocks[lockID].Unlock()
		logger.Debugf("put(%s, %d bytes) exits without eviction, success: %t", pageID, len(data), ok)
		return ok
	}

	manager.pageLocks[lockID].Unlock()

	if !hasVictim {
		logger.Debugf("put(%s, %d bytes) fails, no eviction candidate", pageID, len(data))
		return false
	}

	// eviction path; two page locks in ascending stripe order
	lockIDLow, lockIDHigh := manager.pageLockPair(pageID, victim)
	manager.pageLocks[lockIDLow].Lock()
	if lockIDHigh != lockIDLow {
		manager.pageLocks[lockIDHigh].Lock()
	}
	defer func() {
		if lockIDHigh != lockIDLow {
			manager.pageLocks[lockIDHigh].Unlock()
		}
		manager.pageLocks[lockIDLow].Unlock()
	}()

	manager.metaLock.Lock()
	if manager.metaStore.Has(pageID) {
		manager.metaLock.Unlock()
		logger.Debugf("%s is already inserted by a racing thread", pageID)
		return false
	}
	if !manager.metaStore.Has(victim) {
		manager.metaLock.Unlock()
		logger.Debugf("victim %s is already evicted by a racing thread", victim)
		return false
	}

	victimInfo, err := manager.metaStore.Info(victim)
	if err != nil {
		manager.metaLock.Unlock()
		logger.WithError(err).Errorf("meta store is missing victim page %s", victim)
		return false
	}
	if err := manager.metaStore.Remove(victim); err != nil {
		manager.metaLock.Unlock()
		logger.WithError(err).Errorf("meta store is missing victim page %s", victim)
		return false
	}

	enoughSpace = manager.pageStore.Bytes()-victimInfo.PageSize+int64(len(data)) <= manager.cacheSize
	if enoughSpace {
		manager.metaStore.Add(pageID, NewPageInfo(pageID, int64(len(data))))
	}
	manager.metaLock.Unlock()

	if !manager.deletePage(victim, victimInfo) {
		logger.Debugf("failed to evict page %s", victim)
		return false
	}

	if enoughSpace {
		ok := manager.addPage(pageID, data)
		logger.Debugf("put(%s, %d bytes) exits after evicting %s, success: %t", pageID, len(data), victimInfo, ok)
		return ok
	}

	logger.Debugf("put(%s, %d bytes) fails after evicting %s", pageID, len(data), victimInfo)
	return false
}

// Get returns a reader over the page body starting at pageOffset, or nil if
// the page is not resident. pageOffset outside [0, pageSizeMax] is a
// programmer error and panics.
func (manager *CacheManager) Get(pageID PageID, pageOffset int64) io.ReadCloser {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "CacheManager",
		"function": "Get",
	})

	if pageOffset < 0 || pageOffset > manager.pageSizeMax {
		panic(xerrors.Errorf("read exceeds page boundary: offset=%d size=%d", pageOffset, manager.pageSizeMax))
	}

	logger.Debugf("get(%s, pageOffset=%d) enters", pageID, pageOffset)

	lockID := manager.pageLockID(pageID)
	manager.pageLocks[lockID].RLock()
	defer manager.pageLocks[lockID].RUnlock()

	manager.metaLock.RLock()
	hasPage := manager.metaStore.Has(pageID)
	manager.metaLock.RUnlock()

	if !hasPage {
		logger.Debugf("get(%s, pageOffset=%d) fails due to page not found", pageID, pageOffset)
		return nil
	}

	reader := manager.getPage(pageID, pageOffset)
	logger.Debugf("get(%s, pageOffset=%d) exits", pageID, pageOffset)
	return reader
}

// Delete removes a resident page. Returns true iff both the metadata and
// the stored bytes were removed.
func (manager *CacheManager) Delete(pageID PageID) bool {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "CacheManager",
		"function": "Delete",
	})

	logger.Debugf("delete(%s) enters", pageID)

	lockID := manager.pageLockID(pageID)
	manager.pageLocks[lockID].Lock()
	defer manager.pageLocks[lockID].Unlock()

	manager.metaLock.Lock()
	pageInfo, err := manager.metaStore.Info(pageID)
	if err == nil {
		err = manager.metaStore.Remove(pageID)
	}
	if err != nil {
		manager.metaLock.Unlock()
		logger.WithError(err).Errorf("failed to delete page %s", pageID)
		manager.metrics.IncDeleteError()
		return false
	}
	manager.metaLock.Unlock()

	ok := manager.deletePage(pageID, pageInfo)
	logger.Debugf("delete(%s) exits, success: %t", pageID, ok)
	return ok
}

// Close closes the underlying page store. Operations after Close are
// undefined.
func (manager *CacheManager) Close() error {
	return manager.pageStore.Close()
}

// addPage writes a page body to the page store. The page write lock must be
// held and the meta store must be updated before calling this method.
func (manager *CacheManager) addPage(pageID PageID, data []byte) bool {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "CacheManager",
		"function": "addPage",
	})

	err := manager.pageStore.Put(pageID, data)
	if err != nil {
		logger.WithError(err).Errorf("failed to add page %s", pageID)
		manager.metrics.IncPutError()
		return false
	}

	manager.evictor.UpdateOnPut(pageID)
	manager.metrics.MarkBytesWritten(int64(len(data)))
	return true
}

// deletePage removes a page body from the page store. The page write lock
// must be held and the meta store must be updated before calling this
// method.
func (manager *CacheManager) deletePage(pageID PageID, pageInfo PageInfo) bool {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "CacheManager",
		"function": "deletePage",
	})

	err := manager.pageStore.Delete(pageID, pageInfo.PageSize)
	if err != nil {
		logger.WithError(err).Errorf("failed to delete page %s", pageID)
		manager.metrics.IncDeleteError()
		return false
	}

	manager.evictor.UpdateOnDelete(pageID)
	manager.metrics.MarkBytesEvicted(pageInfo.PageSize)
	manager.metrics.MarkPagesEvicted(1)
	return true
}

// getPage opens a reader over a page body. The page read lock must be held.
func (manager *CacheManager) getPage(pageID PageID, pageOffset int64) io.ReadCloser {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "CacheManager",
		"function": "getPage",
	})

	reader, err := manager.pageStore.Get(pageID, pageOffset)
	if err != nil {
		logger.WithError(err).Errorf("failed to get existing page %s", pageID)
		manager.metrics.IncGetError()
		return nil
	}

	manager.evictor.UpdateOnGet(pageID)
	return reader
}

// floorMod returns the floored modulus of x and y, matching the page index
// arithmetic even for negative hash values
func floorMod(x int64, y int64) int {
	mod := x % y
	if mod < 0 {
		mod += y
	}
	return int(mod)
}

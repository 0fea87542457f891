// Package pagecache provides a client-side, on-disk paged cache used to
// accelerate repeated reads of remote files. Files are partitioned into
// fixed-size pages; page bodies live in a local page store while presence
// and eviction order are tracked in memory.
package pagecache

import (
	"golang.org/x/xerrors"

	"github.com/remotefs-io/pagecache/cache"
	"github.com/remotefs-io/pagecache/cache/disk"
	"github.com/remotefs-io/pagecache/config"
)

// New assembles a cache manager from the given configuration: a disk page
// store under the configured data root, the configured eviction policy, and
// a fresh meta store reloaded from whatever the store enumerates.
func New(cfg *config.Config, metrics cache.Metrics) (cache.Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	pageStore, err := disk.NewDiskPageStore(cfg.DataRootPath, cfg.OverheadRatio)
	if err != nil {
		return nil, xerrors.Errorf("failed to create disk page store: %w", err)
	}

	var evictor cache.Evictor
	switch cfg.EvictionPolicy {
	case config.EvictionPolicyLFU:
		evictor = cache.NewLFUEvictor()
	default:
		evictor = cache.NewLRUEvictor()
	}

	if metrics == nil {
		metrics = cache.NopMetrics{}
	}

	return cache.NewCacheManager(cfg.PageSize, cfg.CacheSize, cache.NewMetaStore(), pageStore, evictor, metrics)
}

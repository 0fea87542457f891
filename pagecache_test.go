package pagecache

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remotefs-io/pagecache/cache"
	"github.com/remotefs-io/pagecache/config"
)

func TestNew(t *testing.T) {
	t.Run("test PutAndGet", testPutAndGet)
	t.Run("test InvalidConfig", testInvalidConfig)
	t.Run("test ReloadAcrossManagers", testReloadAcrossManagers)
	t.Run("test LFUPolicy", testLFUPolicy)
}

func makeTestConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.DataRootPath = t.TempDir()
	cfg.PageSize = 1024
	cfg.CacheSize = 8 * 1024
	return cfg
}

func testPutAndGet(t *testing.T) {
	manager, err := New(makeTestConfig(t), nil)
	require.NoError(t, err)
	defer manager.Close()

	pageID := cache.NewPageID("/remote/file1", 0)
	data := []byte("hello pages")

	assert.True(t, manager.Put(pageID, data))

	reader := manager.Get(pageID, 0)
	require.NotNil(t, reader)
	defer reader.Close()

	read, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func testInvalidConfig(t *testing.T) {
	cfg := makeTestConfig(t)
	cfg.EvictionPolicy = "random"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func testReloadAcrossManagers(t *testing.T) {
	cfg := makeTestConfig(t)

	manager, err := New(cfg, nil)
	require.NoError(t, err)

	pageID := cache.NewPageID("/remote/file1", 2)
	data := []byte("survives reload")

	assert.True(t, manager.Put(pageID, data))
	require.NoError(t, manager.Close())

	reloaded, err := New(cfg, nil)
	require.NoError(t, err)
	defer reloaded.Close()

	reader := reloaded.Get(pageID, 0)
	require.NotNil(t, reader)
	defer reader.Close()

	read, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func testLFUPolicy(t *testing.T) {
	cfg := makeTestConfig(t)
	cfg.EvictionPolicy = config.EvictionPolicyLFU
	cfg.CacheSize = 2048
	cfg.OverheadRatio = 0

	manager, err := New(cfg, nil)
	require.NoError(t, err)
	defer manager.Close()

	page0 := cache.NewPageID("/remote/file1", 0)
	page1 := cache.NewPageID("/remote/file1", 1)

	assert.True(t, manager.Put(page0, make([]byte, 1024)))
	assert.True(t, manager.Put(page1, make([]byte, 1024)))

	// page0 is the hotter page
	for i := 0; i < 3; i++ {
		reader := manager.Get(page0, 0)
		require.NotNil(t, reader)
		reader.Close()
	}

	// inserting a third page evicts the least-frequently-used page1
	assert.True(t, manager.Put(cache.NewPageID("/remote/file1", 2), make([]byte, 1024)))
	assert.Nil(t, manager.Get(page1, 0))

	reader := manager.Get(page0, 0)
	require.NotNil(t, reader)
	reader.Close()
}

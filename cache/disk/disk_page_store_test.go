package disk

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remotefs-io/pagecache/cache"
)

func TestDiskPageStore(t *testing.T) {
	t.Run("test PutAndGet", testPutAndGet)
	t.Run("test PutNoOverwrite", testPutNoOverwrite)
	t.Run("test GetMissing", testGetMissing)
	t.Run("test Delete", testDelete)
	t.Run("test Pages", testPages)
	t.Run("test PagesRebuildBytes", testPagesRebuildBytes)
}

func makeTestStore(t *testing.T) *DiskPageStore {
	store, err := NewDiskPageStore(t.TempDir(), 0.05)
	require.NoError(t, err)
	return store
}

func testPutAndGet(t *testing.T) {
	store := makeTestStore(t)
	defer store.Close()

	pageID := cache.NewPageID("/data/file1", 2)
	data := []byte("0123456789")

	require.NoError(t, store.Put(pageID, data))
	assert.Equal(t, int64(len(data)), store.Bytes())

	reader, err := store.Get(pageID, 0)
	require.NoError(t, err)
	read, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)
	assert.Equal(t, data, read)

	// read at offset
	reader, err = store.Get(pageID, 4)
	require.NoError(t, err)
	read, err = io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)
	assert.Equal(t, []byte("456789"), read)
}

func testPutNoOverwrite(t *testing.T) {
	store := makeTestStore(t)
	defer store.Close()

	pageID := cache.NewPageID("/data/file1", 0)

	require.NoError(t, store.Put(pageID, []byte("aaaa")))
	assert.Error(t, store.Put(pageID, []byte("bbbb")))
	assert.Equal(t, int64(4), store.Bytes())
}

func testGetMissing(t *testing.T) {
	store := makeTestStore(t)
	defer store.Close()

	_, err := store.Get(cache.NewPageID("/data/file1", 0), 0)
	assert.ErrorIs(t, err, cache.ErrPageNotFound)
}

func testDelete(t *testing.T) {
	store := makeTestStore(t)
	defer store.Close()

	pageID := cache.NewPageID("/data/file1", 0)

	require.NoError(t, store.Put(pageID, []byte("aaaa")))
	require.NoError(t, store.Delete(pageID, 4))
	assert.Equal(t, int64(0), store.Bytes())

	err := store.Delete(pageID, 4)
	assert.ErrorIs(t, err, cache.ErrPageNotFound)
}

func testPages(t *testing.T) {
	rootPath := t.TempDir()

	store, err := NewDiskPageStore(rootPath, 0.05)
	require.NoError(t, err)

	page0 := cache.NewPageID("/data/file1", 0)
	page1 := cache.NewPageID("/data/file1", 1)
	page2 := cache.NewPageID("/data/file2", 7)

	require.NoError(t, store.Put(page0, []byte("aaaa")))
	require.NoError(t, store.Put(page1, []byte("bbbbbb")))
	require.NoError(t, store.Put(page2, []byte("cc")))
	require.NoError(t, store.Close())

	// reopen over the same directory
	reopened, err := NewDiskPageStore(rootPath, 0.05)
	require.NoError(t, err)
	defer reopened.Close()

	pageInfos, err := reopened.Pages()
	require.NoError(t, err)
	require.Len(t, pageInfos, 3)

	sizes := map[cache.PageID]int64{}
	for _, pageInfo := range pageInfos {
		sizes[pageInfo.PageID] = pageInfo.PageSize
	}

	assert.Equal(t, int64(4), sizes[page0])
	assert.Equal(t, int64(6), sizes[page1])
	assert.Equal(t, int64(2), sizes[page2])
}

func testPagesRebuildBytes(t *testing.T) {
	rootPath := t.TempDir()

	store, err := NewDiskPageStore(rootPath, 0.05)
	require.NoError(t, err)

	require.NoError(t, store.Put(cache.NewPageID("/data/file1", 0), []byte("aaaa")))
	require.NoError(t, store.Close())

	reopened, err := NewDiskPageStore(rootPath, 0.05)
	require.NoError(t, err)
	defer reopened.Close()

	// the counter is rebuilt by enumeration
	assert.Equal(t, int64(0), reopened.Bytes())

	_, err = reopened.Pages()
	require.NoError(t, err)
	assert.Equal(t, int64(4), reopened.Bytes())
}

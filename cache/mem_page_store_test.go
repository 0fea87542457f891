package cache

import (
	"bytes"
	"io"
	"sync"

	"golang.org/x/xerrors"
)

// memPageStore is an in-memory PageStore for tests, with optional failure
// injection per operation
type memPageStore struct {
	pages map[PageID][]byte
	bytes int64
	mutex sync.Mutex

	failPut    bool
	failGet    bool
	failDelete bool
}

func newMemPageStore() *memPageStore {
	return &memPageStore{
		pages: map[PageID][]byte{},
	}
}

func (store *memPageStore) Put(pageID PageID, data []byte) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.failPut {
		return xerrors.Errorf("injected put failure for %s", pageID)
	}

	if _, ok := store.pages[pageID]; ok {
		return xerrors.Errorf("page %s already exists", pageID)
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	store.pages[pageID] = stored
	store.bytes += int64(len(data))
	return nil
}

func (store *memPageStore) Get(pageID PageID, offset int64) (io.ReadCloser, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.failGet {
		return nil, xerrors.Errorf("injected get failure for %s", pageID)
	}

	data, ok := store.pages[pageID]
	if !ok {
		return nil, xerrors.Errorf("failed to get page %s: %w", pageID, ErrPageNotFound)
	}

	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func (store *memPageStore) Delete(pageID PageID, expectedSize int64) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.failDelete {
		return xerrors.Errorf("injected delete failure for %s", pageID)
	}

	if _, ok := store.pages[pageID]; !ok {
		return xerrors.Errorf("failed to delete page %s: %w", pageID, ErrPageNotFound)
	}

	delete(store.pages, pageID)
	store.bytes -= expectedSize
	return nil
}

func (store *memPageStore) Bytes() int64 {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	return store.bytes
}

func (store *memPageStore) Pages() ([]PageInfo, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	pageInfos := []PageInfo{}
	for pageID, data := range store.pages {
		pageInfos = append(pageInfos, NewPageInfo(pageID, int64(len(data))))
	}
	return pageInfos, nil
}

func (store *memPageStore) OverheadRatio() float64 {
	return 0
}

func (store *memPageStore) Close() error {
	return nil
}

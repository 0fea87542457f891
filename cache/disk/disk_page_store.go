package disk

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/remotefs-io/pagecache/cache"
	"github.com/remotefs-io/pagecache/utils"
)

const (
	fileIDName = ".fileid"
)

// DiskPageStore implements cache.PageStore on the local filesystem.
// Pages are stored one file per page under root/<sha1(fileID)>/<pageIndex>;
// each file directory carries a name index so enumeration can recover the
// original file id.
type DiskPageStore struct {
	rootPath      string
	overheadRatio float64

	bytes int64
	mutex sync.Mutex
}

// NewDiskPageStore creates a new DiskPageStore under the given root path
func NewDiskPageStore(rootPath string, overheadRatio float64) (*DiskPageStore, error) {
	err := os.MkdirAll(rootPath, 0766)
	if err != nil {
		return nil, xerrors.Errorf("failed to make dir %s: %w", rootPath, err)
	}

	return &DiskPageStore{
		rootPath:      rootPath,
		overheadRatio: overheadRatio,
	}, nil
}

// GetRootPath returns root path of the page store
func (store *DiskPageStore) GetRootPath() string {
	return store.rootPath
}

// pagePath returns the data file path for the given page
func (store *DiskPageStore) pagePath(pageID cache.PageID) string {
	hash := utils.MakeHash(pageID.FileID)
	return filepath.Join(store.rootPath, hash, strconv.FormatInt(pageID.PageIndex, 10))
}

// Put writes the page body. Overwriting an existing page is an error.
func (store *DiskPageStore) Put(pageID cache.PageID, data []byte) error {
	pagePath := store.pagePath(pageID)
	fileDir := filepath.Dir(pagePath)

	if _, err := os.Stat(pagePath); err == nil {
		return xerrors.Errorf("page %s already exists at %s", pageID, pagePath)
	}

	err := os.MkdirAll(fileDir, 0766)
	if err != nil {
		return xerrors.Errorf("failed to make dir %s: %w", fileDir, err)
	}

	fileIDPath := filepath.Join(fileDir, fileIDName)
	if _, err := os.Stat(fileIDPath); errors.Is(err, os.ErrNotExist) {
		err = os.WriteFile(fileIDPath, []byte(pageID.FileID), 0666)
		if err != nil {
			return xerrors.Errorf("failed to write file id index %s: %w", fileIDPath, err)
		}
	}

	// write to a temp file, then rename into place so readers never observe
	// a partial page body
	tempPath := filepath.Join(fileDir, ".tmp-"+xid.New().String())
	err = os.WriteFile(tempPath, data, 0666)
	if err != nil {
		os.Remove(tempPath)
		return xerrors.Errorf("failed to write page file %s: %w", tempPath, err)
	}

	err = os.Rename(tempPath, pagePath)
	if err != nil {
		os.Remove(tempPath)
		return xerrors.Errorf("failed to rename page file %s: %w", pagePath, err)
	}

	store.mutex.Lock()
	store.bytes += int64(len(data))
	store.mutex.Unlock()

	return nil
}

// Get returns a reader over the page body starting at offset
func (store *DiskPageStore) Get(pageID cache.PageID, offset int64) (io.ReadCloser, error) {
	pagePath := store.pagePath(pageID)

	f, err := os.Open(pagePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, xerrors.Errorf("failed to open page file %s: %w", pagePath, cache.ErrPageNotFound)
		}
		return nil, xerrors.Errorf("failed to open page file %s: %w", pagePath, err)
	}

	_, err = f.Seek(offset, io.SeekStart)
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("failed to seek page file %s: %w", pagePath, err)
	}

	return f, nil
}

// Delete removes the page body of the given expected size
func (store *DiskPageStore) Delete(pageID cache.PageID, expectedSize int64) error {
	pagePath := store.pagePath(pageID)

	err := os.Remove(pagePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return xerrors.Errorf("failed to remove page file %s: %w", pagePath, cache.ErrPageNotFound)
		}
		return xerrors.Errorf("failed to remove page file %s: %w", pagePath, err)
	}

	store.mutex.Lock()
	store.bytes -= expectedSize
	store.mutex.Unlock()

	return nil
}

// Bytes returns the total stored bytes
func (store *DiskPageStore) Bytes() int64 {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	return store.bytes
}

// Pages enumerates the stored pages and rebuilds the byte counter
func (store *DiskPageStore) Pages() ([]cache.PageInfo, error) {
	logger := log.WithFields(log.Fields{
		"package":  "disk",
		"struct":   "DiskPageStore",
		"function": "Pages",
	})

	fileDirs, err := os.ReadDir(store.rootPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to read dir %s: %w", store.rootPath, err)
	}

	pageInfos := []cache.PageInfo{}
	totalBytes := int64(0)

	for _, fileDir := range fileDirs {
		if !fileDir.IsDir() {
			continue
		}

		fileDirPath := filepath.Join(store.rootPath, fileDir.Name())
		fileIDData, err := os.ReadFile(filepath.Join(fileDirPath, fileIDName))
		if err != nil {
			logger.WithError(err).Errorf("failed to read file id index in %s, skipping", fileDirPath)
			continue
		}
		fileID := string(fileIDData)

		pageFiles, err := os.ReadDir(fileDirPath)
		if err != nil {
			return nil, xerrors.Errorf("failed to read dir %s: %w", fileDirPath, err)
		}

		for _, pageFile := range pageFiles {
			if pageFile.IsDir() {
				continue
			}

			pageIndex, err := strconv.ParseInt(pageFile.Name(), 10, 64)
			if err != nil {
				// name index and leftover temp files
				continue
			}

			pageFileInfo, err := pageFile.Info()
			if err != nil {
				return nil, xerrors.Errorf("failed to stat page file %s: %w", pageFile.Name(), err)
			}

			pageInfos = append(pageInfos, cache.NewPageInfo(cache.NewPageID(fileID, pageIndex), pageFileInfo.Size()))
			totalBytes += pageFileInfo.Size()
		}
	}

	store.mutex.Lock()
	store.bytes = totalBytes
	store.mutex.Unlock()

	return pageInfos, nil
}

// OverheadRatio returns the storage overhead per stored byte
func (store *DiskPageStore) OverheadRatio() float64 {
	return store.overheadRatio
}

// Close releases all resources
func (store *DiskPageStore) Close() error {
	return nil
}

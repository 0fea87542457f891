package io

import (
	"io"
	"strconv"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/remotefs-io/pagecache/cache"
)

type pageData struct {
	data []byte
	eof  bool
}

// pageSpan is the slice of one page covered by a read request
type pageSpan struct {
	pageIndex    int64
	inPageOffset int
	length       int
}

// spanForOffset returns the page span starting at offset, capped to the
// remaining request length
func spanForOffset(pageSize int, offset int64, remaining int) pageSpan {
	span := pageSpan{
		pageIndex:    offset / int64(pageSize),
		inPageOffset: int(offset % int64(pageSize)),
	}

	span.length = pageSize - span.inPageOffset
	if span.length > remaining {
		span.length = remaining
	}
	return span
}

// CachedReader helps read through the page cache. Missing pages are fetched
// from the base reader, stored back into the cache, and served from there on
// later reads. Concurrent fetches of the same page are collapsed into one.
type CachedReader struct {
	path   string
	fileID string

	manager  cache.Manager
	reader   Reader
	pageSize int

	fetchGroup singleflight.Group
	prefetcher *Prefetcher
}

// NewCachedReader creates a new CachedReader. fileID must be stable across
// readers of the same remote file version (e.g. path plus checksum).
// pageSize must match the cache manager's page size.
func NewCachedReader(fileID string, manager cache.Manager, reader Reader, pageSize int) Reader {
	cachedReader := &CachedReader{
		path:   reader.GetPath(),
		fileID: fileID,

		manager:  manager,
		reader:   reader,
		pageSize: pageSize,
	}

	cachedReader.prefetcher = NewPrefetcher(pageSize, cachedReader.prefetchPage)
	return cachedReader
}

// Release releases all resources
func (reader *CachedReader) Release() {
	if reader.prefetcher != nil {
		reader.prefetcher.Release()
		reader.prefetcher = nil
	}

	if reader.manager != nil {
		// the cache manager is shared across readers
		reader.manager = nil
	}

	if reader.reader != nil {
		reader.reader.Release()
		reader.reader = nil
	}
}

// GetPath returns path of the file
func (reader *CachedReader) GetPath() string {
	return reader.path
}

// ReadAt reads data
func (reader *CachedReader) ReadAt(buffer []byte, offset int64) (int, error) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "CachedReader",
		"function": "ReadAt",
	})

	if len(buffer) <= 0 || offset < 0 {
		return 0, nil
	}

	logger.Debugf("reading through cache - %s, offset %d, length %d", reader.path, offset, len(buffer))

	currentOffset := offset
	totalReadLen := 0
	for totalReadLen < len(buffer) {
		span := spanForOffset(reader.pageSize, currentOffset, len(buffer)-totalReadLen)

		readLen, err := reader.readPage(buffer[totalReadLen:totalReadLen+span.length], span)
		totalReadLen += readLen
		currentOffset += int64(readLen)

		if err == io.EOF {
			return totalReadLen, io.EOF
		}
		if err != nil {
			return 0, err
		}
		if readLen < span.length {
			// a short page without EOF; do not spin on it
			break
		}
	}

	reader.prefetcher.Determine(offset, int64(len(buffer)))

	return totalReadLen, nil
}

// readPage serves one page span from the cache, falling back to the base
// reader on a miss
func (reader *CachedReader) readPage(buffer []byte, span pageSpan) (int, error) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "CachedReader",
		"function": "readPage",
	})

	pageID := cache.NewPageID(reader.fileID, span.pageIndex)

	pageReader := reader.manager.Get(pageID, int64(span.inPageOffset))
	if pageReader != nil {
		defer pageReader.Close()

		logger.Debugf("cache for page %d found - read from cache", span.pageIndex)

		totalReadLen := 0
		for totalReadLen < len(buffer) {
			readLen, err := pageReader.Read(buffer[totalReadLen:])
			totalReadLen += readLen
			if err == io.EOF {
				if totalReadLen < len(buffer) {
					// short page, the file ends within it
					return totalReadLen, io.EOF
				}
				return totalReadLen, nil
			}
			if err != nil {
				return 0, err
			}
		}
		return totalReadLen, nil
	}

	// read from remote, through cache
	logger.Debugf("cache for page %d not found - read from remote", span.pageIndex)

	page, err := reader.fetchPage(span.pageIndex)
	if err != nil {
		return 0, err
	}

	if span.inPageOffset >= len(page.data) {
		if page.eof {
			return 0, io.EOF
		}
		return 0, nil
	}

	copyLen := copy(buffer, page.data[span.inPageOffset:])
	if page.eof && span.inPageOffset+copyLen == len(page.data) {
		return copyLen, io.EOF
	}
	return copyLen, nil
}

// fetchPage reads a whole page from the base reader and stores it back into
// the cache. Concurrent fetches of the same page share one remote read.
func (reader *CachedReader) fetchPage(pageIndex int64) (*pageData, error) {
	fetched, err, _ := reader.fetchGroup.Do(strconv.FormatInt(pageIndex, 10), func() (interface{}, error) {
		logger := log.WithFields(log.Fields{
			"package":  "io",
			"struct":   "CachedReader",
			"function": "fetchPage",
		})

		logger.Debugf("fetching a page - %s, page index %d", reader.path, pageIndex)

		pageStartOffset := pageIndex * int64(reader.pageSize)

		pageBuffer := make([]byte, reader.pageSize)
		readLen, err := reader.reader.ReadAt(pageBuffer, pageStartOffset)
		if err != nil && err != io.EOF {
			return nil, err
		}

		page := &pageData{
			data: pageBuffer[:readLen],
			eof:  err == io.EOF || readLen < reader.pageSize,
		}

		if readLen > 0 {
			pageID := cache.NewPageID(reader.fileID, pageIndex)
			if !reader.manager.Put(pageID, page.data) {
				// already resident or cache full; served from memory anyway
				logger.Debugf("failed to cache page %d", pageIndex)
			}
		}

		return page, nil
	})
	if err != nil {
		return nil, err
	}

	return fetched.(*pageData), nil
}

// prefetchPage loads a page into the cache in the background
func (reader *CachedReader) prefetchPage(pageIndex int64) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "CachedReader",
		"function": "prefetchPage",
	})

	pageID := cache.NewPageID(reader.fileID, pageIndex)

	if pageReader := reader.manager.Get(pageID, 0); pageReader != nil {
		pageReader.Close()
		return
	}

	if _, err := reader.fetchPage(pageIndex); err != nil {
		// prefetch is best effort
		logger.WithError(err).Debugf("failed to prefetch page %d", pageIndex)
	}
}

func (reader *CachedReader) GetPendingError() error {
	if reader.reader != nil {
		return reader.reader.GetPendingError()
	}
	return nil
}

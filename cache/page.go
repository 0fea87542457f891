package cache

import (
	"fmt"
)

// PageID identifies a single page of a remote file. A page is addressed by
// the file it belongs to and its index within that file.
type PageID struct {
	FileID    string
	PageIndex int64
}

// NewPageID creates a new PageID
func NewPageID(fileID string, pageIndex int64) PageID {
	return PageID{
		FileID:    fileID,
		PageIndex: pageIndex,
	}
}

// Key returns the canonical string form of the page id
func (pageID PageID) Key() string {
	return fmt.Sprintf("%s:%d", pageID.FileID, pageID.PageIndex)
}

// String returns the string representation used for log output
func (pageID PageID) String() string {
	return fmt.Sprintf("PageID{FileID: %s, PageIndex: %d}", pageID.FileID, pageID.PageIndex)
}

// PageInfo holds the metadata of a resident page. Immutable once recorded.
type PageInfo struct {
	PageID   PageID
	PageSize int64
}

// NewPageInfo creates a new PageInfo
func NewPageInfo(pageID PageID, pageSize int64) PageInfo {
	return PageInfo{
		PageID:   pageID,
		PageSize: pageSize,
	}
}

// String returns the string representation used for log output
func (pageInfo PageInfo) String() string {
	return fmt.Sprintf("PageInfo{PageID: %s, PageSize: %d}", pageInfo.PageID.Key(), pageInfo.PageSize)
}

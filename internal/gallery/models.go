package gallery

import (
	"time"

	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/remote"
)

// UploadInput is one asset upload.
type UploadInput struct {
	Filename   string
	Content    []byte
	MimeType   string
	Uploader   string
	Visibility remote.Visibility
	AlbumID    string
}

// SearchQuery filters and orders public assets.
type SearchQuery struct {
	Text    string
	Type    string
	MinSize int64
	MaxSize int64
	From    time.Time
	To      time.Time
	Sort    string
	Page    int
	Limit   int
}

// Pagination describes one page of a result set.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Page is a paginated slice of assets.
type Page struct {
	Items      []index.AssetRecord `json:"items"`
	Pagination Pagination          `json:"pagination"`
	Omissions  []index.Omission    `json:"omissions,omitempty"`
}

// Tag is a bucket name with the number of assets in it.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TagSummary groups public assets by format and size bucket.
type TagSummary struct {
	Tags        []Tag            `json:"tags"`
	TotalImages int              `json:"totalImages"`
	ByFormat    []Tag            `json:"byFormat"`
	BySize      []Tag            `json:"bySize"`
	Omissions   []index.Omission `json:"omissions,omitempty"`
}

// Bulk actions.
const (
	BulkGet    = "get"
	BulkInfo   = "info"
	BulkDelete = "delete"
)

// BulkRequest names one action over up to maxBulkItems asset ids.
type BulkRequest struct {
	Action string
	IDs    []string
	Caller string
}

// AssetInfo is the existence summary returned by the info action.
type AssetInfo struct {
	Exists     bool      `json:"exists"`
	Filename   string    `json:"filename,omitempty"`
	Size       int64     `json:"size,omitempty"`
	MimeType   string    `json:"mimeType,omitempty"`
	UploadedAt time.Time `json:"uploadedAt,omitempty"`
	Uploader   string    `json:"uploader,omitempty"`
}

// BulkItem is the outcome for one id.
type BulkItem struct {
	ImageID string             `json:"imageId"`
	Success bool               `json:"success"`
	Error   string             `json:"error,omitempty"`
	Image   *index.AssetRecord `json:"image,omitempty"`
	Info    *AssetInfo         `json:"info,omitempty"`
}

// BulkResult summarizes a bulk action.
type BulkResult struct {
	Action     string           `json:"action"`
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Items      []BulkItem       `json:"items"`
	Omissions  []index.Omission `json:"omissions,omitempty"`
}

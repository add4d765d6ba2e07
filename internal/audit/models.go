package audit

import "time"

// Stage names where an orphaned blob was left behind.
const (
	StageUpload = "upload"
	StageDelete = "delete"
)

// OrphanedBlob is a blob committed to a repository without a matching index record.
type OrphanedBlob struct {
	Owner      string    `json:"owner"`
	Repository string    `json:"repository"`
	Path       string    `json:"path"`
	AssetID    string    `json:"imageId"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recordedAt"`
}

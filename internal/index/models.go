package index

import (
	"time"

	"github.com/abduss/picvault/internal/remote"
)

// Index file names inside every storage repository.
const (
	AssetsPath = "metadata.json"
	AlbumsPath = "albums.json"
)

// Ref addresses one index file.
type Ref struct {
	Owner string
	Repo  string
	Path  string
}

// Record is an index entry addressable by id.
type Record interface {
	Key() string
}

// AssetRecord is one entry of metadata.json.
type AssetRecord struct {
	ID         string    `json:"imageId"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
	Uploader   string    `json:"uploader"`
	Repository string    `json:"repository"`
	RawURL     string    `json:"rawUrl"`
	Private    bool      `json:"isPrivate,omitempty"`
	AlbumID    string    `json:"albumId,omitempty"`
}

func (a AssetRecord) Key() string { return a.ID }

// Visibility reports the repository visibility the asset was uploaded with.
func (a AssetRecord) Visibility() remote.Visibility {
	if a.Private {
		return remote.Private
	}
	return remote.Public
}

// AlbumRecord is one entry of albums.json.
type AlbumRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CoverImage  string    `json:"coverImage,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ImageCount  int       `json:"imageCount"`
	TotalSize   int64     `json:"totalSize"`
	Repository  string    `json:"repository"`
	Tags        []string  `json:"tags"`
	Owner       string    `json:"owner"`
	Images      []string  `json:"images"`
}

func (a AlbumRecord) Key() string { return a.ID }

// HasImage reports whether id is a member.
func (a AlbumRecord) HasImage(id string) bool {
	for _, m := range a.Images {
		if m == id {
			return true
		}
	}
	return false
}

// Document is the raw content of an index file with its concurrency token.
// Token is empty when the file does not exist yet.
type Document struct {
	Content []byte
	Token   string
}

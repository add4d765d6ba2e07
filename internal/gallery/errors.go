package gallery

import (
	"errors"

	"github.com/abduss/picvault/internal/album"
	"github.com/abduss/picvault/internal/allocator"
	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/remote"
)

var (
	// ErrAssetNotFound signals that the repository's index has no record for the id.
	ErrAssetNotFound = errors.New("gallery: asset not found")
	// ErrInvalidUpload signals an empty or malformed upload.
	ErrInvalidUpload = errors.New("gallery: invalid upload")
	// ErrTooLarge signals an upload above the configured size limit.
	ErrTooLarge = errors.New("gallery: upload too large")
	// ErrUnsupportedType signals content that is not a supported image format.
	ErrUnsupportedType = errors.New("gallery: unsupported content type")
	// ErrInvalidQuery signals unusable search parameters.
	ErrInvalidQuery = errors.New("gallery: invalid query")
	// ErrLookupIncomplete signals a miss while some repository could not be read.
	ErrLookupIncomplete = errors.New("gallery: lookup incomplete")
	// ErrForbidden signals an album change by someone other than its owner.
	ErrForbidden = errors.New("gallery: forbidden")

	errBlobMissing = errors.New("gallery: blob missing")
)

// Kind is the user-facing category of a failure.
type Kind string

const (
	KindNone      Kind = ""
	KindReauth    Kind = "reauthenticate"
	KindCapacity  Kind = "capacity_exhausted"
	KindForbidden Kind = "forbidden"
	KindNotFound  Kind = "not_found"
	KindConflict  Kind = "conflict"
	KindInvalid   Kind = "invalid"
	KindTooLarge  Kind = "too_large"
	KindRetryable Kind = "retryable"
)

// Classify maps err to the category the caller should act on. Anything not
// recognised collapses to KindRetryable.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, remote.ErrPermissionDenied):
		return KindReauth
	case errors.Is(err, allocator.ErrCapacityExhausted):
		return KindCapacity
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrAssetNotFound),
		errors.Is(err, album.ErrAlbumNotFound),
		errors.Is(err, index.ErrRecordNotFound):
		return KindNotFound
	case errors.Is(err, album.ErrNotMember),
		errors.Is(err, index.ErrDuplicateRecord):
		return KindConflict
	case errors.Is(err, ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, ErrInvalidUpload),
		errors.Is(err, ErrUnsupportedType),
		errors.Is(err, ErrInvalidQuery),
		errors.Is(err, album.ErrInvalidAlbum):
		return KindInvalid
	default:
		return KindRetryable
	}
}

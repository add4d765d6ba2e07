package album

import "errors"

var (
	// ErrAlbumNotFound signals that no storage repository indexes the album id.
	ErrAlbumNotFound = errors.New("album: not found")
	// ErrNotMember signals a removal of an image the album does not contain.
	ErrNotMember = errors.New("album: image is not a member")
	// ErrInvalidAlbum signals missing or malformed album fields.
	ErrInvalidAlbum = errors.New("album: invalid album")
)

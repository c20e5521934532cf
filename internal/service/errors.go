package service

import "errors"

// Client-input errors. Handlers map these to 400 responses; no job record
// is created when one of them fires.
var (
	ErrEmptyImage          = errors.New("image data is empty")
	ErrImageTooLarge       = errors.New("image exceeds the maximum allowed size")
	ErrNoPhotos            = errors.New("batch contains no photos")
	ErrTooManyPhotos       = errors.New("batch exceeds the photo limit")
	ErrMalformedPhoto      = errors.New("each photo must include both index and data")
	ErrDuplicatePhotoIndex = errors.New("batch contains duplicate photo indexes")
)

package domain

import "errors"

var (
	// ErrImageTypeNotSupported is returned for images that cannot be decoded.
	ErrImageTypeNotSupported = errors.New("image type not supported")
	// ErrImageTooLarge is returned for images above the configured input size limit.
	ErrImageTooLarge = errors.New("image too large")
	// ErrImageEmpty is returned when no image data was provided.
	ErrImageEmpty = errors.New("image empty")
)

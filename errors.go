package vistag

import "errors"

var (
	// ErrInvalidImage is the parent of every image-reference error. A
	// request that fails with it never reached the inference service.
	ErrInvalidImage = errors.New("vistag: invalid image reference")

	// ErrEmptyImageRef is returned for a blank image reference.
	ErrEmptyImageRef = errors.New("vistag: empty image reference")

	// ErrImageNotFound is returned when a local image path does not exist.
	ErrImageNotFound = errors.New("vistag: image not found")

	// ErrUnsupportedImage is returned for local files that are not jpeg, png or webp.
	ErrUnsupportedImage = errors.New("vistag: unsupported image format")

	// ErrImageTooLarge is returned when a local image exceeds MaxImageBytes.
	ErrImageTooLarge = errors.New("vistag: image too large")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("vistag: invalid configuration")

	// ErrClosed is returned when using a tagger after Close.
	ErrClosed = errors.New("vistag: tagger is closed")
)

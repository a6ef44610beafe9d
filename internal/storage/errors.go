package storage

import "errors"

// Expected failure kinds. The transport layer maps these to status codes;
// everything else wrapped out of this package is a storage or processing
// failure.
var (
	// ErrNotFound reports that the requested image, or the original needed
	// to generate a requested size, does not exist or cannot be read.
	ErrNotFound = errors.New("image not found")

	// ErrEmptyUpload reports a zero-byte upload.
	ErrEmptyUpload = errors.New("failed to store empty file")

	// ErrUnsupportedFormat reports a file extension outside the encoder's
	// supported set. Checked before any file is written.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

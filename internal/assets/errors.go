package assets

import "errors"

var (
	// ErrUploadsDisabled is returned when a gallery's upload toggle is off.
	ErrUploadsDisabled = errors.New("uploads are disabled for this gallery")

	// ErrDownloadsDisabled is returned when a gallery's download toggle is off.
	ErrDownloadsDisabled = errors.New("downloads are disabled for this gallery")

	// ErrTooLarge is returned when a file exceeds the configured size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrInvalidType is returned when the declared MIME type is not an
	// allowed image type.
	ErrInvalidType = errors.New("invalid file type, allowed: JPEG, PNG, GIF, WebP")

	// ErrInvalidImage is returned when the content does not decode as an
	// image, regardless of the declared type.
	ErrInvalidImage = errors.New("invalid image file")

	// ErrBatchTooLarge is returned when a batch exceeds the per-call file cap.
	ErrBatchTooLarge = errors.New("too many files in one batch")

	// ErrFileNotFound is returned when no file matches the given name.
	ErrFileNotFound = errors.New("file not found")

	// ErrAccessDenied is returned when a resolved path escapes the gallery
	// directory, via traversal or symlinks.
	ErrAccessDenied = errors.New("access denied")

	// ErrMoveFailed is returned when a reject/restore rename fails.
	ErrMoveFailed = errors.New("failed to move file")

	// ErrWriteFailed is returned when an upload cannot be written to disk.
	ErrWriteFailed = errors.New("failed to save file")

	// ErrDeleteFailed is returned when a file cannot be unlinked.
	ErrDeleteFailed = errors.New("failed to delete file")
)

package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common errors surfaced at the API boundary.
var (
	// ErrInvalidChannelID indicates a channel index outside [0, max_channels).
	ErrInvalidChannelID = errors.New("invalid channel id")

	// ErrChannelNotFound indicates an operation on an unregistered channel.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrSourceNotFound indicates the channel's original media file is missing.
	ErrSourceNotFound = errors.New("original file not found")

	// ErrThumbnailNotFound indicates no thumbnail exists for the channel.
	ErrThumbnailNotFound = errors.New("thumbnail not found")

	// ErrInvalidCodec indicates a codec outside {copy, h264, h265}.
	ErrInvalidCodec = errors.New("invalid codec")

	// ErrInvalidBitrate indicates a malformed bitrate literal.
	ErrInvalidBitrate = errors.New("invalid bitrate literal")

	// ErrUnsupportedExtension indicates an upload with a disallowed file type.
	ErrUnsupportedExtension = errors.New("unsupported file type")

	// ErrFileExists indicates an upload would overwrite an existing file
	// without overwrite permission.
	ErrFileExists = errors.New("file already exists")

	// ErrNoFile indicates an upload request without a file part.
	ErrNoFile = errors.New("no file in request")

	// ErrMediaPathNotFound indicates a media path update pointing at a
	// directory that does not exist.
	ErrMediaPathNotFound = errors.New("media path not found")
)

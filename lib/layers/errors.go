package layers

import "errors"

var (
	// ErrExtraction wraps every failure to unpack a layer
	ErrExtraction = errors.New("layer extraction failed")
	// ErrArchiveTooLarge is returned when extracted content exceeds the size limit
	ErrArchiveTooLarge = errors.New("archive content exceeds size limit")
	// ErrInvalidArchivePath is returned when a tar entry has a malicious path
	ErrInvalidArchivePath = errors.New("invalid archive path")
)

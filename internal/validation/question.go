package validation

import (
	"errors"
	"strings"
)

const (
	MaxBatchIDs        = 100
	maxImagesPerEntry  = 32
	maxImageURLLength  = 512
	maxContentByteSize = 1 << 20
)

var (
	ErrContentRequired = errors.New("content is required")
	ErrContentTooLong  = errors.New("content is too long")
	ErrTooManyImages   = errors.New("too many images")
	ErrInvalidImageURL = errors.New("invalid image url")
)

// ValidateContent checks question and answer bodies.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrContentRequired
	}
	if len(content) > maxContentByteSize {
		return ErrContentTooLong
	}
	return nil
}

// ValidateImageURLs checks the image list attached to a question or answer.
func ValidateImageURLs(urls []string) error {
	if len(urls) > maxImagesPerEntry {
		return ErrTooManyImages
	}
	for _, url := range urls {
		if url == "" || len(url) > maxImageURLLength {
			return ErrInvalidImageURL
		}
	}
	return nil
}

package images

import (
	"errors"
	"slices"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedType is returned for uploads that are not a supported image.
var ErrUnsupportedType = errors.New("unsupported image type")

var supportedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// DetectType sniffs the image type from its magic bytes and returns the MIME
// type and canonical extension. The client-declared content type is never
// trusted.
func DetectType(data []byte) (mime, ext string, err error) {
	if len(data) == 0 {
		return "", "", ErrUnsupportedType
	}

	detected := mimetype.Detect(data)
	if !slices.ContainsFunc(supportedTypes, detected.Is) {
		return "", "", ErrUnsupportedType
	}

	ext = detected.Extension()
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return detected.String(), ext, nil
}

package imaging

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/verdantlabs/plantdoc/internal/domain"
)

// ErrUnsupportedFormat is returned for files that are not an accepted image
// type. The supported set matches what the AI backends accept.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// allowedImageTypes is the set of MIME types accepted for plant photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniff spec (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// DetectMIME returns the sniffed MIME type and true if data is an accepted
// image format, or ("", false) otherwise.
func DetectMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// Load reads an image file into an ImageResource, sniffing and validating
// its MIME type from content rather than the file extension.
func Load(path string) (domain.ImageResource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ImageResource{}, fmt.Errorf("failed to read image file: %w", err)
	}

	mimeType, ok := DetectMIME(data)
	if !ok {
		return domain.ImageResource{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	return domain.ImageResource{
		Filename: filepath.Base(path),
		MimeType: mimeType,
		Data:     data,
	}, nil
}
